package model

import "fmt"

// Division is the cruise operation a candidate is hired into. The question
// pool is filtered by division.
type Division string

const (
	DivisionHotel  Division = "hotel"
	DivisionMarine Division = "marine"
	DivisionCasino Division = "casino"
)

func ParseDivision(s string) (Division, error) {
	switch Division(s) {
	case DivisionHotel, DivisionMarine, DivisionCasino:
		return Division(s), nil
	}
	return "", fmt.Errorf("unknown division %q", s)
}

// ModuleType is one of the six scored skill categories. It is a closed
// enumeration: aggregation code switches over AllModules and must stay
// exhaustive.
type ModuleType string

const (
	ModuleListening   ModuleType = "listening"
	ModuleTimeNumbers ModuleType = "time_numbers"
	ModuleGrammar     ModuleType = "grammar"
	ModuleVocabulary  ModuleType = "vocabulary"
	ModuleReading     ModuleType = "reading"
	ModuleSpeaking    ModuleType = "speaking"
)

// AllModules is the canonical ordering used for question grouping and
// score breakdowns.
var AllModules = []ModuleType{
	ModuleListening,
	ModuleTimeNumbers,
	ModuleGrammar,
	ModuleVocabulary,
	ModuleReading,
	ModuleSpeaking,
}

func ParseModuleType(s string) (ModuleType, error) {
	for _, m := range AllModules {
		if ModuleType(s) == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown module type %q", s)
}

type QuestionType string

const (
	QuestionMultipleChoice   QuestionType = "multiple_choice"
	QuestionFillBlank        QuestionType = "fill_blank"
	QuestionCategoryMatch    QuestionType = "category_match"
	QuestionTitleSelection   QuestionType = "title_selection"
	QuestionSpeakingResponse QuestionType = "speaking_response"
)

type AssessmentStatus string

const (
	StatusCreated    AssessmentStatus = "created"
	StatusInProgress AssessmentStatus = "in_progress"
	StatusCompleted  AssessmentStatus = "completed"
	StatusExpired    AssessmentStatus = "expired"
)

// Terminal reports whether no further transition may leave this status.
func (s AssessmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// IntegrityEventKind classifies a behavioral signal recorded during a
// session.
type IntegrityEventKind string

const (
	EventOriginChange IntegrityEventKind = "origin-change"
	EventAgentChange  IntegrityEventKind = "agent-change"
	EventTabSwitch    IntegrityEventKind = "tab-switch"
	EventClipboard    IntegrityEventKind = "clipboard"
	EventOtherAnomaly IntegrityEventKind = "other-anomaly"
)

// ParseReportableEventKind accepts only the kinds a client may self-report.
// Origin and agent changes are detected server side and rejected here.
func ParseReportableEventKind(s string) (IntegrityEventKind, error) {
	switch IntegrityEventKind(s) {
	case EventTabSwitch, EventClipboard, EventOtherAnomaly:
		return IntegrityEventKind(s), nil
	}
	return "", fmt.Errorf("unknown or non-reportable event kind %q", s)
}

// RiskBand names the severity tier of a computed risk score.
type RiskBand string

const (
	BandClean    RiskBand = "clean"
	BandLow      RiskBand = "low"
	BandMedium   RiskBand = "medium"
	BandHigh     RiskBand = "high"
	BandCritical RiskBand = "critical"
)
