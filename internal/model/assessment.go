package model

import (
	"encoding/json"
	"time"
)

// Assessment is one candidate's timed test session. Status moves
// created -> in_progress -> completed|expired and never leaves a terminal
// state. Rows are never deleted; expiry is a status, which preserves the
// audit trail.
// swagger:model Assessment
type Assessment struct {
	BaseModel
	UserID    uint     `gorm:"index;not null" json:"candidateId"`
	User      *User    `gorm:"foreignKey:UserID" json:"candidate,omitempty"`
	SessionID string   `gorm:"size:100;uniqueIndex;not null" json:"sessionId"`
	Division  Division `gorm:"size:20;not null" json:"division"`

	Status      AssessmentStatus `gorm:"size:20;default:'created';index" json:"status"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"` // fixed at start, not at creation

	// Drawn question set, frozen by start. JSON []uint.
	QuestionSet    json.RawMessage `gorm:"type:json" json:"-"`
	TotalQuestions int             `gorm:"default:0" json:"totalQuestions"`

	// Running module scores, updated by each graded response and frozen by
	// complete. TotalScore equals their sum once completed.
	ListeningScore   int `gorm:"default:0" json:"listeningScore"`
	TimeNumbersScore int `gorm:"default:0" json:"timeNumbersScore"`
	GrammarScore     int `gorm:"default:0" json:"grammarScore"`
	VocabularyScore  int `gorm:"default:0" json:"vocabularyScore"`
	ReadingScore     int `gorm:"default:0" json:"readingScore"`
	SpeakingScore    int `gorm:"default:0" json:"speakingScore"`
	TotalScore       int `gorm:"default:0" json:"totalScore"`

	SafetyCorrect   int     `gorm:"default:0" json:"safetyCorrect"`
	SafetyPresented int     `gorm:"default:0" json:"safetyPresented"`
	SafetyAccuracy  float64 `gorm:"default:0" json:"safetyAccuracy"`
	Passed          bool    `gorm:"default:false" json:"passed"`

	// Origin fingerprint recorded at start, plus the most recent values
	// seen, so each distinct change yields exactly one integrity event.
	OriginIP    string `gorm:"size:45" json:"-"`
	OriginAgent string `gorm:"size:500" json:"-"`
	LastIP      string `gorm:"size:45" json:"-"`
	LastAgent   string `gorm:"size:500" json:"-"`

	RiskScore int `gorm:"default:0" json:"riskScore"`

	// Manual review flag, independent of the computed score.
	ReviewFlagged   bool       `gorm:"default:false" json:"reviewFlagged"`
	ReviewReason    string     `gorm:"type:text" json:"reviewReason,omitempty"`
	ReviewFlaggedAt *time.Time `json:"reviewFlaggedAt,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// QuestionIDs decodes the frozen question set; empty before start.
func (a *Assessment) QuestionIDs() []uint {
	if len(a.QuestionSet) == 0 {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal(a.QuestionSet, &ids); err != nil {
		return nil
	}
	return ids
}

// ModuleScore returns the running score for one module.
func (a *Assessment) ModuleScore(m ModuleType) int {
	switch m {
	case ModuleListening:
		return a.ListeningScore
	case ModuleTimeNumbers:
		return a.TimeNumbersScore
	case ModuleGrammar:
		return a.GrammarScore
	case ModuleVocabulary:
		return a.VocabularyScore
	case ModuleReading:
		return a.ReadingScore
	case ModuleSpeaking:
		return a.SpeakingScore
	}
	return 0
}

// ModuleScoreColumn maps a module to its score column. The switch is
// exhaustive over AllModules.
func ModuleScoreColumn(m ModuleType) string {
	switch m {
	case ModuleListening:
		return "listening_score"
	case ModuleTimeNumbers:
		return "time_numbers_score"
	case ModuleGrammar:
		return "grammar_score"
	case ModuleVocabulary:
		return "vocabulary_score"
	case ModuleReading:
		return "reading_score"
	case ModuleSpeaking:
		return "speaking_score"
	}
	return ""
}
