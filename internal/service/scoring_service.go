package service

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/internal/model"
)

// ScoringEngine grades answers and aggregates session results. It is pure:
// no I/O, no clock, deterministic for a given input.
type ScoringEngine struct {
	cfg *config.AssessmentConfig
}

func NewScoringEngine(cfg *config.AssessmentConfig) *ScoringEngine {
	return &ScoringEngine{cfg: cfg}
}

// GradeResult is the outcome of grading one written answer.
type GradeResult struct {
	IsCorrect    bool
	PointsEarned int
	Feedback     string
}

// Grade scores a written answer against the question's grading data.
// Speaking questions do not go through here; see SpeakingPoints.
func (e *ScoringEngine) Grade(q *model.Question, rawAnswer string) GradeResult {
	var correct bool

	switch q.QuestionType {
	case model.QuestionCategoryMatch:
		correct = gradeCategoryMatch(q.CategoryMapping(), rawAnswer)
	default:
		correct = answerMatches(q.CorrectAnswer, rawAnswer)
	}

	result := GradeResult{IsCorrect: correct}
	if correct {
		result.PointsEarned = q.Points
		result.Feedback = "Correct! Well done."
	} else {
		result.Feedback = incorrectFeedback(q)
	}
	return result
}

// incorrectFeedback names the expected answer. Category match questions
// keep their answer in the pairing data, not CorrectAnswer, so the pairings
// are rendered in stable term order.
func incorrectFeedback(q *model.Question) string {
	if q.QuestionType == model.QuestionCategoryMatch {
		expected := q.CategoryMapping()
		terms := make([]string, 0, len(expected))
		for term := range expected {
			terms = append(terms, term)
		}
		sort.Strings(terms)

		pairs := make([]string, 0, len(terms))
		for _, term := range terms {
			pairs = append(pairs, fmt.Sprintf("%s = %s", term, expected[term]))
		}
		return fmt.Sprintf("Incorrect. The correct pairings are: %s", strings.Join(pairs, "; "))
	}
	return fmt.Sprintf("Incorrect. The correct answer is: %s", q.CorrectAnswer)
}

// answerMatches compares a candidate answer to the stored correct answer.
// The stored answer may list alternatives separated by "|". Matching is
// exact on the canonical form, or by time/number equivalence; substring
// matching is deliberately absent, so "7" never matches "270" or "1700".
func answerMatches(correctAnswer, given string) bool {
	canonGiven := canonicalize(given)
	if canonGiven == "" {
		return false
	}

	for _, alt := range strings.Split(correctAnswer, "|") {
		canonAlt := canonicalize(alt)
		if canonAlt == "" {
			continue
		}
		if canonAlt == canonGiven {
			return true
		}
		if timesEquivalent(canonAlt, canonGiven) {
			return true
		}
		if numbersEquivalent(canonAlt, canonGiven) {
			return true
		}
	}
	return false
}

// gradeCategoryMatch is all-or-nothing: every term must map to its correct
// category and no extra or missing terms are tolerated. The answer is a
// JSON object {term: category}.
func gradeCategoryMatch(expected map[string]string, rawAnswer string) bool {
	if len(expected) == 0 {
		return false
	}

	var given map[string]string
	if err := json.Unmarshal([]byte(rawAnswer), &given); err != nil {
		return false
	}
	if len(given) != len(expected) {
		return false
	}

	for term, category := range expected {
		got, ok := lookupCanonical(given, term)
		if !ok || canonicalize(got) != canonicalize(category) {
			return false
		}
	}
	return true
}

func lookupCanonical(m map[string]string, key string) (string, bool) {
	want := canonicalize(key)
	for k, v := range m {
		if canonicalize(k) == want {
			return v, true
		}
	}
	return "", false
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// canonicalize lowercases, trims surrounding punctuation and collapses
// internal whitespace. Canonicalizing twice yields the same result.
func canonicalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,!?;:\"'")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// timesEquivalent reports whether both canonical strings denote the same
// clock time. "7:00", "7 am" and "0700" all map to the same minute count.
// A bare integer in 0..23 is read as a whole hour only when the other side
// is an explicit time.
func timesEquivalent(a, b string) bool {
	ma, aIsTime := parseClockTime(a)
	mb, bIsTime := parseClockTime(b)

	if aIsTime && bIsTime {
		return ma == mb
	}
	if aIsTime {
		if h, ok := parseBareHour(b); ok {
			return ma == h*60
		}
	}
	if bIsTime {
		if h, ok := parseBareHour(a); ok {
			return mb == h*60
		}
	}
	return false
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?: ?([ap])\.?m\.?)?$`)
var meridiemPattern = regexp.MustCompile(`^(\d{1,2}) ?([ap])\.?m\.?$`)
var militaryPattern = regexp.MustCompile(`^(\d{3,4})$`)

// parseClockTime converts an explicit time expression to minutes since
// midnight.
func parseClockTime(s string) (int, bool) {
	if m := clockPattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if minute > 59 {
			return 0, false
		}
		if m[3] != "" {
			hour = applyMeridiem(hour, m[3])
			if hour < 0 {
				return 0, false
			}
		} else if hour > 23 {
			return 0, false
		}
		return hour*60 + minute, true
	}

	if m := meridiemPattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		hour = applyMeridiem(hour, m[2])
		if hour < 0 {
			return 0, false
		}
		return hour * 60, true
	}

	if m := militaryPattern.FindStringSubmatch(s); m != nil {
		digits := m[1]
		var hour, minute int
		if len(digits) == 3 {
			hour, _ = strconv.Atoi(digits[:1])
			minute, _ = strconv.Atoi(digits[1:])
		} else {
			hour, _ = strconv.Atoi(digits[:2])
			minute, _ = strconv.Atoi(digits[2:])
		}
		if hour > 23 || minute > 59 {
			return 0, false
		}
		return hour*60 + minute, true
	}

	return 0, false
}

func applyMeridiem(hour int, meridiem string) int {
	if hour < 1 || hour > 12 {
		return -1
	}
	if hour == 12 {
		hour = 0
	}
	if meridiem == "p" {
		hour += 12
	}
	return hour
}

func parseBareHour(s string) (int, bool) {
	if len(s) > 2 {
		return 0, false
	}
	h, err := strconv.Atoi(s)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

// numbersEquivalent reports whether both canonical strings denote the same
// integer, in digit or word form, so "eight" matches "8".
func numbersEquivalent(a, b string) bool {
	na, ok := parseNumber(a)
	if !ok {
		return false
	}
	nb, ok := parseNumber(b)
	if !ok {
		return false
	}
	return na == nb
}

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensWords = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// parseNumber reads a plain integer or an English number word up to
// ninety-nine, with hyphen or space compounds.
func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}

	s = strings.ReplaceAll(s, "-", " ")
	parts := strings.Fields(s)

	switch len(parts) {
	case 1:
		if n, ok := numberWords[parts[0]]; ok {
			return n, true
		}
		if n, ok := tensWords[parts[0]]; ok {
			return n, true
		}
	case 2:
		tens, ok := tensWords[parts[0]]
		if !ok {
			return 0, false
		}
		units, ok := numberWords[parts[1]]
		if !ok || units == 0 || units > 9 {
			return 0, false
		}
		return tens + units, true
	}
	return 0, false
}

// KeywordCoverage is the fraction of expected keywords present in the
// transcript, matched on canonical word boundaries.
func (e *ScoringEngine) KeywordCoverage(transcript string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	canonTranscript := " " + canonicalize(transcript) + " "
	matched := 0
	for _, kw := range keywords {
		canonKw := canonicalize(kw)
		if canonKw == "" {
			continue
		}
		if strings.Contains(canonTranscript, " "+canonKw+" ") {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// SpeakingPoints maps keyword coverage to points through a fixed staircase.
// Half coverage already earns full marks; the bottom step rewards any
// on-topic content at all.
func (e *ScoringEngine) SpeakingPoints(coverage float64, maxPoints int) int {
	var pct float64
	switch {
	case coverage >= 0.5:
		pct = 1.0
	case coverage >= 0.3:
		pct = 0.7
	case coverage >= 0.2:
		pct = 0.5
	case coverage >= 0.1:
		pct = 0.3
	case coverage > 0:
		pct = 0.2
	default:
		pct = 0
	}
	return roundHalfUp(float64(maxPoints) * pct)
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// ResultSummary is the frozen aggregate of a completed session.
type ResultSummary struct {
	TotalScore      int
	ModuleScores    map[model.ModuleType]int
	SafetyCorrect   int
	SafetyPresented int
	SafetyAccuracy  float64
	SpeakingScore   int
	Passed          bool
}

// Aggregate folds the graded responses and the drawn question set into the
// final result. Module scores are capped at their configured maximums.
// Unanswered safety questions count as presented but incorrect, so leaving
// a safety question blank can still fail the safety gate. When the draw
// contained no safety questions the gate passes vacuously.
func (e *ScoringEngine) Aggregate(assessment *model.Assessment, responses []model.AssessmentResponse, drawn []model.Question) ResultSummary {
	summary := ResultSummary{
		ModuleScores: make(map[model.ModuleType]int, len(model.AllModules)),
	}

	for _, m := range model.AllModules {
		score := assessment.ModuleScore(m)
		if cap := e.cfg.Plan(m).MaxPoints; score > cap {
			score = cap
		}
		summary.ModuleScores[m] = score
		summary.TotalScore += score
	}
	summary.SpeakingScore = summary.ModuleScores[model.ModuleSpeaking]

	for _, q := range drawn {
		if q.IsSafetyRelated {
			summary.SafetyPresented++
		}
	}
	for _, resp := range responses {
		if resp.IsSafetyRelated && resp.IsCorrect {
			summary.SafetyCorrect++
		}
	}

	if summary.SafetyPresented > 0 {
		summary.SafetyAccuracy = float64(summary.SafetyCorrect) / float64(summary.SafetyPresented)
	} else {
		summary.SafetyAccuracy = 1.0
	}

	summary.Passed = summary.TotalScore >= e.cfg.TotalThreshold &&
		summary.SafetyAccuracy >= e.cfg.SafetyThreshold &&
		summary.SpeakingScore >= e.cfg.SpeakingThreshold

	return summary
}

// Recommendations suggests focus areas for a completed result, weakest
// modules first.
func (e *ScoringEngine) Recommendations(summary ResultSummary) []string {
	var recs []string

	if summary.SafetyAccuracy < e.cfg.SafetyThreshold {
		recs = append(recs, "Review shipboard safety procedures and emergency vocabulary.")
	}
	if summary.SpeakingScore < e.cfg.SpeakingThreshold {
		recs = append(recs, "Practice spoken responses to common guest and crew scenarios.")
	}

	for _, m := range model.AllModules {
		if m == model.ModuleSpeaking {
			continue
		}
		cap := e.cfg.Plan(m).MaxPoints
		if cap == 0 {
			continue
		}
		if float64(summary.ModuleScores[m])/float64(cap) < 0.5 {
			recs = append(recs, fmt.Sprintf("Focus on the %s module, where fewer than half the points were earned.", strings.ReplaceAll(string(m), "_", " ")))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "Strong result across all modules. No focused revision needed.")
	}
	return recs
}
