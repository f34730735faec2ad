package model

import "encoding/json"

// Question is an immutable question-bank entry. Correct-answer fields are
// never serialized to candidates; only the loader CLI and the grading path
// read them.
// swagger:model Question
type Question struct {
	BaseModel
	ModuleType   ModuleType   `gorm:"size:20;not null;index" json:"moduleType"`
	Division     Division     `gorm:"size:20;not null;index" json:"division"`
	Department   string       `gorm:"size:100" json:"department"`
	ScenarioID   string       `gorm:"size:100;index" json:"scenarioId"`
	QuestionType QuestionType `gorm:"size:30;not null" json:"questionType"`

	Text    string          `gorm:"type:text;not null" json:"text"`
	Options json.RawMessage `gorm:"type:json" json:"options,omitempty"` // multiple choice / title selection

	// Grading data, stripped from every outbound payload.
	CorrectAnswer    string          `gorm:"type:text" json:"-"`
	ExpectedKeywords json.RawMessage `gorm:"type:json" json:"-"` // speaking: []string
	CategoryPairs    json.RawMessage `gorm:"type:json" json:"-"` // category match: {term: definition}

	AudioFilePath   string          `gorm:"size:500" json:"audioFile,omitempty"` // listening prompts
	Points          int             `gorm:"not null" json:"points"`
	IsSafetyRelated bool            `gorm:"default:false" json:"isSafetyRelated"`
	Metadata        json.RawMessage `gorm:"type:json" json:"metadata,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// ExpectedKeywordList decodes the speaking keyword set; nil when absent.
func (q *Question) ExpectedKeywordList() []string {
	if len(q.ExpectedKeywords) == 0 {
		return nil
	}
	var kws []string
	if err := json.Unmarshal(q.ExpectedKeywords, &kws); err != nil {
		return nil
	}
	return kws
}

// CategoryMapping decodes the term-to-definition mapping for category
// match questions; nil when absent.
func (q *Question) CategoryMapping() map[string]string {
	if len(q.CategoryPairs) == 0 {
		return nil
	}
	var pairs map[string]string
	if err := json.Unmarshal(q.CategoryPairs, &pairs); err != nil {
		return nil
	}
	return pairs
}
