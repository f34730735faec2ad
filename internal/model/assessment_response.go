package model

import "encoding/json"

// AssessmentResponse is one graded answer. The composite unique index is
// the duplicate-answer guard: a second insert for the same
// (assessment, question) pair fails at the database, not in application
// code. Rows are immutable once written.
// swagger:model AssessmentResponse
type AssessmentResponse struct {
	BaseModel
	AssessmentID uint `gorm:"not null;uniqueIndex:idx_assessment_question" json:"assessmentId"`
	QuestionID   uint `gorm:"not null;uniqueIndex:idx_assessment_question" json:"questionId"`

	ModuleType      ModuleType `gorm:"size:20;not null;index" json:"moduleType"`
	RawAnswer       string     `gorm:"type:text" json:"rawAnswer"`
	IsCorrect       bool       `gorm:"not null" json:"isCorrect"`
	PointsEarned    int        `gorm:"not null" json:"pointsEarned"`
	PointsPossible  int        `gorm:"not null" json:"pointsPossible"`
	IsSafetyRelated bool       `gorm:"default:false" json:"isSafetyRelated"`
	ElapsedSeconds  int        `gorm:"default:0" json:"elapsedSeconds"`
	Feedback        string     `gorm:"type:text" json:"feedback"`

	// Speaking responses only.
	AudioFilePath  string          `gorm:"size:500" json:"audioFile,omitempty"`
	Transcript     string          `gorm:"type:text" json:"transcript,omitempty"`
	SpeechAnalysis json.RawMessage `gorm:"type:json" json:"speechAnalysis,omitempty"`
}

func (AssessmentResponse) TableName() string {
	return "assessment_responses"
}
