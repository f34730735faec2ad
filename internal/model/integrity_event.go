package model

// IntegrityEvent is one behavioral signal appended to a session's audit
// log. Events are never updated or deleted; the risk score is recomputed
// from the full log.
// swagger:model IntegrityEvent
type IntegrityEvent struct {
	BaseModel
	AssessmentID uint               `gorm:"index;not null" json:"assessmentId"`
	Kind         IntegrityEventKind `gorm:"size:30;not null" json:"kind"`
	Detail       string             `gorm:"size:500" json:"detail,omitempty"`
}

func (IntegrityEvent) TableName() string {
	return "integrity_events"
}
