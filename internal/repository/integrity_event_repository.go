package repository

import (
	"crew_assessment_backend/internal/model"

	"gorm.io/gorm"
)

// IntegrityEventRepository is append-only; events are never updated or
// deleted once written.
type IntegrityEventRepository struct {
	DB *gorm.DB
}

func NewIntegrityEventRepository(db *gorm.DB) *IntegrityEventRepository {
	return &IntegrityEventRepository{DB: db}
}

func (r *IntegrityEventRepository) Append(event *model.IntegrityEvent) error {
	return r.DB.Create(event).Error
}

func (r *IntegrityEventRepository) ListByAssessment(assessmentID uint) ([]model.IntegrityEvent, error) {
	var events []model.IntegrityEvent
	err := r.DB.Where("assessment_id = ?", assessmentID).
		Order("id").
		Find(&events).Error
	return events, err
}
