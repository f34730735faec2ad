package repository

import (
	"errors"
	"time"

	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/util"

	"gorm.io/gorm"
)

// AssessmentRepository owns every session state transition. Transitions are
// single guarded UPDATEs (status checked in the WHERE clause), so concurrent
// writers race on RowsAffected instead of reading stale state.
type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) Create(assessment *model.Assessment) error {
	return r.DB.Create(assessment).Error
}

func (r *AssessmentRepository) FindByID(id uint) (*model.Assessment, error) {
	var assessment model.Assessment
	err := r.DB.Preload("User").First(&assessment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	return &assessment, err
}

func (r *AssessmentRepository) FindBySessionID(sessionID string) (*model.Assessment, error) {
	var assessment model.Assessment
	err := r.DB.Preload("User").Where("session_id = ?", sessionID).First(&assessment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	return &assessment, err
}

// StartFields is everything frozen by the created -> in_progress transition.
type StartFields struct {
	StartedAt      time.Time
	ExpiresAt      time.Time
	QuestionSet    []byte
	TotalQuestions int
	OriginIP       string
	OriginAgent    string
}

// Start moves a created assessment to in_progress. The question set and the
// deadline are frozen in the same statement, so a second caller loses the
// race and gets ErrInvalidStateTransition.
func (r *AssessmentRepository) Start(id uint, fields StartFields) error {
	result := r.DB.Model(&model.Assessment{}).
		Where("id = ? AND status = ?", id, model.StatusCreated).
		Updates(map[string]interface{}{
			"status":          model.StatusInProgress,
			"started_at":      fields.StartedAt,
			"expires_at":      fields.ExpiresAt,
			"question_set":    fields.QuestionSet,
			"total_questions": fields.TotalQuestions,
			"origin_ip":       fields.OriginIP,
			"origin_agent":    fields.OriginAgent,
			"last_ip":         fields.OriginIP,
			"last_agent":      fields.OriginAgent,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.transitionError(r.DB, id)
	}
	return nil
}

// ExpireIfDue expires an in_progress assessment whose deadline has passed.
// Returns true when this call performed the transition; the guarded UPDATE
// makes expiry exactly-once under concurrent probes.
func (r *AssessmentRepository) ExpireIfDue(id uint, now time.Time) (bool, error) {
	result := r.DB.Model(&model.Assessment{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, model.StatusInProgress, now).
		Update("status", model.StatusExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SubmitResponse persists a graded response and folds its points into the
// module running score in one transaction. The composite unique index on
// (assessment_id, question_id) rejects a second answer to the same question;
// TranslateError surfaces that as gorm.ErrDuplicatedKey.
func (r *AssessmentRepository) SubmitResponse(assessmentID uint, moduleType model.ModuleType, response *model.AssessmentResponse) error {
	column := model.ModuleScoreColumn(moduleType)
	if column == "" {
		return util.ErrInvalidInput
	}

	return r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Assessment{}).
			Where("id = ? AND status = ?", assessmentID, model.StatusInProgress).
			Update(column, gorm.Expr(column+" + ?", response.PointsEarned))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.transitionError(tx, assessmentID)
		}

		if err := tx.Create(response).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return util.ErrDuplicateAnswer
			}
			return err
		}
		return nil
	})
}

// CompleteFields is the aggregate result frozen by completion. ModuleScores
// holds the capped per-module scores; freezing them with the total keeps
// total_score equal to the sum of the module columns on the completed row.
type CompleteFields struct {
	CompletedAt     time.Time
	TotalScore      int
	ModuleScores    map[model.ModuleType]int
	SafetyCorrect   int
	SafetyPresented int
	SafetyAccuracy  float64
	Passed          bool
}

// Complete moves an in_progress assessment to completed and freezes the
// aggregates. A second caller gets ErrInvalidStateTransition.
func (r *AssessmentRepository) Complete(id uint, fields CompleteFields) error {
	updates := map[string]interface{}{
		"status":           model.StatusCompleted,
		"completed_at":     fields.CompletedAt,
		"total_score":      fields.TotalScore,
		"safety_correct":   fields.SafetyCorrect,
		"safety_presented": fields.SafetyPresented,
		"safety_accuracy":  fields.SafetyAccuracy,
		"passed":           fields.Passed,
	}
	for moduleType, score := range fields.ModuleScores {
		if column := model.ModuleScoreColumn(moduleType); column != "" {
			updates[column] = score
		}
	}

	result := r.DB.Model(&model.Assessment{}).
		Where("id = ? AND status = ?", id, model.StatusInProgress).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.transitionError(r.DB, id)
	}
	return nil
}

func (r *AssessmentRepository) ListResponses(assessmentID uint) ([]model.AssessmentResponse, error) {
	var responses []model.AssessmentResponse
	err := r.DB.Where("assessment_id = ?", assessmentID).
		Order("id").
		Find(&responses).Error
	return responses, err
}

func (r *AssessmentRepository) CountResponses(assessmentID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.AssessmentResponse{}).
		Where("assessment_id = ?", assessmentID).
		Count(&count).Error
	return count, err
}

// UpdateFingerprint records the most recent client fingerprint.
func (r *AssessmentRepository) UpdateFingerprint(id uint, ip, agent string) error {
	return r.DB.Model(&model.Assessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_ip":    ip,
			"last_agent": agent,
		}).Error
}

func (r *AssessmentRepository) UpdateRiskScore(id uint, score int) error {
	return r.DB.Model(&model.Assessment{}).
		Where("id = ?", id).
		Update("risk_score", score).Error
}

func (r *AssessmentRepository) FlagForReview(id uint, reason string, at time.Time) error {
	result := r.DB.Model(&model.Assessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"review_flagged":    true,
			"review_reason":     reason,
			"review_flagged_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return util.ErrAssessmentNotFound
	}
	return nil
}

// List returns assessments for the admin surface, newest first. Empty
// filters match all.
func (r *AssessmentRepository) List(status model.AssessmentStatus, division model.Division, limit, offset int) ([]model.Assessment, int64, error) {
	query := r.DB.Model(&model.Assessment{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if division != "" {
		query = query.Where("division = ?", division)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var assessments []model.Assessment
	err := query.Preload("User").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&assessments).Error
	return assessments, total, err
}

// SweepExpired expires every overdue in_progress assessment in one
// statement and returns how many it caught.
func (r *AssessmentRepository) SweepExpired(now time.Time) (int64, error) {
	result := r.DB.Model(&model.Assessment{}).
		Where("status = ? AND expires_at <= ?", model.StatusInProgress, now).
		Update("status", model.StatusExpired)
	return result.RowsAffected, result.Error
}

// transitionError rereads the row to report why a guarded UPDATE matched
// nothing. The reread runs on the caller's handle so that, inside a
// transaction, it shares the transaction's connection instead of blocking
// on its lock.
func (r *AssessmentRepository) transitionError(db *gorm.DB, id uint) error {
	var assessment model.Assessment
	if err := db.Select("status").First(&assessment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrAssessmentNotFound
		}
		return err
	}
	if assessment.Status == model.StatusExpired {
		return util.ErrExpiredAssessment
	}
	return util.ErrInvalidStateTransition
}
