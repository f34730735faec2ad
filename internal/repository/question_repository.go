package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/util"
	"crew_assessment_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const questionCacheTTL = 10 * time.Minute

// QuestionRepository reads the question bank. Per-division module pools are
// cached in Redis because the bank only changes when the loader runs; the
// loader calls InvalidateCache afterwards.
type QuestionRepository struct {
	DB  *gorm.DB
	RDB *redis.Client
}

func NewQuestionRepository(db *gorm.DB, rdb *redis.Client) *QuestionRepository {
	return &QuestionRepository{DB: db, RDB: rdb}
}

func poolCacheKey(division model.Division, moduleType model.ModuleType) string {
	return fmt.Sprintf("questions:pool:%s:%s", division, moduleType)
}

func (r *QuestionRepository) FindByID(id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.First(&q, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrQuestionNotFound
	}
	return &q, err
}

func (r *QuestionRepository) FindByIDs(ids []uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.Where("id IN ?", ids).Find(&questions).Error
	return questions, err
}

// Pool returns every bank question for one division and module, cache first.
func (r *QuestionRepository) Pool(ctx context.Context, division model.Division, moduleType model.ModuleType) ([]model.Question, error) {
	key := poolCacheKey(division, moduleType)

	if r.RDB != nil {
		cached, err := r.RDB.Get(ctx, key).Bytes()
		if err == nil {
			var questions []model.Question
			if err := json.Unmarshal(cached, &questions); err == nil {
				return questions, nil
			}
		}
	}

	var questions []model.Question
	err := r.DB.Where("division = ? AND module_type = ?", division, moduleType).
		Find(&questions).Error
	if err != nil {
		return nil, err
	}

	if r.RDB != nil && len(questions) > 0 {
		if data, err := json.Marshal(questions); err == nil {
			if err := r.RDB.Set(ctx, key, data, questionCacheTTL).Err(); err != nil {
				logger.Log.Warn("Failed to cache question pool", zap.String("key", key), zap.Error(err))
			}
		}
	}

	return questions, nil
}

// List filters the bank for the admin surface. Empty filters match all.
func (r *QuestionRepository) List(division model.Division, moduleType model.ModuleType) ([]model.Question, error) {
	query := r.DB.Model(&model.Question{})
	if division != "" {
		query = query.Where("division = ?", division)
	}
	if moduleType != "" {
		query = query.Where("module_type = ?", moduleType)
	}

	var questions []model.Question
	err := query.Order("module_type, id").Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) Create(question *model.Question) error {
	return r.DB.Create(question).Error
}

func (r *QuestionRepository) CreateBatch(questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return r.DB.CreateInBatches(questions, 100).Error
}

// InvalidateCache drops every cached pool. Called after loader runs.
func (r *QuestionRepository) InvalidateCache(ctx context.Context) error {
	if r.RDB == nil {
		return nil
	}

	iter := r.RDB.Scan(ctx, 0, "questions:pool:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.RDB.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
