package service

import (
	"context"

	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/repository"
	"crew_assessment_backend/internal/util"
)

// QuestionService fronts the question bank for the admin surface and the
// loader.
type QuestionService struct {
	QuestionRepo *repository.QuestionRepository
}

func NewQuestionService(questionRepo *repository.QuestionRepository) *QuestionService {
	return &QuestionService{QuestionRepo: questionRepo}
}

// List filters the bank; empty strings match everything.
func (s *QuestionService) List(division, moduleType string) ([]model.Question, error) {
	var div model.Division
	if division != "" {
		parsed, err := model.ParseDivision(division)
		if err != nil {
			return nil, util.ErrInvalidInput
		}
		div = parsed
	}

	var mod model.ModuleType
	if moduleType != "" {
		parsed, err := model.ParseModuleType(moduleType)
		if err != nil {
			return nil, util.ErrInvalidInput
		}
		mod = parsed
	}

	return s.QuestionRepo.List(div, mod)
}

// Import loads a batch into the bank and drops the cached pools.
func (s *QuestionService) Import(ctx context.Context, questions []model.Question) error {
	if err := s.QuestionRepo.CreateBatch(questions); err != nil {
		return err
	}
	return s.QuestionRepo.InvalidateCache(ctx)
}
