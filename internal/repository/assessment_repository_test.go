package repository

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Question{},
		&model.Assessment{},
		&model.AssessmentResponse{},
		&model.IntegrityEvent{},
	))
	return db
}

func seedAssessment(t *testing.T, repo *AssessmentRepository) *model.Assessment {
	t.Helper()

	assessment := &model.Assessment{
		UserID:    1,
		SessionID: fmt.Sprintf("assess_1_%d_%s", time.Now().UnixNano(), t.Name()),
		Division:  model.DivisionHotel,
		Status:    model.StatusCreated,
	}
	require.NoError(t, repo.Create(assessment))
	return assessment
}

func startAssessment(t *testing.T, repo *AssessmentRepository, id uint, expiresAt time.Time) {
	t.Helper()

	questionSet, _ := json.Marshal([]uint{1, 2, 3})
	require.NoError(t, repo.Start(id, StartFields{
		StartedAt:      time.Now(),
		ExpiresAt:      expiresAt,
		QuestionSet:    questionSet,
		TotalQuestions: 3,
		OriginIP:       "10.0.0.1",
		OriginAgent:    "test-agent",
	}))
}

func TestStartFreezesSessionOnce(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)

	startAssessment(t, repo, assessment.ID, time.Now().Add(2*time.Hour))

	loaded, err := repo.FindByID(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, loaded.Status)
	assert.Equal(t, []uint{1, 2, 3}, loaded.QuestionIDs())
	assert.Equal(t, "10.0.0.1", loaded.OriginIP)
	assert.Equal(t, "10.0.0.1", loaded.LastIP)

	// Second start loses the status race.
	err = repo.Start(assessment.ID, StartFields{StartedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, util.ErrInvalidStateTransition)
}

func TestStartMissingAssessment(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))

	err := repo.Start(9999, StartFields{StartedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, util.ErrAssessmentNotFound)
}

func TestSubmitResponseUpdatesModuleScore(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)
	startAssessment(t, repo, assessment.ID, time.Now().Add(2*time.Hour))

	err := repo.SubmitResponse(assessment.ID, model.ModuleListening, &model.AssessmentResponse{
		AssessmentID:   assessment.ID,
		QuestionID:     1,
		ModuleType:     model.ModuleListening,
		IsCorrect:      true,
		PointsEarned:   4,
		PointsPossible: 4,
	})
	require.NoError(t, err)

	loaded, err := repo.FindByID(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.ListeningScore)

	count, err := repo.CountResponses(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSubmitResponseDuplicateRollsBack(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)
	startAssessment(t, repo, assessment.ID, time.Now().Add(2*time.Hour))

	response := func() *model.AssessmentResponse {
		return &model.AssessmentResponse{
			AssessmentID:   assessment.ID,
			QuestionID:     1,
			ModuleType:     model.ModuleListening,
			IsCorrect:      true,
			PointsEarned:   4,
			PointsPossible: 4,
		}
	}

	require.NoError(t, repo.SubmitResponse(assessment.ID, model.ModuleListening, response()))

	err := repo.SubmitResponse(assessment.ID, model.ModuleListening, response())
	assert.ErrorIs(t, err, util.ErrDuplicateAnswer)

	// The score increment from the rejected duplicate must roll back.
	loaded, err := repo.FindByID(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.ListeningScore)

	count, err := repo.CountResponses(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSubmitResponseBeforeStart(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)

	err := repo.SubmitResponse(assessment.ID, model.ModuleListening, &model.AssessmentResponse{
		AssessmentID: assessment.ID,
		QuestionID:   1,
		ModuleType:   model.ModuleListening,
	})
	assert.ErrorIs(t, err, util.ErrInvalidStateTransition)
}

func TestExpireIfDueExactlyOnce(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)
	startAssessment(t, repo, assessment.ID, time.Now().Add(-time.Minute))

	expired, err := repo.ExpireIfDue(assessment.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, expired)

	// A second probe finds the work already done.
	expired, err = repo.ExpireIfDue(assessment.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, expired)

	loaded, err := repo.FindByID(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, loaded.Status)
}

func TestExpireIfDueLeavesActiveSessionsAlone(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)
	startAssessment(t, repo, assessment.ID, time.Now().Add(2*time.Hour))

	expired, err := repo.ExpireIfDue(assessment.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, expired)

	loaded, err := repo.FindByID(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, loaded.Status)
}

func TestSubmitAfterExpiry(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)
	startAssessment(t, repo, assessment.ID, time.Now().Add(-time.Minute))

	_, err := repo.ExpireIfDue(assessment.ID, time.Now())
	require.NoError(t, err)

	err = repo.SubmitResponse(assessment.ID, model.ModuleListening, &model.AssessmentResponse{
		AssessmentID: assessment.ID,
		QuestionID:   1,
		ModuleType:   model.ModuleListening,
	})
	assert.ErrorIs(t, err, util.ErrExpiredAssessment)
}

func TestCompleteFreezesAggregates(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)
	startAssessment(t, repo, assessment.ID, time.Now().Add(2*time.Hour))

	err := repo.Complete(assessment.ID, CompleteFields{
		CompletedAt:     time.Now(),
		TotalScore:      78,
		SafetyCorrect:   2,
		SafetyPresented: 2,
		SafetyAccuracy:  1.0,
		Passed:          true,
	})
	require.NoError(t, err)

	loaded, err := repo.FindByID(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Status)
	assert.Equal(t, 78, loaded.TotalScore)
	assert.True(t, loaded.Passed)
	require.NotNil(t, loaded.CompletedAt)

	// Completed is terminal.
	err = repo.Complete(assessment.ID, CompleteFields{CompletedAt: time.Now()})
	assert.ErrorIs(t, err, util.ErrInvalidStateTransition)

	err = repo.SubmitResponse(assessment.ID, model.ModuleListening, &model.AssessmentResponse{
		AssessmentID: assessment.ID,
		QuestionID:   2,
		ModuleType:   model.ModuleListening,
	})
	assert.ErrorIs(t, err, util.ErrInvalidStateTransition)
}

func TestCompleteFreezesCappedModuleScores(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)
	startAssessment(t, repo, assessment.ID, time.Now().Add(2*time.Hour))

	// Overweight bank content can push a running module score past its cap.
	require.NoError(t, repo.SubmitResponse(assessment.ID, model.ModuleListening, &model.AssessmentResponse{
		AssessmentID:   assessment.ID,
		QuestionID:     1,
		ModuleType:     model.ModuleListening,
		IsCorrect:      true,
		PointsEarned:   40,
		PointsPossible: 40,
	}))

	err := repo.Complete(assessment.ID, CompleteFields{
		CompletedAt: time.Now(),
		TotalScore:  16,
		ModuleScores: map[model.ModuleType]int{
			model.ModuleListening:   16,
			model.ModuleTimeNumbers: 0,
			model.ModuleGrammar:     0,
			model.ModuleVocabulary:  0,
			model.ModuleReading:     0,
			model.ModuleSpeaking:    0,
		},
		SafetyAccuracy: 1.0,
	})
	require.NoError(t, err)

	loaded, err := repo.FindByID(assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, loaded.ListeningScore)

	// The frozen total always equals the sum of the frozen module columns.
	sum := 0
	for _, m := range model.AllModules {
		sum += loaded.ModuleScore(m)
	}
	assert.Equal(t, loaded.TotalScore, sum)
}

func TestSweepExpired(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))

	overdueA := seedAssessment(t, repo)
	startAssessment(t, repo, overdueA.ID, time.Now().Add(-time.Hour))
	overdueB := seedAssessment(t, repo)
	startAssessment(t, repo, overdueB.ID, time.Now().Add(-time.Minute))
	active := seedAssessment(t, repo)
	startAssessment(t, repo, active.ID, time.Now().Add(time.Hour))

	count, err := repo.SweepExpired(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	loaded, err := repo.FindByID(active.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, loaded.Status)
}

func TestFlagForReview(t *testing.T) {
	repo := NewAssessmentRepository(newTestDB(t))
	assessment := seedAssessment(t, repo)

	require.NoError(t, repo.FlagForReview(assessment.ID, "manual check requested", time.Now()))

	loaded, err := repo.FindByID(assessment.ID)
	require.NoError(t, err)
	assert.True(t, loaded.ReviewFlagged)
	assert.Equal(t, "manual check requested", loaded.ReviewReason)
	require.NotNil(t, loaded.ReviewFlaggedAt)

	assert.ErrorIs(t, repo.FlagForReview(9999, "missing", time.Now()), util.ErrAssessmentNotFound)
}

func TestListFiltersAndPages(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssessmentRepository(db)

	require.NoError(t, db.Create(&model.User{FirstName: "Ana", LastName: "Reyes", Email: "ana@example.com", Division: model.DivisionHotel}).Error)

	for i := 0; i < 3; i++ {
		a := &model.Assessment{
			UserID:    1,
			SessionID: fmt.Sprintf("assess_1_%d_%d", time.Now().UnixNano(), i),
			Division:  model.DivisionHotel,
			Status:    model.StatusCreated,
		}
		require.NoError(t, repo.Create(a))
	}
	marine := &model.Assessment{
		UserID:    1,
		SessionID: fmt.Sprintf("assess_1_%d_m", time.Now().UnixNano()),
		Division:  model.DivisionMarine,
		Status:    model.StatusCreated,
	}
	require.NoError(t, repo.Create(marine))

	all, total, err := repo.List("", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	hotel, total, err := repo.List(model.StatusCreated, model.DivisionHotel, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, hotel, 2)
}
