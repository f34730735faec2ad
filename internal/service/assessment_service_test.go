package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/repository"
	"crew_assessment_backend/internal/util"
	pkglogger "crew_assessment_backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	pkglogger.Log = zap.NewNop()
	os.Exit(m.Run())
}

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
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

type testHarness struct {
	db         *gorm.DB
	assessment *AssessmentService
	integrity  *IntegrityService
	candidate  *model.User
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	db := newServiceTestDB(t)

	assessmentRepo := repository.NewAssessmentRepository(db)
	questionRepo := repository.NewQuestionRepository(db, nil)
	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewIntegrityEventRepository(db)

	cfg := &config.Config{
		JWT:        config.JWTConfig{Secret: "test-secret-test-secret-test-secret", ExpireTime: time.Hour},
		Assessment: *testAssessmentConfig(),
		Speech:     config.SpeechConfig{BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1, MaxRetries: 1},
	}

	engine := NewScoringEngine(&cfg.Assessment)
	integrity := NewIntegrityService(assessmentRepo, eventRepo)
	speech := NewSpeechService(&cfg.Speech, engine)
	storage := &LocalProvider{BaseDir: t.TempDir()}

	candidate := &model.User{
		FirstName: "Maria",
		LastName:  "Santos",
		Email:     fmt.Sprintf("maria_%s@example.com", t.Name()),
		Division:  model.DivisionHotel,
		Role:      model.Candidate,
		IsActive:  true,
	}
	require.NoError(t, userRepo.Create(candidate))

	seedQuestionBank(t, db)

	return &testHarness{
		db:         db,
		integrity:  integrity,
		candidate:  candidate,
		assessment: NewAssessmentService(assessmentRepo, questionRepo, userRepo, integrity, engine, speech, storage, cfg),
	}
}

// seedQuestionBank fills the hotel pool with exactly the plan sizes: four
// questions per written module and one speaking prompt. The first listening
// and first reading questions are safety related.
func seedQuestionBank(t *testing.T, db *gorm.DB) {
	t.Helper()

	written := []model.ModuleType{
		model.ModuleListening,
		model.ModuleTimeNumbers,
		model.ModuleGrammar,
		model.ModuleVocabulary,
		model.ModuleReading,
	}
	options, _ := json.Marshal([]string{"A", "B", "C", "D"})

	for _, m := range written {
		for i := 0; i < 4; i++ {
			safety := i == 0 && (m == model.ModuleListening || m == model.ModuleReading)
			q := model.Question{
				ModuleType:      m,
				Division:        model.DivisionHotel,
				QuestionType:    model.QuestionMultipleChoice,
				Text:            fmt.Sprintf("%s question %d", m, i+1),
				Options:         options,
				CorrectAnswer:   "B",
				Points:          4,
				IsSafetyRelated: safety,
			}
			require.NoError(t, db.Create(&q).Error)
		}
	}

	keywords, _ := json.Marshal([]string{"muster", "life jacket", "calm", "deck"})
	speaking := model.Question{
		ModuleType:       model.ModuleSpeaking,
		Division:         model.DivisionHotel,
		QuestionType:     model.QuestionSpeakingResponse,
		Text:             "Explain the emergency drill to a guest.",
		ExpectedKeywords: keywords,
		Points:           20,
		IsSafetyRelated:  true,
	}
	require.NoError(t, db.Create(&speaking).Error)
}

func TestCreateAssessment(t *testing.T) {
	h := newHarness(t)

	result, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionToken)
	assert.Equal(t, model.StatusCreated, result.Assessment.Status)
	assert.Contains(t, result.Assessment.SessionID, fmt.Sprintf("assess_%d_", h.candidate.ID))
	assert.Nil(t, result.Assessment.ExpiresAt)
}

func TestCreateAssessmentValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.assessment.Create(h.candidate.ID, "engineering")
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = h.assessment.Create(9999, "hotel")
	assert.ErrorIs(t, err, util.ErrCandidateNotFound)
}

func TestStartDrawsFullQuestionSet(t *testing.T) {
	h := newHarness(t)

	created, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)

	started, err := h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	require.NoError(t, err)

	assert.Equal(t, 21, started.Assessment.TotalQuestions)
	assert.Len(t, started.Assessment.QuestionIDs(), 21)
	require.Len(t, started.Modules, 6)
	assert.Equal(t, model.ModuleListening, started.Modules[0].Module)
	assert.Len(t, started.Modules[0].Questions, 4)
	assert.Equal(t, model.ModuleSpeaking, started.Modules[5].Module)
	assert.Len(t, started.Modules[5].Questions, 1)

	// Starting twice is rejected.
	_, err = h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	assert.ErrorIs(t, err, util.ErrInvalidStateTransition)
}

func TestSubmitResponseFlow(t *testing.T) {
	h := newHarness(t)

	created, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)
	started, err := h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	require.NoError(t, err)

	first := started.Modules[0].Questions[0]

	result, err := h.assessment.SubmitResponse(created.Assessment.ID, first.ID, "B", 30)
	require.NoError(t, err)
	assert.True(t, result.IsCorrect)
	assert.Equal(t, 4, result.PointsEarned)
	assert.Equal(t, 4, result.PointsPossible)
	assert.Equal(t, int64(1), result.Answered)
	assert.Equal(t, 21, result.Total)

	// Same question again is a duplicate.
	_, err = h.assessment.SubmitResponse(created.Assessment.ID, first.ID, "B", 10)
	assert.ErrorIs(t, err, util.ErrDuplicateAnswer)

	// Questions outside the frozen set are rejected.
	_, err = h.assessment.SubmitResponse(created.Assessment.ID, 9999, "B", 10)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)

	// Speaking questions do not take written answers.
	speaking := started.Modules[5].Questions[0]
	_, err = h.assessment.SubmitResponse(created.Assessment.ID, speaking.ID, "B", 10)
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	wrong, err := h.assessment.SubmitResponse(created.Assessment.ID, started.Modules[0].Questions[1].ID, "C", 20)
	require.NoError(t, err)
	assert.False(t, wrong.IsCorrect)
	assert.Equal(t, 0, wrong.PointsEarned)
	assert.Equal(t, 4, wrong.PointsPossible)
	assert.Contains(t, wrong.Feedback, "Incorrect")
}

func TestSubmitAfterDeadlineExpiresSession(t *testing.T) {
	h := newHarness(t)

	created, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)
	started, err := h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, h.db.Model(&model.Assessment{}).
		Where("id = ?", created.Assessment.ID).
		Update("expires_at", past).Error)

	_, err = h.assessment.SubmitResponse(created.Assessment.ID, started.Modules[0].Questions[0].ID, "B", 10)
	assert.ErrorIs(t, err, util.ErrExpiredAssessment)

	status, err := h.assessment.GetStatus(created.Assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, status.Assessment.Status)
	assert.Equal(t, 0, status.RemainingSeconds)

	// Expired is terminal: completing is rejected too.
	_, err = h.assessment.Complete(created.Assessment.ID)
	assert.ErrorIs(t, err, util.ErrExpiredAssessment)
}

func TestCompleteAggregatesResult(t *testing.T) {
	h := newHarness(t)

	created, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)
	started, err := h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	require.NoError(t, err)

	// Answer every written question correctly; the speaking prompt stays
	// unanswered.
	for _, mq := range started.Modules {
		if mq.Module == model.ModuleSpeaking {
			continue
		}
		for _, q := range mq.Questions {
			_, err := h.assessment.SubmitResponse(created.Assessment.ID, q.ID, "B", 15)
			require.NoError(t, err)
		}
	}

	result, err := h.assessment.Complete(created.Assessment.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, result.Assessment.Status)
	assert.Equal(t, 80, result.Assessment.TotalScore)
	assert.Equal(t, 16, result.ModuleScores[model.ModuleListening])
	assert.Equal(t, 0, result.ModuleScores[model.ModuleSpeaking])

	// The unanswered speaking prompt is safety related and counts as
	// presented.
	assert.Equal(t, 3, result.Assessment.SafetyPresented)
	assert.Equal(t, 2, result.Assessment.SafetyCorrect)

	// Speaking gate fails despite the high written total.
	assert.False(t, result.Assessment.Passed)
	assert.NotEmpty(t, result.Recommendations)

	// Completing twice is rejected.
	_, err = h.assessment.Complete(created.Assessment.ID)
	assert.ErrorIs(t, err, util.ErrInvalidStateTransition)
}

func TestCompleteCapsOverweightModuleScores(t *testing.T) {
	h := newHarness(t)

	created, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)
	_, err = h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	require.NoError(t, err)

	// Overweight bank content can push a running score past the module cap.
	require.NoError(t, h.db.Model(&model.Assessment{}).
		Where("id = ?", created.Assessment.ID).
		Update("listening_score", 40).Error)

	result, err := h.assessment.Complete(created.Assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, result.ModuleScores[model.ModuleListening])
	assert.Equal(t, 16, result.Assessment.TotalScore)

	// The completed row stores the capped module scores, so the frozen
	// total equals the sum of the frozen columns.
	assert.Equal(t, 16, result.Assessment.ListeningScore)
	sum := 0
	for _, m := range model.AllModules {
		sum += result.Assessment.ModuleScore(m)
	}
	assert.Equal(t, result.Assessment.TotalScore, sum)
}

func TestGetStatusReportsProgress(t *testing.T) {
	h := newHarness(t)

	created, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)
	started, err := h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	require.NoError(t, err)

	_, err = h.assessment.SubmitResponse(created.Assessment.ID, started.Modules[0].Questions[0].ID, "B", 10)
	require.NoError(t, err)

	status, err := h.assessment.GetStatus(created.Assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, status.Assessment.Status)
	assert.Equal(t, int64(1), status.Answered)
	assert.Greater(t, status.RemainingSeconds, 0)
	assert.Equal(t, model.BandClean, status.RiskBand)
}

func TestFingerprintChangeRaisesRisk(t *testing.T) {
	h := newHarness(t)

	created, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)
	_, err = h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	require.NoError(t, err)

	loaded, err := h.assessment.AssessmentRepo.FindByID(created.Assessment.ID)
	require.NoError(t, err)

	// Same fingerprint: no events.
	require.NoError(t, h.integrity.Observe(loaded, "10.0.0.1", "agent-a"))
	events, err := h.integrity.Events(created.Assessment.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	// New address and agent: one event each.
	require.NoError(t, h.integrity.Observe(loaded, "10.0.0.2", "agent-b"))
	events, err = h.integrity.Events(created.Assessment.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Staying on the new fingerprint raises nothing further.
	require.NoError(t, h.integrity.Observe(loaded, "10.0.0.2", "agent-b"))
	events, err = h.integrity.Events(created.Assessment.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	status, err := h.assessment.GetStatus(created.Assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, status.Assessment.RiskScore)
	assert.Equal(t, model.BandCritical, status.RiskBand)
}

func TestReportedEventsAccumulate(t *testing.T) {
	h := newHarness(t)

	created, err := h.assessment.Create(h.candidate.ID, "hotel")
	require.NoError(t, err)
	_, err = h.assessment.Start(context.Background(), created.Assessment.ID, "10.0.0.1", "agent-a")
	require.NoError(t, err)

	score, err := h.integrity.RecordEvent(created.Assessment.ID, model.EventTabSwitch, "blur")
	require.NoError(t, err)
	assert.Equal(t, 5, score)

	score, err = h.integrity.RecordEvent(created.Assessment.ID, model.EventClipboard, "paste")
	require.NoError(t, err)
	assert.Equal(t, 8, score)

	require.NoError(t, h.integrity.FlagForReview(created.Assessment.ID, "proctor request"))
	detail, err := h.assessment.GetDetail(created.Assessment.ID)
	require.NoError(t, err)
	assert.True(t, detail.Assessment.ReviewFlagged)
	assert.Equal(t, "proctor request", detail.Assessment.ReviewReason)
	assert.Len(t, detail.Events, 2)
	assert.Equal(t, model.BandLow, detail.RiskBand)
}
