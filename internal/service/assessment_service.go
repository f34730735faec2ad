package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/repository"
	"crew_assessment_backend/internal/util"
	"crew_assessment_backend/pkg/logger"
	"crew_assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// AssessmentService drives the session state machine. Every transition goes
// through the repository's guarded updates, so the service never has to
// hold locks of its own.
type AssessmentService struct {
	AssessmentRepo *repository.AssessmentRepository
	QuestionRepo   *repository.QuestionRepository
	UserRepo       *repository.UserRepository
	Integrity      *IntegrityService
	Engine         *ScoringEngine
	Speech         *SpeechService
	Storage        StorageProvider
	Cfg            *config.Config
}

func NewAssessmentService(
	assessmentRepo *repository.AssessmentRepository,
	questionRepo *repository.QuestionRepository,
	userRepo *repository.UserRepository,
	integrity *IntegrityService,
	engine *ScoringEngine,
	speech *SpeechService,
	storage StorageProvider,
	cfg *config.Config,
) *AssessmentService {
	return &AssessmentService{
		AssessmentRepo: assessmentRepo,
		QuestionRepo:   questionRepo,
		UserRepo:       userRepo,
		Integrity:      integrity,
		Engine:         engine,
		Speech:         speech,
		Storage:        storage,
		Cfg:            cfg,
	}
}

type CreateAssessmentResult struct {
	Assessment   *model.Assessment `json:"assessment"`
	SessionToken string            `json:"sessionToken"`
}

// Create opens a new session for a candidate. The session token it returns
// is required on every subsequent session operation and is scoped to this
// one assessment.
func (s *AssessmentService) Create(candidateID uint, division string) (*CreateAssessmentResult, error) {
	div, err := model.ParseDivision(division)
	if err != nil {
		return nil, util.ErrInvalidInput
	}

	candidate, err := s.UserRepo.FindByID(candidateID)
	if err != nil {
		return nil, err
	}

	assessment := &model.Assessment{
		UserID:    candidate.ID,
		Division:  div,
		Status:    model.StatusCreated,
		SessionID: fmt.Sprintf("assess_%d_%d", candidate.ID, time.Now().Unix()),
	}
	if err := s.AssessmentRepo.Create(assessment); err != nil {
		return nil, err
	}

	// Token outlives the session window so a candidate can still read
	// their result after expiry.
	tokenTTL := s.Cfg.Assessment.SessionWindow() + time.Hour
	token, err := util.GenerateSessionToken(assessment.ID, candidate.ID, s.Cfg.JWT.Secret, tokenTTL)
	if err != nil {
		return nil, err
	}

	monitoring.AssessmentTransitions.WithLabelValues(string(model.StatusCreated)).Inc()
	logger.Log.Info("Assessment created",
		zap.Uint("assessmentId", assessment.ID),
		zap.String("sessionId", assessment.SessionID),
		zap.String("division", division))

	return &CreateAssessmentResult{Assessment: assessment, SessionToken: token}, nil
}

// ModuleQuestions is one module's slice of a started session, with grading
// data already stripped by the model's JSON tags.
type ModuleQuestions struct {
	Module    model.ModuleType `json:"module"`
	Questions []model.Question `json:"questions"`
}

type StartAssessmentResult struct {
	Assessment *model.Assessment `json:"assessment"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	Modules    []ModuleQuestions `json:"modules"`
}

// Start freezes the question set and the deadline and moves the session to
// in_progress. The draw shuffles each module's division pool; a second
// start call loses the status race and fails.
func (s *AssessmentService) Start(ctx context.Context, assessmentID uint, ip, agent string) (*StartAssessmentResult, error) {
	assessment, err := s.AssessmentRepo.FindByID(assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.Status != model.StatusCreated {
		return nil, util.ErrInvalidStateTransition
	}

	modules, ids, err := s.drawQuestionSet(ctx, assessment.Division)
	if err != nil {
		return nil, err
	}

	frozen, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.Cfg.Assessment.SessionWindow())
	err = s.AssessmentRepo.Start(assessmentID, repository.StartFields{
		StartedAt:      now,
		ExpiresAt:      expiresAt,
		QuestionSet:    frozen,
		TotalQuestions: len(ids),
		OriginIP:       ip,
		OriginAgent:    agent,
	})
	if err != nil {
		return nil, err
	}

	assessment, err = s.AssessmentRepo.FindByID(assessmentID)
	if err != nil {
		return nil, err
	}

	monitoring.AssessmentTransitions.WithLabelValues(string(model.StatusInProgress)).Inc()
	logger.Log.Info("Assessment started",
		zap.Uint("assessmentId", assessmentID),
		zap.Int("questions", len(ids)),
		zap.Time("expiresAt", expiresAt))

	return &StartAssessmentResult{
		Assessment: assessment,
		ExpiresAt:  expiresAt,
		Modules:    modules,
	}, nil
}

func (s *AssessmentService) drawQuestionSet(ctx context.Context, division model.Division) ([]ModuleQuestions, []uint, error) {
	var modules []ModuleQuestions
	var ids []uint

	for _, m := range model.AllModules {
		plan := s.Cfg.Assessment.Plan(m)
		if plan.Questions == 0 {
			continue
		}

		pool, err := s.QuestionRepo.Pool(ctx, division, m)
		if err != nil {
			return nil, nil, err
		}
		if len(pool) == 0 {
			return nil, nil, fmt.Errorf("question bank has no %s questions for division %s", m, division)
		}

		rand.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})

		count := plan.Questions
		if count > len(pool) {
			logger.Log.Warn("Question pool smaller than plan",
				zap.String("module", string(m)),
				zap.String("division", string(division)),
				zap.Int("planned", count),
				zap.Int("available", len(pool)))
			count = len(pool)
		}

		drawn := pool[:count]
		for i := range drawn {
			shuffleOptions(&drawn[i])
		}
		modules = append(modules, ModuleQuestions{Module: m, Questions: drawn})
		for _, q := range drawn {
			ids = append(ids, q.ID)
		}
	}

	return modules, ids, nil
}

// shuffleOptions randomizes choice order for option-based questions.
// Grading compares answer values, not positions, so order is free to vary.
func shuffleOptions(q *model.Question) {
	if q.QuestionType != model.QuestionMultipleChoice && q.QuestionType != model.QuestionTitleSelection {
		return
	}
	var opts []string
	if err := json.Unmarshal(q.Options, &opts); err != nil || len(opts) < 2 {
		return
	}
	rand.Shuffle(len(opts), func(i, j int) {
		opts[i], opts[j] = opts[j], opts[i]
	})
	if encoded, err := json.Marshal(opts); err == nil {
		q.Options = encoded
	}
}

type SubmitResult struct {
	QuestionID     uint   `json:"questionId"`
	IsCorrect      bool   `json:"isCorrect"`
	PointsEarned   int    `json:"pointsEarned"`
	PointsPossible int    `json:"pointsPossible"`
	Feedback       string `json:"feedback"`
	Answered       int64  `json:"answeredQuestions"`
	Total          int    `json:"totalQuestions"`
}

// SubmitResponse grades a written answer and records it. Expiry is checked
// lazily first, so a submission after the deadline expires the session and
// is then rejected as expired rather than silently graded.
func (s *AssessmentService) SubmitResponse(assessmentID, questionID uint, rawAnswer string, elapsedSeconds int) (*SubmitResult, error) {
	assessment, err := s.loadActive(assessmentID)
	if err != nil {
		return nil, err
	}

	question, err := s.questionInSet(assessment, questionID)
	if err != nil {
		return nil, err
	}
	if question.QuestionType == model.QuestionSpeakingResponse {
		return nil, util.ErrInvalidInput
	}

	grade := s.Engine.Grade(question, rawAnswer)

	response := &model.AssessmentResponse{
		AssessmentID:    assessmentID,
		QuestionID:      questionID,
		ModuleType:      question.ModuleType,
		RawAnswer:       rawAnswer,
		IsCorrect:       grade.IsCorrect,
		PointsEarned:    grade.PointsEarned,
		PointsPossible:  question.Points,
		IsSafetyRelated: question.IsSafetyRelated,
		ElapsedSeconds:  elapsedSeconds,
		Feedback:        grade.Feedback,
	}
	if err := s.AssessmentRepo.SubmitResponse(assessmentID, question.ModuleType, response); err != nil {
		return nil, err
	}

	monitoring.ResponsesScored.WithLabelValues(string(question.ModuleType), fmt.Sprintf("%t", grade.IsCorrect)).Inc()

	answered, err := s.AssessmentRepo.CountResponses(assessmentID)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		QuestionID:     questionID,
		IsCorrect:      grade.IsCorrect,
		PointsEarned:   grade.PointsEarned,
		PointsPossible: question.Points,
		Feedback:       grade.Feedback,
		Answered:       answered,
		Total:          assessment.TotalQuestions,
	}, nil
}

type SpeakingResult struct {
	SubmitResult
	Transcript      string  `json:"transcript,omitempty"`
	KeywordCoverage float64 `json:"keywordCoverage"`
	PendingReview   bool    `json:"pendingReview"`
}

// SubmitSpeakingResponse stores the recording, runs speech analysis and
// grades by keyword coverage. When the provider is unreachable the response
// earns the deterministic fallback score and the session is flagged for
// manual review.
func (s *AssessmentService) SubmitSpeakingResponse(ctx context.Context, assessmentID, questionID uint, file *multipart.FileHeader, elapsedSeconds int) (*SpeakingResult, error) {
	assessment, err := s.loadActive(assessmentID)
	if err != nil {
		return nil, err
	}

	question, err := s.questionInSet(assessment, questionID)
	if err != nil {
		return nil, err
	}
	if question.QuestionType != model.QuestionSpeakingResponse {
		return nil, util.ErrInvalidInput
	}

	localPath, err := s.saveUpload(file)
	if err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	// Short recordings are still graded on content; the candidate is only
	// warned in the feedback.
	tooShort := false
	info, err := util.GetAudioInfo(localPath)
	if err != nil {
		logger.Log.Warn("Audio probe failed", zap.Error(err))
	} else if info.Duration > 0 && info.Duration < float64(s.Cfg.Assessment.MinRecordingSeconds) {
		tooShort = true
	}

	objectName := fmt.Sprintf("recordings/%s/q%d_%s%s",
		assessment.SessionID, questionID, model.GenerateUUID(), filepath.Ext(file.Filename))
	storedPath, err := s.storeRecording(ctx, localPath, objectName, file)
	if err != nil {
		return nil, err
	}

	analysis := s.Speech.Analyze(ctx, localPath, question.ExpectedKeywordList())

	var points int
	if analysis.Fallback {
		points = s.Speech.FallbackPoints(question.Points)
	} else {
		points = s.Engine.SpeakingPoints(analysis.KeywordCoverage, question.Points)
	}

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, err
	}

	feedback := "Response recorded and scored."
	if analysis.Fallback {
		feedback = "Response recorded. Automatic scoring was unavailable; a reviewer will confirm the score."
	}
	if tooShort {
		feedback += fmt.Sprintf(" Note: the recording was shorter than the recommended %d seconds.", s.Cfg.Assessment.MinRecordingSeconds)
	}

	response := &model.AssessmentResponse{
		AssessmentID:    assessmentID,
		QuestionID:      questionID,
		ModuleType:      question.ModuleType,
		IsCorrect:       points > 0,
		PointsEarned:    points,
		PointsPossible:  question.Points,
		IsSafetyRelated: question.IsSafetyRelated,
		ElapsedSeconds:  elapsedSeconds,
		Feedback:        feedback,
		AudioFilePath:   storedPath,
		Transcript:      analysis.Transcript,
		SpeechAnalysis:  analysisJSON,
	}
	if err := s.AssessmentRepo.SubmitResponse(assessmentID, question.ModuleType, response); err != nil {
		return nil, err
	}

	if analysis.Fallback {
		if err := s.Integrity.FlagForReview(assessmentID, "speech analysis unavailable, fallback score applied"); err != nil {
			logger.Log.Error("Failed to flag fallback response for review", zap.Error(err))
		}
	}

	monitoring.ResponsesScored.WithLabelValues(string(question.ModuleType), fmt.Sprintf("%t", points > 0)).Inc()

	answered, err := s.AssessmentRepo.CountResponses(assessmentID)
	if err != nil {
		return nil, err
	}

	return &SpeakingResult{
		SubmitResult: SubmitResult{
			QuestionID:     questionID,
			IsCorrect:      points > 0,
			PointsEarned:   points,
			PointsPossible: question.Points,
			Feedback:       feedback,
			Answered:       answered,
			Total:          assessment.TotalQuestions,
		},
		Transcript:      analysis.Transcript,
		KeywordCoverage: analysis.KeywordCoverage,
		PendingReview:   analysis.Fallback,
	}, nil
}

type CompleteResult struct {
	Assessment      *model.Assessment        `json:"assessment"`
	ModuleScores    map[model.ModuleType]int `json:"moduleScores"`
	RiskBand        model.RiskBand           `json:"riskBand"`
	Recommendations []string                 `json:"recommendations"`
}

// Complete freezes the aggregates and moves the session to completed. Like
// submission, it checks expiry lazily first.
func (s *AssessmentService) Complete(assessmentID uint) (*CompleteResult, error) {
	assessment, err := s.loadActive(assessmentID)
	if err != nil {
		return nil, err
	}

	responses, err := s.AssessmentRepo.ListResponses(assessmentID)
	if err != nil {
		return nil, err
	}
	drawn, err := s.QuestionRepo.FindByIDs(assessment.QuestionIDs())
	if err != nil {
		return nil, err
	}

	summary := s.Engine.Aggregate(assessment, responses, drawn)
	err = s.AssessmentRepo.Complete(assessmentID, repository.CompleteFields{
		CompletedAt:     time.Now(),
		TotalScore:      summary.TotalScore,
		ModuleScores:    summary.ModuleScores,
		SafetyCorrect:   summary.SafetyCorrect,
		SafetyPresented: summary.SafetyPresented,
		SafetyAccuracy:  summary.SafetyAccuracy,
		Passed:          summary.Passed,
	})
	if err != nil {
		return nil, err
	}

	assessment, err = s.AssessmentRepo.FindByID(assessmentID)
	if err != nil {
		return nil, err
	}

	monitoring.AssessmentTransitions.WithLabelValues(string(model.StatusCompleted)).Inc()
	logger.Log.Info("Assessment completed",
		zap.Uint("assessmentId", assessmentID),
		zap.Int("totalScore", summary.TotalScore),
		zap.Bool("passed", summary.Passed))

	return &CompleteResult{
		Assessment:      assessment,
		ModuleScores:    summary.ModuleScores,
		RiskBand:        RiskBandFor(assessment.RiskScore),
		Recommendations: s.Engine.Recommendations(summary),
	}, nil
}

type StatusResult struct {
	Assessment       *model.Assessment `json:"assessment"`
	RemainingSeconds int               `json:"remainingSeconds"`
	Answered         int64             `json:"answeredQuestions"`
	RiskBand         model.RiskBand    `json:"riskBand"`
}

// GetStatus reports the current session state. Reading the status of an
// overdue session expires it first, so a poll never sees a stale
// in_progress past the deadline.
func (s *AssessmentService) GetStatus(assessmentID uint) (*StatusResult, error) {
	if _, err := s.AssessmentRepo.ExpireIfDue(assessmentID, time.Now()); err != nil {
		return nil, err
	}

	assessment, err := s.AssessmentRepo.FindByID(assessmentID)
	if err != nil {
		return nil, err
	}

	answered, err := s.AssessmentRepo.CountResponses(assessmentID)
	if err != nil {
		return nil, err
	}

	remaining := 0
	if assessment.Status == model.StatusInProgress && assessment.ExpiresAt != nil {
		if secs := int(time.Until(*assessment.ExpiresAt).Seconds()); secs > 0 {
			remaining = secs
		}
	}

	return &StatusResult{
		Assessment:       assessment,
		RemainingSeconds: remaining,
		Answered:         answered,
		RiskBand:         RiskBandFor(assessment.RiskScore),
	}, nil
}

type AssessmentDetail struct {
	Assessment *model.Assessment          `json:"assessment"`
	Responses  []model.AssessmentResponse `json:"responses"`
	Events     []model.IntegrityEvent     `json:"integrityEvents"`
	RiskBand   model.RiskBand             `json:"riskBand"`
}

// GetDetail is the admin view: full response list and integrity log.
func (s *AssessmentService) GetDetail(assessmentID uint) (*AssessmentDetail, error) {
	assessment, err := s.AssessmentRepo.FindByID(assessmentID)
	if err != nil {
		return nil, err
	}
	responses, err := s.AssessmentRepo.ListResponses(assessmentID)
	if err != nil {
		return nil, err
	}
	events, err := s.Integrity.Events(assessmentID)
	if err != nil {
		return nil, err
	}

	return &AssessmentDetail{
		Assessment: assessment,
		Responses:  responses,
		Events:     events,
		RiskBand:   RiskBandFor(assessment.RiskScore),
	}, nil
}

// List pages assessments for the admin surface.
func (s *AssessmentService) List(status, division string, limit, offset int) ([]model.Assessment, int64, error) {
	var st model.AssessmentStatus
	if status != "" {
		st = model.AssessmentStatus(status)
	}
	var div model.Division
	if division != "" {
		parsed, err := model.ParseDivision(division)
		if err != nil {
			return nil, 0, util.ErrInvalidInput
		}
		div = parsed
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.AssessmentRepo.List(st, div, limit, offset)
}

// SweepExpired is the background safety net behind lazy expiry.
func (s *AssessmentService) SweepExpired() {
	count, err := s.AssessmentRepo.SweepExpired(time.Now())
	if err != nil {
		logger.Log.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		monitoring.AssessmentTransitions.WithLabelValues(string(model.StatusExpired)).Add(float64(count))
		logger.Log.Info("Expiry sweep", zap.Int64("expired", count))
	}
}

// loadActive expires the session if overdue, then returns it only when it
// is still in_progress.
func (s *AssessmentService) loadActive(assessmentID uint) (*model.Assessment, error) {
	expiredNow, err := s.AssessmentRepo.ExpireIfDue(assessmentID, time.Now())
	if err != nil {
		return nil, err
	}
	if expiredNow {
		monitoring.AssessmentTransitions.WithLabelValues(string(model.StatusExpired)).Inc()
		logger.Log.Info("Assessment expired on access", zap.Uint("assessmentId", assessmentID))
		return nil, util.ErrExpiredAssessment
	}

	assessment, err := s.AssessmentRepo.FindByID(assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.Status == model.StatusExpired {
		return nil, util.ErrExpiredAssessment
	}
	if assessment.Status != model.StatusInProgress {
		return nil, util.ErrInvalidStateTransition
	}
	return assessment, nil
}

// questionInSet resolves a question and verifies it belongs to the frozen
// draw, so answers to questions outside the set are rejected.
func (s *AssessmentService) questionInSet(assessment *model.Assessment, questionID uint) (*model.Question, error) {
	inSet := false
	for _, id := range assessment.QuestionIDs() {
		if id == questionID {
			inSet = true
			break
		}
	}
	if !inSet {
		return nil, util.ErrQuestionNotFound
	}
	return s.QuestionRepo.FindByID(questionID)
}

func (s *AssessmentService) saveUpload(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", util.ErrInvalidInput
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "recording-*"+filepath.Ext(file.Filename))
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (s *AssessmentService) storeRecording(ctx context.Context, localPath, objectName string, file *multipart.FileHeader) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.Storage.Save(ctx, objectName, src, file.Size, contentType)
}
