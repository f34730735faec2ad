package service

import (
	"time"

	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/repository"
	"crew_assessment_backend/pkg/logger"
	"crew_assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// eventWeight is the per-occurrence score and the per-category ceiling for
// one event kind. Categories cap so one noisy signal cannot dominate.
type eventWeight struct {
	points int
	cap    int
}

var integrityWeights = map[model.IntegrityEventKind]eventWeight{
	model.EventOriginChange: {points: 40, cap: 40},
	model.EventAgentChange:  {points: 30, cap: 30},
	model.EventTabSwitch:    {points: 5, cap: 20},
	model.EventClipboard:    {points: 3, cap: 15},
	model.EventOtherAnomaly: {points: 10, cap: 20},
}

const maxRiskScore = 100

// IntegrityService records behavioral signals during a session and keeps
// the assessment's risk score current. Events are append-only; the score is
// always recomputed from the full event list, never incremented in place.
type IntegrityService struct {
	AssessmentRepo *repository.AssessmentRepository
	EventRepo      *repository.IntegrityEventRepository
}

func NewIntegrityService(assessmentRepo *repository.AssessmentRepository, eventRepo *repository.IntegrityEventRepository) *IntegrityService {
	return &IntegrityService{
		AssessmentRepo: assessmentRepo,
		EventRepo:      eventRepo,
	}
}

// ComputeRiskScore folds an event list into a score in [0, 100]. Adding an
// event never lowers the score.
func ComputeRiskScore(events []model.IntegrityEvent) int {
	perKind := make(map[model.IntegrityEventKind]int, len(integrityWeights))
	for _, ev := range events {
		w, ok := integrityWeights[ev.Kind]
		if !ok {
			continue
		}
		if perKind[ev.Kind]+w.points > w.cap {
			perKind[ev.Kind] = w.cap
		} else {
			perKind[ev.Kind] += w.points
		}
	}

	total := 0
	for _, v := range perKind {
		total += v
	}
	if total > maxRiskScore {
		total = maxRiskScore
	}
	return total
}

// RiskBandFor names the severity tier of a score.
func RiskBandFor(score int) model.RiskBand {
	switch {
	case score <= 0:
		return model.BandClean
	case score < 20:
		return model.BandLow
	case score < 40:
		return model.BandMedium
	case score < 70:
		return model.BandHigh
	default:
		return model.BandCritical
	}
}

// Observe compares the request fingerprint to the last one seen and records
// one event per distinct change. A client that flips to a new IP and stays
// there produces a single origin-change event, not one per request.
func (s *IntegrityService) Observe(assessment *model.Assessment, ip, agent string) error {
	if assessment.Status != model.StatusInProgress {
		return nil
	}

	changed := false
	if ip != "" && assessment.LastIP != "" && ip != assessment.LastIP {
		if err := s.appendEvent(assessment.ID, model.EventOriginChange, "client address changed from "+assessment.LastIP); err != nil {
			return err
		}
		changed = true
	}
	if agent != "" && assessment.LastAgent != "" && agent != assessment.LastAgent {
		if err := s.appendEvent(assessment.ID, model.EventAgentChange, "user agent changed"); err != nil {
			return err
		}
		changed = true
	}

	if !changed {
		return nil
	}

	if err := s.AssessmentRepo.UpdateFingerprint(assessment.ID, ip, agent); err != nil {
		return err
	}
	assessment.LastIP = ip
	assessment.LastAgent = agent

	return s.refreshRiskScore(assessment.ID)
}

// RecordEvent stores one client-reported signal and refreshes the score.
// Kind must already be validated as reportable.
func (s *IntegrityService) RecordEvent(assessmentID uint, kind model.IntegrityEventKind, detail string) (int, error) {
	if err := s.appendEvent(assessmentID, kind, detail); err != nil {
		return 0, err
	}
	if err := s.refreshRiskScore(assessmentID); err != nil {
		return 0, err
	}

	events, err := s.EventRepo.ListByAssessment(assessmentID)
	if err != nil {
		return 0, err
	}
	return ComputeRiskScore(events), nil
}

func (s *IntegrityService) Events(assessmentID uint) ([]model.IntegrityEvent, error) {
	return s.EventRepo.ListByAssessment(assessmentID)
}

// FlagForReview marks an assessment for manual review. Independent of the
// computed score: a reviewer can flag a clean session and a critical score
// does not flag by itself.
func (s *IntegrityService) FlagForReview(assessmentID uint, reason string) error {
	return s.AssessmentRepo.FlagForReview(assessmentID, reason, time.Now())
}

func (s *IntegrityService) appendEvent(assessmentID uint, kind model.IntegrityEventKind, detail string) error {
	event := &model.IntegrityEvent{
		AssessmentID: assessmentID,
		Kind:         kind,
		Detail:       detail,
	}
	if err := s.EventRepo.Append(event); err != nil {
		return err
	}

	monitoring.IntegrityEvents.WithLabelValues(string(kind)).Inc()
	logger.Log.Info("Integrity event recorded",
		zap.Uint("assessmentId", assessmentID),
		zap.String("kind", string(kind)))
	return nil
}

func (s *IntegrityService) refreshRiskScore(assessmentID uint) error {
	events, err := s.EventRepo.ListByAssessment(assessmentID)
	if err != nil {
		return err
	}
	return s.AssessmentRepo.UpdateRiskScore(assessmentID, ComputeRiskScore(events))
}
