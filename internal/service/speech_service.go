package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/pkg/logger"
	"crew_assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// SpeechAnalysis is the provider's verdict on one recording. Fallback marks
// a deterministic stand-in produced after the provider could not be
// reached; those responses are flagged for manual review.
type SpeechAnalysis struct {
	Transcript      string             `json:"transcript"`
	KeywordCoverage float64            `json:"keywordCoverage"`
	SubScores       map[string]float64 `json:"subScores,omitempty"`
	Fallback        bool               `json:"fallback"`
}

// SpeechService calls the external speech-analysis provider. Each attempt
// carries its own timeout; attempts back off with doubling delays. When
// every attempt fails the caller receives a fallback analysis instead of an
// error, so a provider outage never blocks a candidate mid-session.
type SpeechService struct {
	cfg    *config.SpeechConfig
	client *http.Client
	engine *ScoringEngine
}

func NewSpeechService(cfg *config.SpeechConfig, engine *ScoringEngine) *SpeechService {
	return &SpeechService{
		cfg:    cfg,
		client: &http.Client{},
		engine: engine,
	}
}

type providerResponse struct {
	Transcript string             `json:"transcript"`
	Scores     map[string]float64 `json:"scores"`
}

// Analyze transcribes and scores one recording. The returned analysis is
// never nil; check Fallback to see whether the provider actually answered.
func (s *SpeechService) Analyze(ctx context.Context, audioPath string, keywords []string) *SpeechAnalysis {
	start := time.Now()
	defer func() {
		monitoring.SpeechAnalysisDuration.Observe(time.Since(start).Seconds())
	}()

	retries := s.cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		resp, err := s.callProvider(ctx, audioPath)
		if err == nil {
			analysis := &SpeechAnalysis{
				Transcript:      resp.Transcript,
				KeywordCoverage: s.engine.KeywordCoverage(resp.Transcript, keywords),
				SubScores:       resp.Scores,
			}
			return analysis
		}
		lastErr = err

		logger.Log.Warn("Speech analysis attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < retries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				attempt = retries
			}
			backoff *= 2
		}
	}

	monitoring.SpeechAnalysisFailures.Inc()
	logger.Log.Error("Speech analysis exhausted retries, using fallback score",
		zap.Error(lastErr))
	return &SpeechAnalysis{Fallback: true}
}

// FallbackPoints is the deterministic award when no analysis is available:
// half the question's points, pending manual review.
func (s *SpeechService) FallbackPoints(maxPoints int) int {
	return roundHalfUp(float64(maxPoints) * 0.5)
}

func (s *SpeechService) callProvider(ctx context.Context, audioPath string) (*providerResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	defer cancel()

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if s.cfg.Model != "" {
		writer.WriteField("model", s.cfg.Model)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/speech/analyze"
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("speech provider returned %d: %s", resp.StatusCode, string(payload))
	}

	var decoded providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	return &decoded, nil
}
