package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"crew_assessment_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answer.webm")
	require.NoError(t, os.WriteFile(path, []byte("not real audio"), 0644))
	return path
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("audio")
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcript":"please stay calm and walk to the muster station on deck","scores":{"fluency":0.8}}`))
	}))
	defer server.Close()

	engine := NewScoringEngine(testAssessmentConfig())
	speech := NewSpeechService(&config.SpeechConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
		MaxRetries:     1,
	}, engine)

	analysis := speech.Analyze(context.Background(), writeTestRecording(t), []string{"muster", "calm", "deck", "life jacket"})
	require.NotNil(t, analysis)
	assert.False(t, analysis.Fallback)
	assert.Equal(t, "please stay calm and walk to the muster station on deck", analysis.Transcript)
	assert.InDelta(t, 0.75, analysis.KeywordCoverage, 0.001)
	assert.Equal(t, 0.8, analysis.SubScores["fluency"])
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestAnalyzeFallsBackAfterRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	engine := NewScoringEngine(testAssessmentConfig())
	speech := NewSpeechService(&config.SpeechConfig{
		BaseURL:        server.URL,
		TimeoutSeconds: 1,
		MaxRetries:     2,
	}, engine)

	analysis := speech.Analyze(context.Background(), writeTestRecording(t), []string{"muster"})
	require.NotNil(t, analysis)
	assert.True(t, analysis.Fallback)
	assert.Empty(t, analysis.Transcript)
	assert.Equal(t, 2, attempts)
}

func TestAnalyzeFallsBackOnUnreachableProvider(t *testing.T) {
	engine := NewScoringEngine(testAssessmentConfig())
	speech := NewSpeechService(&config.SpeechConfig{
		BaseURL:        "http://127.0.0.1:1",
		TimeoutSeconds: 1,
		MaxRetries:     1,
	}, engine)

	analysis := speech.Analyze(context.Background(), writeTestRecording(t), nil)
	require.NotNil(t, analysis)
	assert.True(t, analysis.Fallback)
}

func TestFallbackPoints(t *testing.T) {
	engine := NewScoringEngine(testAssessmentConfig())
	speech := NewSpeechService(&config.SpeechConfig{}, engine)

	assert.Equal(t, 10, speech.FallbackPoints(20))
	// 7 * 0.5 = 3.5 rounds up.
	assert.Equal(t, 4, speech.FallbackPoints(7))
}
