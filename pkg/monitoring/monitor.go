package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AssessmentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_transitions_total",
			Help: "Assessment lifecycle transitions by target status",
		},
		[]string{"status"},
	)

	ResponsesScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_responses_scored_total",
			Help: "Graded responses by module and correctness",
		},
		[]string{"module", "correct"},
	)

	IntegrityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_events_total",
			Help: "Recorded integrity events by kind",
		},
		[]string{"kind"},
	)

	SpeechAnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "speech_analysis_duration_seconds",
			Help:    "End-to-end latency of speech analysis calls, retries included",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
	)

	SpeechAnalysisFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "speech_analysis_failures_total",
			Help: "Speech analysis calls that exhausted retries and fell back",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AssessmentTransitions)
	prometheus.MustRegister(ResponsesScored)
	prometheus.MustRegister(IntegrityEvents)
	prometheus.MustRegister(SpeechAnalysisDuration)
	prometheus.MustRegister(SpeechAnalysisFailures)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
