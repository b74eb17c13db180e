// Package metrics exposes Prometheus collectors for the proctoring service.
package metrics

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
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_sessions_active",
			Help: "Exam-taking sessions currently open",
		},
	)

	PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_session_phase_transitions_total",
			Help: "Session phase transitions by target phase",
		},
		[]string{"phase"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Attempt submissions by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	CameraAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_camera_acquisitions_total",
			Help: "Camera acquisition results by status",
		},
		[]string{"status"},
	)
)

// Init registers every collector with the default registry. Call once.
func Init() {
	prometheus.MustRegister(
		RequestCounter,
		RequestDuration,
		ActiveSessions,
		PhaseTransitions,
		Submissions,
		CameraAcquisitions,
	)
}

// Middleware records request count and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
