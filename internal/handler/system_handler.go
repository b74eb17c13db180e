package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SystemHandler reports process health.
type SystemHandler struct {
	deps      map[string]Pinger
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a SystemHandler probing deps by name.
func NewSystemHandler(deps map[string]Pinger, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		deps:      deps,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status: "ok",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
		Checks: make(map[string]string, len(h.deps)),
	}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			report.Checks[name] = "down"
			report.Status = "degraded"
			continue
		}
		report.Checks[name] = "up"
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
