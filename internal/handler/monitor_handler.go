package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// Subscriber streams raw messages published on a channel until the returned
// close function is called.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan string, func())
}

// RedisSubscriber implements Subscriber with Redis Pub/Sub.
type RedisSubscriber struct {
	rdb *redis.Client
}

// NewRedisSubscriber wraps rdb.
func NewRedisSubscriber(rdb *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{rdb: rdb}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, channel string) (<-chan string, func()) {
	pubsub := s.rdb.Subscribe(ctx, channel)
	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }
}

// MonitorSource provides the persisted progress of an exam.
type MonitorSource interface {
	GetProgress(ctx context.Context, examID uuid.UUID) (*service.MonitorProgress, error)
}

// TitleSource resolves an exam title.
type TitleSource interface {
	GetTitle(ctx context.Context, examID uuid.UUID) (string, error)
}

type MonitorHandler struct {
	sub      Subscriber
	exams    TitleSource
	progress MonitorSource
	log      zerolog.Logger

	refreshEvery   time.Duration
	keepAliveEvery time.Duration
}

func NewMonitorHandler(sub Subscriber, exams TitleSource, progress MonitorSource, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sub:            sub,
		exams:          exams,
		progress:       progress,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		refreshEvery:   refreshInterval,
		keepAliveEvery: keepAliveInterval,
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
// Streams proctor events of every open session as they happen.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	title, err := h.exams.GetTitle(reqCtx, examID)
	if err != nil {
		if errors.Is(err, session.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		log := response.WithRequestID(c, h.log)
		log.Error().Err(err).Str("exam_id", examID.String()).Msg("Monitor exam lookup failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Subscribe before the snapshot so no event falls between them.
	ch, closeSub := h.sub.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer closeSub()

	h.sendSnapshot(c, reqCtx, examID, title)

	keepAliveTicker := time.NewTicker(h.keepAliveEvery)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(h.refreshEvery)
	defer refreshTicker.Stop()

	// Skip refresh queries until some session has reported in.
	active := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward them untouched.
			writeSSEData(c, []byte(`{"type":"event","data":`+msg+`}`))
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			h.sendRefresh(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *MonitorHandler) fetchProgress(parent context.Context, examID uuid.UUID) *service.MonitorProgress {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	p, err := h.progress.GetProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to fetch monitor progress")
		return nil
	}
	return p
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, ctx context.Context, examID uuid.UUID, title string) {
	data := map[string]interface{}{
		"exam": map[string]interface{}{
			"id":    examID.String(),
			"title": title,
		},
	}
	if p := h.fetchProgress(ctx, examID); p != nil {
		data["progress"] = p
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": data,
	})
	c.Writer.Flush()
}

func (h *MonitorHandler) sendRefresh(c *gin.Context, ctx context.Context, examID uuid.UUID) {
	p := h.fetchProgress(ctx, examID)
	if p == nil {
		return
	}
	c.SSEvent("message", map[string]interface{}{
		"type": "refresh",
		"data": p,
	})
	c.Writer.Flush()
}
