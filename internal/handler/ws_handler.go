package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/answer"
	"github.com/stemsi/exstem-proctor/internal/camera"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
	"golang.org/x/time/rate"
)

const intentTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionClaims keeps a student to one open session per exam.
type SessionClaims interface {
	Claim(ctx context.Context, examID, studentID, sessionID uuid.UUID) error
	Refresh(ctx context.Context, examID, studentID, sessionID uuid.UUID) (bool, error)
	Release(ctx context.Context, examID, studentID, sessionID uuid.UUID) error
}

// EventSinks hands out a per-student proctor event sink.
type EventSinks interface {
	ForStudent(studentID uuid.UUID) session.EventSink
}

// WSOptions tune the session socket.
type WSOptions struct {
	AllowedOrigins      []string
	CameraTimeout       time.Duration
	SubmitTimeout       time.Duration
	IntentRatePerSecond float64
	IntentBurst         int
	// LeaseInterval is how often the single-session claim is refreshed.
	LeaseInterval time.Duration
}

// WSHandler runs one exam session per student WebSocket.
type WSHandler struct {
	exams    session.ExamRepository
	attempts session.AttemptRepository
	auth     *service.AuthService
	claims   SessionClaims
	sinks    EventSinks
	opts     WSOptions
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*ws.Conn]struct{}
	closing bool
	active  sync.WaitGroup
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	exams session.ExamRepository,
	attempts session.AttemptRepository,
	auth *service.AuthService,
	claims SessionClaims,
	sinks EventSinks,
	opts WSOptions,
	log zerolog.Logger,
) *WSHandler {
	if opts.LeaseInterval <= 0 {
		opts.LeaseInterval = service.SessionLease / 3
	}
	if opts.IntentRatePerSecond <= 0 {
		opts.IntentRatePerSecond = 10
	}
	if opts.IntentBurst <= 0 {
		opts.IntentBurst = 20
	}
	return &WSHandler{
		exams:    exams,
		attempts: attempts,
		auth:     auth,
		claims:   claims,
		sinks:    sinks,
		opts:     opts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(opts.AllowedOrigins),
		conns:    make(map[*ws.Conn]struct{}),
	}
}

// track registers an open socket. It returns false once Shutdown started.
func (h *WSHandler) track(conn *ws.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *WSHandler) untrack(conn *ws.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.active.Done()
}

// Shutdown closes every open session socket and waits until their
// controllers are disposed and in-flight submissions are stored, or ctx ends. http.Server.Shutdown does not
// track hijacked connections, so the server calls this after it.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// socketSignaler carries camera requests for the remote device over the socket.
type socketSignaler struct {
	conn *ws.Conn
}

func (s socketSignaler) RequestCamera(c camera.Constraints) error {
	return s.conn.WriteTyped(ws.CameraRequestEvent{
		Event: ws.EventCameraRequest,
		Constraints: ws.CameraConstraints{
			FacingMode: c.FacingMode,
			Video:      c.Video,
			Audio:      c.Audio,
		},
	})
}

func (s socketSignaler) StopTracks(ids []string) error {
	return s.conn.WriteTyped(ws.CameraStopEvent{Event: ws.EventCameraStop, Tracks: ids})
}

// ExamSession godoc
// WS /ws/v1/student/exams/:exam_id/session?token=...
// The connection is the session: closing it disposes the controller, which
// stops the countdown and releases the camera.
func (h *WSHandler) ExamSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	studentID, err := claims.UserID()
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()
	if !h.track(conn) {
		return
	}
	defer h.untrack(conn)

	sessionID := uuid.New()
	wsLog := response.WithRequestID(c, h.log).With().
		Str("student_id", studentID.String()).
		Str("exam_id", examID.String()).
		Str("session_id", sessionID.String()).
		Logger()

	claimCtx, cancelClaim := context.WithTimeout(context.Background(), intentTimeout)
	err = h.claims.Claim(claimCtx, examID, studentID, sessionID)
	cancelClaim()
	if err != nil {
		code := response.ErrInternal
		if errors.Is(err, service.ErrSessionAlreadyActive) {
			code = response.ErrSessionActive
		} else {
			wsLog.Error().Err(err).Msg("Claim session failed")
		}
		_ = conn.WriteError("", string(code), response.GetMessage(code), nil)
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
		defer cancel()
		if err := h.claims.Release(ctx, examID, studentID, sessionID); err != nil {
			wsLog.Warn().Err(err).Msg("Release session claim failed")
		}
	}()

	device := camera.NewRemoteDevice(socketSignaler{conn: conn}, h.opts.CameraTimeout)
	ctrl := session.New(examID, session.Deps{
		Exams:    h.exams,
		Attempts: h.attempts,
		Identity: h.auth.Identity(claims),
		Camera:   device,
	}, session.Options{
		SessionID:     sessionID,
		Logger:        wsLog,
		Events:        h.sinks.ForStudent(studentID),
		SubmitTimeout: h.opts.SubmitTimeout,
		OnChange: func(s session.Snapshot) {
			if err := conn.WriteTyped(ws.SnapshotEvent{Event: ws.EventSnapshot, Data: s}); err != nil {
				wsLog.Debug().Err(err).Msg("Snapshot write failed")
			}
		},
	})
	ctrl.Open()
	defer ctrl.WaitSubmissions()
	defer ctrl.Dispose()

	wsLog.Info().Msg("Student connected")

	leaseDone := make(chan struct{})
	defer close(leaseDone)
	go h.keepLease(conn, wsLog, leaseDone, examID, studentID, sessionID)

	limiter := rate.NewLimiter(rate.Limit(h.opts.IntentRatePerSecond), h.opts.IntentBurst)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Action == "" {
			h.writeCode(conn, "", response.ErrInvalidPayload, nil)
			continue
		}

		if env.Action == ws.ActionPing {
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
			continue
		}
		// Camera replies answer our own requests and are never throttled.
		if env.Action == ws.ActionCamera {
			h.handleCamera(conn, wsLog, device, ctrl, data)
			continue
		}
		if !limiter.Allow() {
			h.writeCode(conn, env.Action, response.ErrRateLimitExceeded, nil)
			continue
		}

		h.handleIntent(conn, wsLog, ctrl, env.Action, data)
	}
}

// keepLease refreshes the single-session claim and closes the socket when
// the claim is lost, for example after an admin reset.
func (h *WSHandler) keepLease(conn *ws.Conn, log zerolog.Logger, done <-chan struct{}, examID, studentID, sessionID uuid.UUID) {
	ticker := time.NewTicker(h.opts.LeaseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
			held, err := h.claims.Refresh(ctx, examID, studentID, sessionID)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Refresh session claim failed")
				continue
			}
			if !held {
				log.Warn().Msg("Session claim lost, closing connection")
				h.writeCode(conn, "", response.ErrSessionActive, nil)
				_ = conn.Close()
				return
			}
		}
	}
}

func (h *WSHandler) handleCamera(conn *ws.Conn, log zerolog.Logger, device *camera.RemoteDevice, ctrl *session.Controller, data []byte) {
	var req ws.CameraRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.writeCode(conn, ws.ActionCamera, response.ErrInvalidPayload, nil)
		return
	}
	if fields := validator.Struct(req); fields != nil {
		h.writeCode(conn, ws.ActionCamera, response.ErrValidation, fields)
		return
	}

	if device.Resolve(camera.Reply{Status: req.Status, TrackIDs: req.Tracks, Reason: req.Reason}) {
		return
	}

	switch req.Status {
	case ws.CameraEnded:
		ctrl.CameraEnded(req.Reason)
	case ws.CameraGranted:
		// The request already timed out or the session no longer wants
		// the camera; the browser must not keep the stream running.
		log.Debug().Strs("tracks", req.Tracks).Msg("Stopping unsolicited camera grant")
		_ = conn.WriteTyped(ws.CameraStopEvent{Event: ws.EventCameraStop, Tracks: req.Tracks})
	}
}

func (h *WSHandler) handleIntent(conn *ws.Conn, log zerolog.Logger, ctrl *session.Controller, action ws.Action, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	var err error
	switch action {
	case ws.ActionStart:
		err = ctrl.Start(ctx)
	case ws.ActionNext:
		err = ctrl.Next(ctx)
	case ws.ActionPrevious:
		err = ctrl.Previous(ctx)
	case ws.ActionSubmit:
		err = ctrl.Submit(ctx)
	case ws.ActionRetryCamera:
		err = ctrl.RetryCamera(ctx)
	case ws.ActionSelect:
		var req ws.SelectRequest
		if jsonErr := json.Unmarshal(data, &req); jsonErr != nil {
			h.writeCode(conn, action, response.ErrInvalidPayload, nil)
			return
		}
		if fields := validator.Struct(req); fields != nil {
			h.writeCode(conn, action, response.ErrValidation, fields)
			return
		}
		err = ctrl.SelectAnswer(ctx, req.QID, req.Answer)
	case ws.ActionJump:
		var req ws.JumpRequest
		if jsonErr := json.Unmarshal(data, &req); jsonErr != nil {
			h.writeCode(conn, action, response.ErrInvalidPayload, nil)
			return
		}
		if fields := validator.Struct(req); fields != nil {
			h.writeCode(conn, action, response.ErrValidation, fields)
			return
		}
		err = ctrl.Jump(ctx, *req.Index)
	default:
		log.Warn().Str("action", string(action)).Msg("Unknown action")
		h.writeCode(conn, action, response.ErrUnknownAction, nil)
		return
	}

	if err != nil {
		code := intentErrorCode(err)
		if code == response.ErrInternal {
			log.Error().Err(err).Str("action", string(action)).Msg("Intent failed")
		}
		h.writeCode(conn, action, code, nil)
	}
}

func (h *WSHandler) writeCode(conn *ws.Conn, action ws.Action, code response.ErrCode, fields map[string]string) {
	_ = conn.WriteError(action, string(code), response.GetMessage(code), fields)
}

// intentErrorCode maps controller errors to client error codes.
func intentErrorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, session.ErrWrongPhase):
		return response.ErrWrongPhase
	case errors.Is(err, session.ErrCameraNotReady):
		return response.ErrCameraNotReady
	case errors.Is(err, session.ErrAnswerRequired):
		return response.ErrAnswerRequired
	case errors.Is(err, session.ErrNoPreviousQuestion):
		return response.ErrNoPreviousQuestion
	case errors.Is(err, session.ErrIndexOutOfRange):
		return response.ErrIndexOutOfRange
	case errors.Is(err, session.ErrInvalidAnswer):
		return response.ErrInvalidAnswer
	case errors.Is(err, answer.ErrUnknownQuestion):
		return response.ErrUnknownQuestion
	case errors.Is(err, session.ErrDisposed):
		return response.ErrSessionClosed
	default:
		return response.ErrInternal
	}
}
