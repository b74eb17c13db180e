package camera

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Status is the readiness of the camera resource.
type Status string

const (
	StatusIdle        Status = "IDLE"
	StatusPending     Status = "PENDING"
	StatusReady       Status = "READY"
	StatusDenied      Status = "DENIED"
	StatusUnavailable Status = "UNAVAILABLE"
)

// Result is the outcome of one acquisition.
type Result struct {
	Status Status
	Handle *Handle
	Reason string
}

// Handle is a live grant of the capture device. Release stops every track.
type Handle struct {
	mu       sync.Mutex
	stream   Stream
	released bool
}

// Release stops all tracks. Calling it again is a no-op.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	for _, t := range h.stream.Tracks() {
		t.Stop()
	}
}

// Live reports whether the handle still holds running tracks.
func (h *Handle) Live() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.released
}

// Manager acquires and releases the single camera handle of a session.
// It is safe for concurrent use; Close may race with an in-flight Acquire.
type Manager struct {
	device Device
	log    zerolog.Logger

	mu     sync.Mutex
	handle *Handle
	status Status
	reason string
	closed bool
}

// NewManager creates a Manager over device.
func NewManager(device Device, log zerolog.Logger) *Manager {
	return &Manager{
		device: device,
		log:    log.With().Str("component", "camera").Logger(),
		status: StatusIdle,
	}
}

// Acquire requests a front-facing video-only stream. It never retries on its
// own; a caller that wants another try calls Acquire again. A stream granted
// after Close is stopped immediately and reported as Unavailable.
func (m *Manager) Acquire(ctx context.Context) Result {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{Status: StatusUnavailable, Reason: "session closed"}
	}
	if m.handle.Live() {
		res := Result{Status: StatusReady, Handle: m.handle}
		m.mu.Unlock()
		return res
	}
	m.status = StatusPending
	m.reason = ""
	m.mu.Unlock()

	stream, err := m.device.RequestStream(ctx, FrontFacingVideo)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		res := classify(err)
		if !m.closed {
			m.status, m.reason = res.Status, res.Reason
		}
		m.log.Warn().Err(err).Str("status", string(res.Status)).Msg("Camera acquisition failed")
		return res
	}

	h := &Handle{stream: stream}
	if m.closed {
		h.Release()
		m.log.Debug().Msg("Stream granted after close, stopped")
		return Result{Status: StatusUnavailable, Reason: "session closed"}
	}

	m.handle = h
	m.status = StatusReady
	m.reason = ""
	m.log.Info().Int("tracks", len(stream.Tracks())).Msg("Camera ready")
	return Result{Status: StatusReady, Handle: h}
}

// Release stops the current handle, if any. It leaves the manager usable for
// a later Acquire.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

// Close releases the handle and refuses every later acquisition.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.releaseLocked()
}

// MarkEnded records that the device stopped the stream on its own (the
// student revoked permission or unplugged the camera).
func (m *Manager) MarkEnded(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return
	}
	m.releaseLocked()
	m.status = StatusUnavailable
	m.reason = reason
}

func (m *Manager) releaseLocked() {
	if m.handle == nil {
		return
	}
	m.handle.Release()
	m.handle = nil
	if m.status == StatusReady {
		m.status = StatusIdle
	}
	m.log.Debug().Msg("Camera released")
}

// Status returns the current readiness and the last failure reason.
func (m *Manager) Status() (Status, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.reason
}

// Live reports whether a handle is currently held.
func (m *Manager) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle.Live()
}

func classify(err error) Result {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return Result{Status: StatusDenied, Reason: err.Error()}
	case errors.Is(err, ErrNoDevice):
		return Result{Status: StatusUnavailable, Reason: err.Error()}
	default:
		return Result{Status: StatusUnavailable, Reason: err.Error()}
	}
}
