package camera

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Reply statuses sent by the client that owns the physical camera.
const (
	ReplyGranted     = "granted"
	ReplyDenied      = "denied"
	ReplyUnavailable = "unavailable"
	ReplyEnded       = "ended"
)

// Signaler carries camera requests to the remote client.
type Signaler interface {
	RequestCamera(c Constraints) error
	StopTracks(trackIDs []string) error
}

// Reply is the client's answer to a camera request.
type Reply struct {
	Status   string
	TrackIDs []string
	Reason   string
}

// RemoteDevice is a Device whose camera lives on the other end of a
// connection. RequestStream signals the client and waits for Resolve.
type RemoteDevice struct {
	sig     Signaler
	timeout time.Duration

	mu      sync.Mutex
	pending chan Reply
}

// NewRemoteDevice creates a RemoteDevice. A zero timeout waits until ctx ends.
func NewRemoteDevice(sig Signaler, timeout time.Duration) *RemoteDevice {
	return &RemoteDevice{sig: sig, timeout: timeout}
}

// RequestStream implements Device.
func (d *RemoteDevice) RequestStream(ctx context.Context, c Constraints) (Stream, error) {
	ch := make(chan Reply, 1)
	d.mu.Lock()
	d.pending = ch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.pending == ch {
			d.pending = nil
		}
		d.mu.Unlock()
	}()

	if err := d.sig.RequestCamera(c); err != nil {
		return nil, fmt.Errorf("%w: signal client: %v", ErrNoDevice, err)
	}

	var timeout <-chan time.Time
	if d.timeout > 0 {
		t := time.NewTimer(d.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-ch:
		switch r.Status {
		case ReplyGranted:
			if len(r.TrackIDs) == 0 {
				return nil, fmt.Errorf("%w: stream has no video track", ErrNoDevice)
			}
			return newRemoteStream(d.sig, r.TrackIDs), nil
		case ReplyDenied:
			return nil, withReason(ErrPermissionDenied, r.Reason)
		default:
			return nil, withReason(ErrNoDevice, r.Reason)
		}
	case <-timeout:
		return nil, fmt.Errorf("%w: client did not answer within %s", ErrNoDevice, d.timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, ctx.Err())
	}
}

// Resolve hands the client's reply to the waiting RequestStream. It returns
// false when no request is outstanding.
func (d *RemoteDevice) Resolve(r Reply) bool {
	d.mu.Lock()
	ch := d.pending
	d.pending = nil
	d.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- r
	return true
}

func withReason(err error, reason string) error {
	if reason == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, reason)
}

type remoteStream struct {
	tracks []Track
}

func newRemoteStream(sig Signaler, ids []string) *remoteStream {
	s := &remoteStream{tracks: make([]Track, len(ids))}
	for i, id := range ids {
		s.tracks[i] = &remoteTrack{id: id, sig: sig}
	}
	return s
}

func (s *remoteStream) Tracks() []Track { return s.tracks }

type remoteTrack struct {
	id   string
	sig  Signaler
	once sync.Once
}

func (t *remoteTrack) ID() string { return t.id }

// Stop tells the client to stop the track. Send errors are ignored: a dead
// connection means the client already tore the stream down.
func (t *remoteTrack) Stop() {
	t.once.Do(func() {
		_ = t.sig.StopTracks([]string{t.id})
	})
}
