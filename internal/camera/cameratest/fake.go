// Package cameratest provides an in-memory camera.Device for tests.
package cameratest

import (
	"context"
	"fmt"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/camera"
)

// Device is a scripted camera.Device. Each RequestStream consumes the next
// queued error (nil grants a one-track stream). With an empty queue it grants.
type Device struct {
	mu       sync.Mutex
	results  []error
	gate     chan struct{}
	requests int
	tracks   []*Track
}

// NewDevice creates a Device that answers requests with errs in order.
func NewDevice(errs ...error) *Device {
	return &Device{results: errs}
}

// Hold makes RequestStream block until Unblock is called.
func (d *Device) Hold() {
	d.mu.Lock()
	d.gate = make(chan struct{})
	d.mu.Unlock()
}

// Unblock releases requests blocked by Hold.
func (d *Device) Unblock() {
	d.mu.Lock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
	d.mu.Unlock()
}

// RequestStream implements camera.Device.
func (d *Device) RequestStream(ctx context.Context, _ camera.Constraints) (camera.Stream, error) {
	d.mu.Lock()
	gate := d.gate
	d.requests++
	var err error
	if len(d.results) > 0 {
		err = d.results[0]
		d.results = d.results[1:]
	}
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", camera.ErrNoDevice, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	t := &Track{id: fmt.Sprintf("video-%d", len(d.tracks))}
	d.tracks = append(d.tracks, t)
	return stream{tracks: []camera.Track{t}}, nil
}

// Requests returns how many streams were requested.
func (d *Device) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}

// LiveTracks counts granted tracks that have not been stopped.
func (d *Device) LiveTracks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.tracks {
		if t.Live() {
			n++
		}
	}
	return n
}

// Tracks returns every track ever granted, in grant order.
func (d *Device) Tracks() []*Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Track(nil), d.tracks...)
}

// Granted counts every track ever granted.
func (d *Device) Granted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tracks)
}

type stream struct {
	tracks []camera.Track
}

func (s stream) Tracks() []camera.Track { return s.tracks }

// Track is a fake video track.
type Track struct {
	mu      sync.Mutex
	id      string
	stopped int
}

// ID implements camera.Track.
func (t *Track) ID() string { return t.id }

// Stop implements camera.Track.
func (t *Track) Stop() {
	t.mu.Lock()
	t.stopped++
	t.mu.Unlock()
}

// Live reports whether Stop has not been called.
func (t *Track) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped == 0
}

// StopCount reports how many times Stop was called.
func (t *Track) StopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
