// Package camera owns the exclusive webcam stream used for proctoring.
package camera

import (
	"context"
	"errors"
)

// Device errors returned by RequestStream.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device available")
)

// Constraints describes the stream being requested.
type Constraints struct {
	FacingMode string `json:"facing_mode"`
	Video      bool   `json:"video"`
	Audio      bool   `json:"audio"`
}

// FrontFacingVideo is the only stream shape the proctoring session asks for.
var FrontFacingVideo = Constraints{FacingMode: "user", Video: true, Audio: false}

// Track is one media track of a granted stream.
type Track interface {
	ID() string
	Stop()
}

// Stream is a granted capture stream.
type Stream interface {
	Tracks() []Track
}

// Device grants or denies capture streams.
type Device interface {
	RequestStream(ctx context.Context, c Constraints) (Stream, error)
}
