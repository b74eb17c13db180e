package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctorEventKind enumerates what a proctor event reports.
type ProctorEventKind string

const (
	ProctorEventPhase             ProctorEventKind = "PHASE"
	ProctorEventCameraReady       ProctorEventKind = "CAMERA_READY"
	ProctorEventCameraDenied      ProctorEventKind = "CAMERA_DENIED"
	ProctorEventCameraUnavailable ProctorEventKind = "CAMERA_UNAVAILABLE"
	ProctorEventCameraEnded       ProctorEventKind = "CAMERA_ENDED"
	ProctorEventCameraReleased    ProctorEventKind = "CAMERA_RELEASED"
)

// ProctorEvent is a session observation forwarded to the live monitor and
// persisted for later review.
type ProctorEvent struct {
	SessionID  uuid.UUID        `json:"session_id"`
	ExamID     uuid.UUID        `json:"exam_id"`
	StudentID  *uuid.UUID       `json:"student_id,omitempty"`
	Kind       ProctorEventKind `json:"kind"`
	Detail     string           `json:"detail,omitempty"`
	RecordedAt time.Time        `json:"recorded_at"`
}
