package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Phase is the state of the session state machine.
type Phase string

const (
	PhaseInitializing    Phase = "INITIALIZING"
	PhaseAwaitingConsent Phase = "AWAITING_CONSENT"
	PhaseInProgress      Phase = "IN_PROGRESS"
	PhaseSubmitting      Phase = "SUBMITTING"
	PhaseCompleted       Phase = "COMPLETED"
	PhaseFailed          Phase = "FAILED"
)

// Terminal reports whether no further transition can happen without a
// user-initiated retry.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// FailureKind classifies why a session is in PhaseFailed.
type FailureKind string

const (
	FailureLoad       FailureKind = "LOAD_FAILURE"
	FailureSubmission FailureKind = "SUBMISSION_FAILURE"
)

// Failure describes a failed session. Retryable failures accept Submit.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Reason    string      `json:"reason"`
	Retryable bool        `json:"retryable"`
}

// Collaborator errors.
var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Intent errors returned to the presentation layer.
var (
	ErrWrongPhase         = errors.New("action not allowed in the current phase")
	ErrCameraNotReady     = errors.New("camera is not ready")
	ErrAnswerRequired     = errors.New("current question must be answered first")
	ErrNoPreviousQuestion = errors.New("already at the first question")
	ErrIndexOutOfRange    = errors.New("question index out of range")
	ErrInvalidAnswer      = errors.New("answer is not valid for this question")
	ErrDisposed           = errors.New("session is closed")
)

// ExamRepository loads an exam with its ordered questions.
type ExamRepository interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
}

// AttemptRepository stores one submitted attempt.
type AttemptRepository interface {
	InsertAttempt(ctx context.Context, a *model.Attempt) error
}

// IdentityProvider resolves the student taking the exam.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (uuid.UUID, error)
}

// EventSink receives proctor events. Record must not block for long; it is
// called from the session's event loop.
type EventSink interface {
	Record(ev model.ProctorEvent)
}
