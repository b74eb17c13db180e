package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/camera"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// CameraState is the camera part of a snapshot.
type CameraState struct {
	Status camera.Status `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// Snapshot is a read-only copy of the attempt state handed to the
// presentation layer.
type Snapshot struct {
	SessionID           uuid.UUID            `json:"session_id"`
	ExamID              uuid.UUID            `json:"exam_id"`
	StudentID           *uuid.UUID           `json:"student_id,omitempty"`
	AttemptID           *uuid.UUID           `json:"attempt_id,omitempty"`
	Title               string               `json:"title"`
	DurationMinutes     int                  `json:"duration_minutes"`
	Phase               Phase                `json:"phase"`
	Questions           []model.QuestionView `json:"questions"`
	CurrentIndex        int                  `json:"current_index"`
	SecondsRemaining    int                  `json:"seconds_remaining"`
	TimeLeft            string               `json:"time_left"`
	Answers             map[string]string    `json:"answers"`
	AnsweredCount       int                  `json:"answered_count"`
	Progress            float64              `json:"progress"`
	SubmissionAttempted bool                 `json:"submission_attempted"`
	Camera              CameraState          `json:"camera"`
	Failure             *Failure             `json:"failure,omitempty"`
}

// CurrentQuestion returns the question at CurrentIndex, if loaded.
func (s Snapshot) CurrentQuestion() (model.QuestionView, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return model.QuestionView{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// FormatClock renders seconds as HH:MM:SS.
func FormatClock(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// snapshot builds a Snapshot from loop-owned state. Loop goroutine only.
func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		SessionID:           c.id,
		ExamID:              c.examID,
		StudentID:           c.studentID,
		AttemptID:           c.attemptID,
		Phase:               c.phase,
		CurrentIndex:        c.currentIndex,
		SecondsRemaining:    c.secondsRemaining,
		TimeLeft:            FormatClock(c.secondsRemaining),
		SubmissionAttempted: c.submissionAttempted,
		Camera:              CameraState{Status: c.camStatus, Reason: c.camReason},
		Answers:             map[string]string{},
	}
	if c.failure != nil {
		f := *c.failure
		s.Failure = &f
	}
	if c.exam == nil {
		return s
	}

	s.Title = c.exam.Title
	s.DurationMinutes = c.exam.DurationMinutes
	s.Answers = c.store.Snapshot()
	s.AnsweredCount = c.store.Len()
	s.Progress = c.store.Progress(c.currentIndex)
	s.Questions = make([]model.QuestionView, len(c.exam.Questions))
	for i, q := range c.exam.Questions {
		v := q.View(i)
		v.Answered = c.store.Has(q.ID)
		s.Questions[i] = v
	}
	return s
}
