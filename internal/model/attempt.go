package model

import (
	"time"

	"github.com/google/uuid"
)

// PlaceholderScore is stored on every attempt; grading happens elsewhere.
const PlaceholderScore float64 = 0

// Attempt is one student's submitted answers for one exam.
type Attempt struct {
	ID          uuid.UUID         `json:"id"`
	ExamID      uuid.UUID         `json:"exam_id"`
	StudentID   uuid.UUID         `json:"student_id"`
	Answers     map[string]string `json:"answers"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Score       float64           `json:"score"`
}
