package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exam is an authored exam with its ordered question list.
// Nothing in the exam-taking path writes to an Exam.
type Exam struct {
	ID              uuid.UUID
	Title           string
	DurationMinutes int
	Questions       []Question
	IsActive        bool
	CreatedAt       time.Time
}

// DurationSeconds is the countdown length for one attempt.
func (e *Exam) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// QuestionIDs returns the question ids in exam order.
func (e *Exam) QuestionIDs() []string {
	ids := make([]string, len(e.Questions))
	for i, q := range e.Questions {
		ids[i] = q.ID
	}
	return ids
}

// ExamRecord is the storage/cache shape of an exam. Questions stay in the
// authoring JSON format so the row can be cached verbatim.
type ExamRecord struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	DurationMinutes int             `json:"duration_minutes"`
	Questions       json.RawMessage `json:"questions"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ToExam parses the record's questions into an Exam.
func (r *ExamRecord) ToExam() (*Exam, error) {
	questions, err := ParseQuestions(r.Questions)
	if err != nil {
		return nil, err
	}
	return &Exam{
		ID:              r.ID,
		Title:           r.Title,
		DurationMinutes: r.DurationMinutes,
		Questions:       questions,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt,
	}, nil
}

// ExamIntro is the summary shown on the consent screen.
type ExamIntro struct {
	ExamID          uuid.UUID `json:"exam_id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	QuestionCount   int       `json:"question_count"`
	MultipleChoice  int       `json:"multiple_choice_count"`
	FreeAnswer      int       `json:"free_answer_count"`
	TotalMarks      float64   `json:"total_marks"`
}

// Intro summarises the exam for the consent screen.
func (e *Exam) Intro() ExamIntro {
	intro := ExamIntro{
		ExamID:          e.ID,
		Title:           e.Title,
		DurationMinutes: e.DurationMinutes,
		QuestionCount:   len(e.Questions),
	}
	for _, q := range e.Questions {
		switch q.Kind() {
		case QuestionKindMultipleChoice:
			intro.MultipleChoice++
		case QuestionKindFreeAnswer:
			intro.FreeAnswer++
		}
		intro.TotalMarks += q.Marks
	}
	return intro
}
