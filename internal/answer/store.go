// Package answer holds the in-progress responses of one attempt.
package answer

import (
	"errors"
	"strings"
)

// ErrUnknownQuestion is returned when an answer targets a question that is
// not part of the exam.
var ErrUnknownQuestion = errors.New("question is not part of this exam")

// Store maps question ids to the chosen letter or free text. Only ids given
// to NewStore are accepted. A Store is not safe for concurrent use; the
// session controller is its only caller.
type Store struct {
	valid   map[string]struct{}
	count   int
	answers map[string]string
}

// NewStore creates an empty Store for the given question ids.
func NewStore(questionIDs []string) *Store {
	valid := make(map[string]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		valid[id] = struct{}{}
	}
	return &Store{
		valid:   valid,
		count:   len(questionIDs),
		answers: make(map[string]string, len(questionIDs)),
	}
}

// Set upserts the answer for questionID. The last write wins. A blank value
// clears the answer so the question reads as unanswered again.
func (s *Store) Set(questionID, value string) error {
	if _, ok := s.valid[questionID]; !ok {
		return ErrUnknownQuestion
	}
	if strings.TrimSpace(value) == "" {
		delete(s.answers, questionID)
		return nil
	}
	s.answers[questionID] = value
	return nil
}

// Has reports whether questionID has an answer.
func (s *Store) Has(questionID string) bool {
	_, ok := s.answers[questionID]
	return ok
}

// Get returns the answer for questionID.
func (s *Store) Get(questionID string) (string, bool) {
	v, ok := s.answers[questionID]
	return v, ok
}

// Len returns the number of answered questions.
func (s *Store) Len() int { return len(s.answers) }

// QuestionCount returns the number of questions the store accepts.
func (s *Store) QuestionCount() int { return s.count }

// Progress returns (currentIndex+1)/questionCount, for display only.
func (s *Store) Progress(currentIndex int) float64 {
	if s.count == 0 {
		return 0
	}
	return float64(currentIndex+1) / float64(s.count)
}

// Snapshot returns a copy of the answers.
func (s *Store) Snapshot() map[string]string {
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}
