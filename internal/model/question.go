package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// QuestionKind enumerates the supported question variants.
type QuestionKind string

const (
	QuestionKindMultipleChoice QuestionKind = "mcq"
	QuestionKindFreeAnswer     QuestionKind = "answerable"
)

// MaxOptions is the number of option slots an authored question can fill.
const MaxOptions = 4

// Question parse errors.
var (
	ErrUnknownQuestionKind = errors.New("unknown question type")
	ErrNoOptions           = errors.New("multiple-choice question has no options")
	ErrDuplicateQuestionID = errors.New("duplicate question id")
)

// QuestionBody is the variant part of a question. It is implemented only by
// MultipleChoice and FreeAnswer.
type QuestionBody interface {
	Kind() QuestionKind
	sealed()
}

// MultipleChoice is a question answered by picking one lettered option.
type MultipleChoice struct {
	Options       []string
	CorrectLetter string
}

func (MultipleChoice) Kind() QuestionKind { return QuestionKindMultipleChoice }
func (MultipleChoice) sealed()            {}

// HasLetter reports whether letter names one of the options.
func (m MultipleChoice) HasLetter(letter string) bool {
	for i := range m.Options {
		if OptionLetter(i) == letter {
			return true
		}
	}
	return false
}

// FreeAnswer is a question answered with free text.
type FreeAnswer struct {
	ExpectedText string
}

func (FreeAnswer) Kind() QuestionKind { return QuestionKindFreeAnswer }
func (FreeAnswer) sealed()            {}

// Question is a single exam question. Body is never nil for a parsed question.
type Question struct {
	ID    string
	Text  string
	Marks float64
	Body  QuestionBody
}

// Kind returns the variant of the question.
func (q Question) Kind() QuestionKind { return q.Body.Kind() }

// AcceptsAnswer reports whether value is a well-formed answer for q.
// Multiple-choice answers must be one of the option letters; free answers
// accept any non-blank text.
func (q Question) AcceptsAnswer(value string) bool {
	switch b := q.Body.(type) {
	case MultipleChoice:
		return b.HasLetter(value)
	case FreeAnswer:
		return strings.TrimSpace(value) != ""
	default:
		return false
	}
}

// OptionLetter maps a zero-based option index to its letter.
func OptionLetter(i int) string {
	return string(rune('A' + i))
}

// RawQuestion is the authoring format stored in the exams.questions JSONB column.
type RawQuestion struct {
	ID            string   `json:"id,omitempty"`
	QuestionText  string   `json:"question_text"`
	Type          string   `json:"type"`
	OptionA       *string  `json:"option_a,omitempty"`
	OptionB       *string  `json:"option_b,omitempty"`
	OptionC       *string  `json:"option_c,omitempty"`
	OptionD       *string  `json:"option_d,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	Marks         *float64 `json:"marks,omitempty"`
}

// ParseQuestions decodes the authoring JSON into ordered questions.
func ParseQuestions(raw json.RawMessage) ([]Question, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []RawQuestion
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	questions := make([]Question, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		q, err := item.toQuestion(i)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("question %d: %w: %s", i, ErrDuplicateQuestionID, q.ID)
		}
		seen[q.ID] = struct{}{}
		questions = append(questions, q)
	}
	return questions, nil
}

func (r RawQuestion) toQuestion(index int) (Question, error) {
	q := Question{
		ID:    strings.TrimSpace(r.ID),
		Text:  r.QuestionText,
		Marks: 1,
	}
	if q.ID == "" {
		q.ID = fmt.Sprintf("q-%d", index)
	}
	if r.Marks != nil && *r.Marks > 0 {
		q.Marks = *r.Marks
	}

	switch QuestionKind(strings.ToLower(strings.TrimSpace(r.Type))) {
	case QuestionKindMultipleChoice, "":
		// Rows written before the type column existed are multiple-choice.
		options := make([]string, 0, MaxOptions)
		for _, opt := range []*string{r.OptionA, r.OptionB, r.OptionC, r.OptionD} {
			if opt == nil || strings.TrimSpace(*opt) == "" {
				continue
			}
			options = append(options, *opt)
		}
		if len(options) == 0 {
			return Question{}, ErrNoOptions
		}
		q.Body = MultipleChoice{
			Options:       options,
			CorrectLetter: strings.ToUpper(strings.TrimSpace(r.CorrectAnswer)),
		}
	case QuestionKindFreeAnswer:
		q.Body = FreeAnswer{ExpectedText: r.CorrectAnswer}
	default:
		return Question{}, fmt.Errorf("%w: %q", ErrUnknownQuestionKind, r.Type)
	}
	return q, nil
}

// OptionView is one rendered option of a multiple-choice question.
type OptionView struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// QuestionView is a question as sent to students (no correct answer).
type QuestionView struct {
	ID       string       `json:"id"`
	Number   int          `json:"number"`
	Text     string       `json:"question_text"`
	Kind     QuestionKind `json:"type"`
	Options  []OptionView `json:"options,omitempty"`
	Marks    float64      `json:"marks"`
	Answered bool         `json:"answered"`
}

// View builds the student-facing view of q at position index.
func (q Question) View(index int) QuestionView {
	v := QuestionView{
		ID:     q.ID,
		Number: index + 1,
		Text:   q.Text,
		Kind:   q.Kind(),
		Marks:  q.Marks,
	}
	if mc, ok := q.Body.(MultipleChoice); ok {
		v.Options = make([]OptionView, len(mc.Options))
		for i, opt := range mc.Options {
			v.Options[i] = OptionView{Letter: OptionLetter(i), Text: opt}
		}
	}
	return v
}
