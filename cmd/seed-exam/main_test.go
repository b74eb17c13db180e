package main

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDecodeSeed(t *testing.T) {
	fixedID := uuid.MustParse("5f0c5a8e-8a53-4c43-9d1e-2f1b0c6a7d10")

	tests := []struct {
		name    string
		doc     string
		wantErr string
		wantID  uuid.UUID
	}{
		{
			name: "valid with id",
			doc: `{"id":"` + fixedID.String() + `","title":"Fisika","duration_minutes":30,"is_active":true,
				"questions":[{"id":"q1","question_text":"1+1?","type":"mcq","option_a":"1","option_b":"2","correct_answer":"B"}]}`,
			wantID: fixedID,
		},
		{
			name: "valid without id",
			doc:  `{"title":"Esai","duration_minutes":10,"questions":[{"question_text":"Jelaskan","type":"answerable"}]}`,
		},
		{
			name:    "missing title",
			doc:     `{"duration_minutes":10,"questions":[{"question_text":"x","type":"answerable"}]}`,
			wantErr: "title",
		},
		{
			name:    "zero duration",
			doc:     `{"title":"A","duration_minutes":0,"questions":[{"question_text":"x","type":"answerable"}]}`,
			wantErr: "duration_minutes",
		},
		{
			name:    "no questions",
			doc:     `{"title":"A","duration_minutes":5,"questions":[]}`,
			wantErr: "no questions",
		},
		{
			name:    "multiple choice without options",
			doc:     `{"title":"A","duration_minutes":5,"questions":[{"question_text":"x","type":"mcq"}]}`,
			wantErr: "question 0",
		},
		{
			name:    "bad id",
			doc:     `{"id":"nope","title":"A","duration_minutes":5,"questions":[{"question_text":"x","type":"answerable"}]}`,
			wantErr: "invalid id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := decodeSeed([]byte(tt.doc))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.ID == uuid.Nil {
				t.Error("record id was not set")
			}
			if tt.wantID != uuid.Nil && rec.ID != tt.wantID {
				t.Errorf("id = %s, want %s", rec.ID, tt.wantID)
			}
		})
	}
}
