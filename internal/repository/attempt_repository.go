package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AttemptRepository stores submitted attempts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// InsertAttempt writes one attempt row.
func (r *AttemptRepository) InsertAttempt(ctx context.Context, a *model.Attempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_attempts (id, exam_id, student_id, answers, submitted_at, score)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
		a.ID, a.ExamID, a.StudentID, answers, a.SubmittedAt, a.Score,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}
