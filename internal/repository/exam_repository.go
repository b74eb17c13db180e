package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, duration_minutes, questions, is_active, created_at`

func scanExam(row pgx.Row) (*model.ExamRecord, error) {
	e := &model.ExamRecord{}
	err := row.Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.Questions, &e.IsActive, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam row by its UUID. The questions column is
// returned as stored, in the authoring JSON format.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamRecord, error) {
	e, err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return e, nil
}

// ListActive returns all active exams.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.ExamRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.ExamRecord
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// Upsert inserts an exam or replaces the row with the same id.
func (r *ExamRepository) Upsert(ctx context.Context, e *model.ExamRecord) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, title, duration_minutes, questions, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title,
		     duration_minutes = EXCLUDED.duration_minutes,
		     questions = EXCLUDED.questions,
		     is_active = EXCLUDED.is_active
		 RETURNING created_at`,
		e.ID, e.Title, e.DurationMinutes, e.Questions, e.IsActive,
	).Scan(&e.CreatedAt)
}
