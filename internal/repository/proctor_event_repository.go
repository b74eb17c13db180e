package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ProctorEventRepository persists proctor events for later review.
type ProctorEventRepository struct {
	pool *pgxpool.Pool
}

// NewProctorEventRepository creates a new ProctorEventRepository.
func NewProctorEventRepository(pool *pgxpool.Pool) *ProctorEventRepository {
	return &ProctorEventRepository{pool: pool}
}

var proctorEventColumns = []string{"session_id", "exam_id", "student_id", "kind", "detail", "recorded_at"}

// CopyEvents bulk inserts events with the COPY protocol.
func (r *ProctorEventRepository) CopyEvents(ctx context.Context, events []model.ProctorEvent) (int64, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.SessionID, e.ExamID, e.StudentID, string(e.Kind), e.Detail, e.RecordedAt})
	}
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"proctor_events"},
		proctorEventColumns,
		pgx.CopyFromRows(rows),
	)
}

// InsertEvent writes a single event.
func (r *ProctorEventRepository) InsertEvent(ctx context.Context, e model.ProctorEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proctor_events (session_id, exam_id, student_id, kind, detail, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.SessionID, e.ExamID, e.StudentID, string(e.Kind), e.Detail, e.RecordedAt,
	)
	return err
}
