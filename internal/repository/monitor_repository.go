package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MonitorRepository provides data access for the live exam monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetSubmittedStudentIDs returns every student that has an attempt for the exam.
func (r *MonitorRepository) GetSubmittedStudentIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT student_id FROM exam_attempts WHERE exam_id = $1`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCameraIssueCounts returns, per student, how many times the camera was
// denied, unavailable or ended during the exam.
func (r *MonitorRepository) GetCameraIssueCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM proctor_events
		 WHERE exam_id = $1 AND student_id IS NOT NULL AND kind = ANY($2)
		 GROUP BY student_id`,
		examID,
		[]string{
			string(model.ProctorEventCameraDenied),
			string(model.ProctorEventCameraUnavailable),
			string(model.ProctorEventCameraEnded),
		},
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var sid uuid.UUID
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}
