package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MonitorStore is the data source of the live exam monitor.
type MonitorStore interface {
	GetSubmittedStudentIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error)
	GetCameraIssueCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error)
}

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	store MonitorStore
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(store MonitorStore) *MonitorService {
	return &MonitorService{store: store}
}

// MonitorProgress is the persisted part of the monitor view.
type MonitorProgress struct {
	Submitted         []uuid.UUID         `json:"submitted"`
	CameraIssueCounts map[uuid.UUID]int64 `json:"camera_issue_counts"`
	TotalCameraIssues int64               `json:"total_camera_issues"`
}

// GetProgress fetches submitted students and camera issue counts concurrently.
// Submissions are required; camera issue counts are best-effort.
func (s *MonitorService) GetProgress(ctx context.Context, examID uuid.UUID) (*MonitorProgress, error) {
	var (
		submitted    []uuid.UUID
		issues       map[uuid.UUID]int64
		submittedErr error
		issuesErr    error
		wg           sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		submitted, submittedErr = s.store.GetSubmittedStudentIDs(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		issues, issuesErr = s.store.GetCameraIssueCounts(ctx, examID)
	}()
	wg.Wait()

	if submittedErr != nil {
		return nil, submittedErr
	}

	p := &MonitorProgress{
		Submitted:         submitted,
		CameraIssueCounts: map[uuid.UUID]int64{},
	}
	if p.Submitted == nil {
		p.Submitted = []uuid.UUID{}
	}
	if issuesErr == nil && issues != nil {
		p.CameraIssueCounts = issues
		for _, n := range issues {
			p.TotalCameraIssues += n
		}
	}
	return p, nil
}
