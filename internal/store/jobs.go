package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobStore persists performance monitoring jobs. The report generator is
// the only writer of LastReportTime.
type JobStore struct {
	db *gorm.DB
}

// List returns all performance jobs.
func (s *JobStore) List(ctx context.Context) ([]PerformanceJob, error) {
	var out []PerformanceJob
	if err := s.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	return out, nil
}

// Get returns the job with the given id, or (nil, nil) if absent.
func (s *JobStore) Get(ctx context.Context, jobID string) (*PerformanceJob, error) {
	var j PerformanceJob
	err := s.db.WithContext(ctx).First(&j, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job %q: %w", jobID, err)
	}
	return &j, nil
}

// Create persists a new performance job.
func (s *JobStore) Create(ctx context.Context, j *PerformanceJob) error {
	if err := s.db.WithContext(ctx).Create(j).Error; err != nil {
		return fmt.Errorf("store: create job %q: %w", j.JobID, err)
	}
	return nil
}

// Delete removes the job with the given id. Deleting an absent job is a
// no-op.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	if err := s.db.WithContext(ctx).Delete(&PerformanceJob{}, "job_id = ?", jobID).Error; err != nil {
		return fmt.Errorf("store: delete job %q: %w", jobID, err)
	}
	return nil
}

// SetLastReport records the time of the job's last successfully delivered
// report.
func (s *JobStore) SetLastReport(ctx context.Context, jobID string, t time.Time) error {
	err := s.db.WithContext(ctx).Model(&PerformanceJob{}).
		Where("job_id = ?", jobID).
		Update("last_report_time", t).Error
	if err != nil {
		return fmt.Errorf("store: set last report for job %q: %w", jobID, err)
	}
	return nil
}
