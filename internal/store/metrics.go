package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// MetricStore persists time-stamped metric samples. Samples are append-only;
// age-based pruning is the only deletion path (DB.PruneSamples).
type MetricStore struct {
	db *gorm.DB
}

// Record appends one sample.
func (s *MetricStore) Record(ctx context.Context, sample *Sample) error {
	if err := s.db.WithContext(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("store: record sample %s/%s: %w",
			sample.ResourceID, sample.MetricName, err)
	}
	return nil
}

// QuerySince returns all samples for the resource and metric with a
// timestamp at or after since, ordered oldest first.
func (s *MetricStore) QuerySince(ctx context.Context, resourceID, metricName string, since time.Time) ([]Sample, error) {
	var out []Sample
	err := s.db.WithContext(ctx).
		Where("resource_id = ? AND metric_name = ? AND timestamp >= ?",
			resourceID, metricName, since).
		Order("timestamp ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: query samples %s/%s: %w",
			resourceID, metricName, err)
	}
	return out, nil
}

// Latest returns the most recent sample for the resource and metric at or
// after since, or (nil, nil) when no sample falls in the window.
func (s *MetricStore) Latest(ctx context.Context, resourceID, metricName string, since time.Time) (*Sample, error) {
	samples, err := s.QuerySince(ctx, resourceID, metricName, since)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[len(samples)-1], nil
}
