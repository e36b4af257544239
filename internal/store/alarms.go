package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AlarmStore persists alarm records. Alarms are append-only fault history:
// clearing marks the record, it never deletes it.
type AlarmStore struct {
	db *gorm.DB
}

// ListAlarmsOptions narrows an alarm listing. Zero-valued fields are
// ignored.
type ListAlarmsOptions struct {
	ResourceID string
	Severity   string
	ActiveOnly bool
}

// Create persists a new alarm and returns its id.
func (s *AlarmStore) Create(ctx context.Context, a *Alarm) (string, error) {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return "", fmt.Errorf("store: create alarm %q: %w", a.AlarmID, err)
	}
	return a.AlarmID, nil
}

// Get returns the alarm with the given id, or (nil, nil) if absent.
func (s *AlarmStore) Get(ctx context.Context, alarmID string) (*Alarm, error) {
	var a Alarm
	err := s.db.WithContext(ctx).First(&a, "alarm_id = ?", alarmID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get alarm %q: %w", alarmID, err)
	}
	return &a, nil
}

// Update applies a typed patch to the alarm. Nil patch fields are left
// untouched; any applied field also advances ChangedTime.
func (s *AlarmStore) Update(ctx context.Context, alarmID string, patch AlarmPatch) error {
	fields := map[string]any{}
	if patch.Severity != nil {
		fields["perceived_severity"] = *patch.Severity
	}
	if patch.Acknowledged != nil {
		fields["acknowledged"] = *patch.Acknowledged
		if *patch.Acknowledged {
			fields["acknowledged_time"] = time.Now().UTC()
		}
	}
	if len(fields) == 0 {
		return nil
	}
	fields["changed_time"] = time.Now().UTC()

	err := s.db.WithContext(ctx).Model(&Alarm{}).
		Where("alarm_id = ?", alarmID).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("store: update alarm %q: %w", alarmID, err)
	}
	return nil
}

// MarkCleared transitions the alarm to the cleared state. The transition
// happens at most once: an already-cleared alarm is left untouched.
func (s *AlarmStore) MarkCleared(ctx context.Context, alarmID string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&Alarm{}).
		Where("alarm_id = ? AND cleared_time IS NULL", alarmID).
		Updates(map[string]any{
			"cleared_time": now,
			"changed_time": now,
		}).Error
	if err != nil {
		return fmt.Errorf("store: clear alarm %q: %w", alarmID, err)
	}
	return nil
}

// List returns alarms matching opts, newest raised first.
func (s *AlarmStore) List(ctx context.Context, opts ListAlarmsOptions) ([]Alarm, error) {
	q := s.db.WithContext(ctx).Model(&Alarm{})
	if opts.ResourceID != "" {
		q = q.Where("resource_id = ?", opts.ResourceID)
	}
	if opts.Severity != "" {
		q = q.Where("perceived_severity = ?", opts.Severity)
	}
	if opts.ActiveOnly {
		q = q.Where("cleared_time IS NULL")
	}

	var out []Alarm
	if err := q.Order("raised_time DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list alarms: %w", err)
	}
	return out, nil
}

// ListOpen returns all alarms that have not been cleared. The alarm
// registry is rebuilt from this at startup.
func (s *AlarmStore) ListOpen(ctx context.Context) ([]Alarm, error) {
	return s.List(ctx, ListAlarmsOptions{ActiveOnly: true})
}
