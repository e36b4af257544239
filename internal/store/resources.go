package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResourceStore persists the resource inventory. Discovery upserts entries;
// the threshold evaluator and the notification dispatcher read them.
type ResourceStore struct {
	db *gorm.DB
}

// List returns all known resources.
func (s *ResourceStore) List(ctx context.Context) ([]Resource, error) {
	var out []Resource
	if err := s.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list resources: %w", err)
	}
	return out, nil
}

// Get returns the resource with the given id, or (nil, nil) if absent.
func (s *ResourceStore) Get(ctx context.Context, resourceID string) (*Resource, error) {
	var r Resource
	err := s.db.WithContext(ctx).First(&r, "resource_id = ?", resourceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get resource %q: %w", resourceID, err)
	}
	return &r, nil
}

// Upsert inserts or replaces the resource keyed by ResourceID.
func (s *ResourceStore) Upsert(ctx context.Context, r *Resource) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resource_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"resource_type_id", "resource_pool_id", "name",
			"operational_state", "extensions", "updated_at",
		}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("store: upsert resource %q: %w", r.ResourceID, err)
	}
	return nil
}

// Delete removes the resource with the given id. Deleting an absent
// resource is a no-op.
func (s *ResourceStore) Delete(ctx context.Context, resourceID string) error {
	if err := s.db.WithContext(ctx).Delete(&Resource{}, "resource_id = ?", resourceID).Error; err != nil {
		return fmt.Errorf("store: delete resource %q: %w", resourceID, err)
	}
	return nil
}
