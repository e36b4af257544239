package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// SubscriptionStore persists subscriber registrations. The dispatcher only
// reads; Create and Delete exist for the API layer above this service.
type SubscriptionStore struct {
	db *gorm.DB
}

// List returns all subscriptions, optionally narrowed to one type
// ("ims", "dms", "alarm", "performance"). An empty type returns all.
func (s *SubscriptionStore) List(ctx context.Context, subscriptionType string) ([]Subscription, error) {
	q := s.db.WithContext(ctx).Model(&Subscription{})
	if subscriptionType != "" {
		q = q.Where("subscription_type = ?", subscriptionType)
	}

	var out []Subscription
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list subscriptions: %w", err)
	}
	return out, nil
}

// Get returns the subscription with the given id, or (nil, nil) if absent.
func (s *SubscriptionStore) Get(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	err := s.db.WithContext(ctx).First(&sub, "subscription_id = ?", subscriptionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get subscription %q: %w", subscriptionID, err)
	}
	return &sub, nil
}

// Create persists a new subscription.
func (s *SubscriptionStore) Create(ctx context.Context, sub *Subscription) error {
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("store: create subscription %q: %w", sub.SubscriptionID, err)
	}
	return nil
}

// Delete removes the subscription with the given id. Deleting an absent
// subscription is a no-op.
func (s *SubscriptionStore) Delete(ctx context.Context, subscriptionID string) error {
	if err := s.db.WithContext(ctx).Delete(&Subscription{}, "subscription_id = ?", subscriptionID).Error; err != nil {
		return fmt.Errorf("store: delete subscription %q: %w", subscriptionID, err)
	}
	return nil
}
