package store

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB bundles the per-aggregate stores over one SQLite database.
type DB struct {
	Resources     *ResourceStore
	Metrics       *MetricStore
	Alarms        *AlarmStore
	Subscriptions *SubscriptionStore
	Jobs          *JobStore

	gorm *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(path string) (*DB, error) {
	g, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	if err := g.AutoMigrate(
		&Resource{},
		&Sample{},
		&Alarm{},
		&Subscription{},
		&PerformanceJob{},
	); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	slog.Info("store: database ready", "path", path)

	return &DB{
		Resources:     &ResourceStore{db: g},
		Metrics:       &MetricStore{db: g},
		Alarms:        &AlarmStore{db: g},
		Subscriptions: &SubscriptionStore{db: g},
		Jobs:          &JobStore{db: g},
		gorm:          g,
	}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PruneSamples deletes metric samples older than the retention window.
// Returns the number of rows removed.
func (d *DB) PruneSamples(olderThan time.Time) (int64, error) {
	res := d.gorm.Where("timestamp < ?", olderThan).Delete(&Sample{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: prune samples: %w", res.Error)
	}
	return res.RowsAffected, nil
}
