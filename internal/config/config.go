package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the monitor configuration.
const (
	DefaultDatabasePath       = "ocloud.db"
	DefaultEvaluationInterval = 60 * time.Second
	DefaultLookback           = 120 * time.Second
	DefaultQueueSize          = 256
	DefaultDeliveryTimeout    = 5 * time.Second
	DefaultMaxRetries         = 3
	DefaultReportCheckEvery   = 10 * time.Second
	DefaultReportTimeout      = 10 * time.Second
	DefaultCollectInterval    = 30 * time.Second
)

// Config holds the full monitor configuration parsed from the `monitor:`
// section of config.yaml.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
}

// MonitorConfig holds all monitor settings.
type MonitorConfig struct {
	// Database configures the SQLite store shared by all components.
	Database DatabaseConfig `yaml:"database"`

	// Evaluation controls the threshold evaluation loop.
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Notifications controls the dispatch queue and HTTP delivery.
	Notifications NotifyConfig `yaml:"notifications"`

	// Reports controls the performance report generator.
	Reports ReportsConfig `yaml:"reports"`

	// Collector configures metric scraping from resource endpoints.
	Collector CollectorConfig `yaml:"collector"`

	// Thresholds maps a metric name to its four severity boundaries.
	Thresholds map[string]ThresholdSet `yaml:"thresholds"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	// Path is the SQLite database file path (default "ocloud.db").
	Path string `yaml:"path"`
}

// EvaluationConfig controls the threshold evaluation loop.
type EvaluationConfig struct {
	// Enabled is the master switch for automatic alarm creation.
	Enabled bool `yaml:"enabled"`

	// Interval is how often all resources are checked (default 60s).
	Interval time.Duration `yaml:"interval"`

	// Lookback is how far back a sample may be and still count as the
	// current value of a metric (default 120s).
	Lookback time.Duration `yaml:"lookback"`

	// ProcessTypes lists the resource type ids that carry a managed
	// process in their extensions and get liveness/process checks.
	ProcessTypes []string `yaml:"process_types"`
}

// NotifyConfig controls notification dispatch.
type NotifyConfig struct {
	// Enabled is the master switch for subscriber notifications.
	Enabled bool `yaml:"enabled"`

	// QueueSize is the dispatch queue capacity. When the queue is full
	// the oldest pending event is dropped to make room (default 256).
	QueueSize int `yaml:"queue_size"`

	// DeliveryTimeout bounds a single callback POST (default 5s).
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`

	// MaxRetries is the total number of delivery attempts per
	// subscriber before the event is dropped (default 3).
	MaxRetries int `yaml:"max_retries"`
}

// ReportsConfig controls the performance report generator.
type ReportsConfig struct {
	// CheckInterval is how often jobs are polled for readiness. It is
	// intentionally much shorter than any job's reporting period
	// (default 10s).
	CheckInterval time.Duration `yaml:"check_interval"`

	// DeliveryTimeout bounds a report POST (default 10s).
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// CollectorConfig configures the metric collector.
type CollectorConfig struct {
	// Interval is how often each target is scraped (default 30s).
	Interval time.Duration `yaml:"interval"`

	// Targets lists the metric endpoints to scrape.
	Targets []Target `yaml:"targets"`
}

// Target is one scrape endpoint bound to a resource.
type Target struct {
	// ResourceID is the resource the recorded samples belong to.
	ResourceID string `yaml:"resource_id"`

	// Endpoint is the Prometheus text exposition URL.
	Endpoint string `yaml:"endpoint"`

	// Metrics maps a stored metric name (e.g. "cpu_usage") to the
	// Prometheus metric family to read it from.
	Metrics map[string]string `yaml:"metrics"`
}

// ThresholdSet holds the four severity boundaries for one metric.
//
// The set is deliberately not validated for critical >= major >= minor >=
// clear: the evaluation chain checks severities highest-first, and a
// misordered set simply means the first matching branch wins.
type ThresholdSet struct {
	Critical float64 `yaml:"critical"`
	Major    float64 `yaml:"major"`
	Minor    float64 `yaml:"minor"`
	Clear    float64 `yaml:"clear"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("monitor config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("monitor config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("monitor config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values, including
// the stock threshold sets for system and process metrics.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Database: DatabaseConfig{Path: DefaultDatabasePath},
			Evaluation: EvaluationConfig{
				Enabled:      true,
				Interval:     DefaultEvaluationInterval,
				Lookback:     DefaultLookback,
				ProcessTypes: []string{"type-ran-gnb"},
			},
			Notifications: NotifyConfig{
				Enabled:         true,
				QueueSize:       DefaultQueueSize,
				DeliveryTimeout: DefaultDeliveryTimeout,
				MaxRetries:      DefaultMaxRetries,
			},
			Reports: ReportsConfig{
				CheckInterval:   DefaultReportCheckEvery,
				DeliveryTimeout: DefaultReportTimeout,
			},
			Collector: CollectorConfig{Interval: DefaultCollectInterval},
			Thresholds: map[string]ThresholdSet{
				"cpu_usage":          {Critical: 95, Major: 90, Minor: 80, Clear: 75},
				"memory_usage":       {Critical: 90, Major: 85, Minor: 75, Clear: 70},
				"disk_usage":         {Critical: 95, Major: 90, Minor: 85, Clear: 80},
				"gnb_process_cpu":    {Critical: 95, Major: 85, Minor: 75, Clear: 70},
				"gnb_process_memory": {Critical: 90, Major: 80, Minor: 70, Clear: 65},
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	m := &cfg.Monitor
	if m.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if m.Evaluation.Interval <= 0 {
		return fmt.Errorf("evaluation.interval must be positive, got %s", m.Evaluation.Interval)
	}
	if m.Evaluation.Lookback <= 0 {
		return fmt.Errorf("evaluation.lookback must be positive, got %s", m.Evaluation.Lookback)
	}
	if m.Notifications.QueueSize <= 0 {
		return fmt.Errorf("notifications.queue_size must be positive, got %d", m.Notifications.QueueSize)
	}
	if m.Notifications.MaxRetries <= 0 {
		return fmt.Errorf("notifications.max_retries must be positive, got %d", m.Notifications.MaxRetries)
	}
	if m.Notifications.DeliveryTimeout <= 0 {
		return fmt.Errorf("notifications.delivery_timeout must be positive, got %s", m.Notifications.DeliveryTimeout)
	}
	if m.Reports.CheckInterval <= 0 {
		return fmt.Errorf("reports.check_interval must be positive, got %s", m.Reports.CheckInterval)
	}
	if m.Collector.Interval <= 0 {
		return fmt.Errorf("collector.interval must be positive, got %s", m.Collector.Interval)
	}
	for i, t := range m.Collector.Targets {
		if t.ResourceID == "" {
			return fmt.Errorf("collector.targets[%d].resource_id must not be empty", i)
		}
		if t.Endpoint == "" {
			return fmt.Errorf("collector.targets[%d].endpoint must not be empty", i)
		}
	}
	return nil
}
