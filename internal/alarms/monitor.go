package alarms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocloudstack/ocloudstack/internal/config"
	"github.com/ocloudstack/ocloudstack/internal/store"
)

// systemMetrics are the metrics checked on every resource regardless of
// its type.
var systemMetrics = []string{"cpu_usage", "memory_usage", "disk_usage"}

// ResourceLister enumerates the monitored resource inventory.
type ResourceLister interface {
	List(ctx context.Context) ([]store.Resource, error)
}

// MetricSource provides the most recent sample for a resource metric.
type MetricSource interface {
	Latest(ctx context.Context, resourceID, metricName string, since time.Time) (*store.Sample, error)
}

// AlarmWriter is the alarm persistence surface the monitor drives.
type AlarmWriter interface {
	Create(ctx context.Context, a *store.Alarm) (string, error)
	Get(ctx context.Context, alarmID string) (*store.Alarm, error)
	Update(ctx context.Context, alarmID string, patch store.AlarmPatch) error
	MarkCleared(ctx context.Context, alarmID string) error
	ListOpen(ctx context.Context) ([]store.Alarm, error)
}

// Notifier receives alarm lifecycle transitions for asynchronous delivery.
// Implementations must not block: the monitor calls these inline from its
// evaluation cycle.
type Notifier interface {
	AlarmRaised(alarmID string)
	AlarmChanged(alarmID string)
	AlarmCleared(alarmID string)
}

// Monitor is the threshold evaluator. It periodically samples recent
// metrics for every resource, classifies them against the configured
// thresholds, and drives the alarm lifecycle through the registry and the
// alarm store.
//
// Run is the sole writer of the registry; cycles never overlap.
type Monitor struct {
	resources ResourceLister
	metrics   MetricSource
	alarms    AlarmWriter
	notifier  Notifier
	registry  *Registry

	interval     time.Duration
	lookback     time.Duration
	processTypes []string
	notify       bool

	mu         sync.Mutex
	thresholds map[string]config.ThresholdSet

	now func() time.Time // injectable for deterministic tests
}

// NewMonitor builds a Monitor from the evaluation config and its
// collaborators. notifier may deliver to any number of subscribers; pass
// the dispatcher in production.
func NewMonitor(cfg config.EvaluationConfig, thresholds map[string]config.ThresholdSet,
	resources ResourceLister, metrics MetricSource, alarms AlarmWriter,
	notifier Notifier, notify bool) *Monitor {

	ts := make(map[string]config.ThresholdSet, len(thresholds))
	for k, v := range thresholds {
		ts[k] = v
	}

	return &Monitor{
		resources:    resources,
		metrics:      metrics,
		alarms:       alarms,
		notifier:     notifier,
		registry:     NewRegistry(),
		interval:     cfg.Interval,
		lookback:     cfg.Lookback,
		processTypes: cfg.ProcessTypes,
		notify:       notify,
		thresholds:   ts,
		now:          time.Now,
	}
}

// Registry exposes the open-alarm index, primarily for tests and
// diagnostics.
func (m *Monitor) Registry() *Registry { return m.registry }

// UpdateThresholds swaps in a new threshold map. The next evaluation cycle
// uses the new bounds; the current cycle is unaffected.
func (m *Monitor) UpdateThresholds(thresholds map[string]config.ThresholdSet) {
	ts := make(map[string]config.ThresholdSet, len(thresholds))
	for k, v := range thresholds {
		ts[k] = v
	}
	m.mu.Lock()
	m.thresholds = ts
	m.mu.Unlock()
	slog.Info("alarms: thresholds updated", "metrics", len(ts))
}

// thresholdsFor returns the threshold set for a metric, if configured.
func (m *Monitor) thresholdsFor(metric string) (config.ThresholdSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.thresholds[metric]
	return ts, ok
}

// Run rebuilds the registry from the alarm store, runs one evaluation
// cycle immediately, then re-evaluates every interval until ctx is
// cancelled. Per-resource failures are logged and never stop the loop.
func (m *Monitor) Run(ctx context.Context) {
	if err := m.rebuild(ctx); err != nil {
		slog.Error("alarms: registry rebuild failed, starting empty", "err", err)
	}

	m.Cycle(ctx)

	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Cycle(ctx)
		}
	}
}

// rebuild restores the registry from the store's open alarms so dedup
// state survives a restart.
func (m *Monitor) rebuild(ctx context.Context) error {
	open, err := m.alarms.ListOpen(ctx)
	if err != nil {
		return err
	}
	m.registry.Rebuild(open)
	slog.Info("alarms: registry rebuilt", "open", m.registry.Len())
	return nil
}

// Cycle runs one full evaluation pass over all resources.
func (m *Monitor) Cycle(ctx context.Context) {
	resources, err := m.resources.List(ctx)
	if err != nil {
		slog.Error("alarms: listing resources failed, skipping cycle", "err", err)
		return
	}

	for i := range resources {
		if ctx.Err() != nil {
			return
		}
		m.checkResource(ctx, &resources[i])
	}
}

// checkResource evaluates all conditions for one resource. Errors are
// logged and the remaining checks continue.
func (m *Monitor) checkResource(ctx context.Context, r *store.Resource) {
	for _, metric := range systemMetrics {
		if err := m.checkMetric(ctx, r.ResourceID, metric); err != nil {
			slog.Warn("alarms: metric check failed",
				"resource", r.ResourceID, "metric", metric, "err", err)
		}
	}

	if slices.Contains(m.processTypes, r.ResourceTypeID) {
		m.checkProcess(ctx, r)
	}
}

// checkMetric reads the latest sample for one metric within the lookback
// window and applies the threshold classification. A missing sample is not
// an error: no data means no alarm action.
func (m *Monitor) checkMetric(ctx context.Context, resourceID, metric string) error {
	ts, ok := m.thresholdsFor(metric)
	if !ok {
		return nil
	}

	sample, err := m.metrics.Latest(ctx, resourceID, metric, m.now().Add(-m.lookback))
	if err != nil {
		return err
	}
	if sample == nil {
		return nil
	}

	return m.applyThreshold(ctx, resourceID, metric, sample.Value, ts)
}

// applyThreshold classifies value and drives the alarm lifecycle for the
// (resource, metric) key.
func (m *Monitor) applyThreshold(ctx context.Context, resourceID, metric string, value float64, ts config.ThresholdSet) error {
	key := Key{ResourceID: resourceID, Condition: metric}

	switch action, severity, bound := Classify(value, ts); action {
	case ActionRaise:
		_, err := m.CreateOrUpdate(ctx, key, severity, probableCause(metric, value, bound))
		return err
	case ActionClear:
		return m.ClearIfExists(ctx, key)
	default:
		// Hysteresis gap: leave any existing alarm untouched.
		return nil
	}
}

// processExtensions is the shape the monitor reads out of a resource's
// extensions bag.
type processExtensions struct {
	Process struct {
		PID int `json:"pid"`
	} `json:"process"`
	Resources struct {
		CPUPercent    *float64 `json:"cpu_percent"`
		MemoryPercent *float64 `json:"memory_percent"`
	} `json:"resources"`
}

// checkProcess applies the boolean and process-metric checks for
// process-backed resources: liveness, per-process CPU/memory thresholds,
// and the operational state condition.
func (m *Monitor) checkProcess(ctx context.Context, r *store.Resource) {
	var ext processExtensions
	if len(r.Extensions) > 0 {
		if err := json.Unmarshal(r.Extensions, &ext); err != nil {
			// Malformed extensions payload: skip the process checks this
			// cycle rather than raising a false liveness alarm.
			slog.Warn("alarms: malformed resource extensions, skipping process checks",
				"resource", r.ResourceID, "err", err)
			return
		}
	}

	if ext.Process.PID == 0 {
		_, err := m.CreateOrUpdate(ctx,
			Key{ResourceID: r.ResourceID, Condition: CondProcessNotFound},
			store.SeverityCritical,
			"Managed process not running or not discovered")
		if err != nil {
			slog.Warn("alarms: liveness alarm failed", "resource", r.ResourceID, "err", err)
		}
	} else {
		if err := m.ClearIfExists(ctx, Key{ResourceID: r.ResourceID, Condition: CondProcessNotFound}); err != nil {
			slog.Warn("alarms: liveness clear failed", "resource", r.ResourceID, "err", err)
		}

		m.checkProcessMetric(ctx, r.ResourceID, "gnb_process_cpu", ext.Resources.CPUPercent)
		m.checkProcessMetric(ctx, r.ResourceID, "gnb_process_memory", ext.Resources.MemoryPercent)
	}

	m.checkOperationalState(ctx, r)
}

// checkProcessMetric applies thresholds to a process usage value carried in
// the extensions bag. A nil value means the metric was not reported.
func (m *Monitor) checkProcessMetric(ctx context.Context, resourceID, metric string, value *float64) {
	if value == nil {
		return
	}
	ts, ok := m.thresholdsFor(metric)
	if !ok {
		return
	}
	if err := m.applyThreshold(ctx, resourceID, metric, *value, ts); err != nil {
		slog.Warn("alarms: process metric check failed",
			"resource", resourceID, "metric", metric, "err", err)
	}
}

// checkOperationalState raises a MAJOR alarm while the resource reports a
// disabled operational state and clears it once the state recovers.
func (m *Monitor) checkOperationalState(ctx context.Context, r *store.Resource) {
	key := Key{ResourceID: r.ResourceID, Condition: CondResourceStateChange}

	var err error
	if r.OperationalState == "disabled" {
		_, err = m.CreateOrUpdate(ctx, key, store.SeverityMajor,
			"Resource operational state is disabled")
	} else {
		err = m.ClearIfExists(ctx, key)
	}
	if err != nil {
		slog.Warn("alarms: operational state check failed",
			"resource", r.ResourceID, "err", err)
	}
}

// CreateOrUpdate raises a new alarm for key or updates the severity of the
// existing open one. Re-classification at an unchanged severity is a no-op
// and does not re-notify: exactly one notification is produced per state
// transition.
func (m *Monitor) CreateOrUpdate(ctx context.Context, key Key, severity, cause string) (string, error) {
	if id, ok := m.registry.Lookup(key); ok {
		existing, err := m.alarms.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if existing != nil && !existing.Cleared() {
			if existing.PerceivedSeverity != severity {
				sev := severity
				if err := m.alarms.Update(ctx, id, store.AlarmPatch{Severity: &sev}); err != nil {
					return "", err
				}
				slog.Info("alarms: severity changed",
					"alarm", id, "resource", key.ResourceID,
					"condition", key.Condition,
					"from", existing.PerceivedSeverity, "to", severity)
				if m.notify {
					m.notifier.AlarmChanged(id)
				}
			}
			return id, nil
		}
		// Stale registry entry (alarm cleared or gone behind our back):
		// drop it and fall through to create.
		m.registry.Remove(key)
	}

	now := m.now().UTC()
	alarm := &store.Alarm{
		AlarmID:           uuid.NewString(),
		ResourceID:        key.ResourceID,
		Condition:         key.Condition,
		PerceivedSeverity: severity,
		ProbableCause:     cause,
		AlarmType:         alarmTypeFor(key.Condition),
		RaisedTime:        now,
		ChangedTime:       now,
	}

	id, err := m.alarms.Create(ctx, alarm)
	if err != nil {
		return "", fmt.Errorf("create alarm for %s/%s: %w", key.ResourceID, key.Condition, err)
	}
	m.registry.Set(key, id)

	slog.Warn("alarms: raised",
		"alarm", id, "resource", key.ResourceID,
		"condition", key.Condition, "severity", severity, "cause", cause)

	if m.notify {
		m.notifier.AlarmRaised(id)
	}
	return id, nil
}

// ClearIfExists clears the open alarm for key, if there is one. Clearing
// an absent or already-cleared key is a no-op and notifies nothing.
func (m *Monitor) ClearIfExists(ctx context.Context, key Key) error {
	id, ok := m.registry.Lookup(key)
	if !ok {
		return nil
	}

	alarm, err := m.alarms.Get(ctx, id)
	if err != nil {
		return err
	}

	if alarm != nil && !alarm.Cleared() {
		if err := m.alarms.MarkCleared(ctx, id); err != nil {
			return err
		}
		slog.Info("alarms: cleared",
			"alarm", id, "resource", key.ResourceID, "condition", key.Condition)
		if m.notify {
			m.notifier.AlarmCleared(id)
		}
	}

	m.registry.Remove(key)
	return nil
}
