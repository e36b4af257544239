package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/ocloudstack/ocloudstack/internal/config"
	"github.com/ocloudstack/ocloudstack/internal/store"
)

const scrapeTimeout = 10 * time.Second

// MetricRecorder is the sample sink the collector writes to.
type MetricRecorder interface {
	Record(ctx context.Context, sample *store.Sample) error
}

// Collector scrapes each configured target on a fixed interval and records
// one sample per mapped metric. A failing target is logged and skipped;
// the cycle always visits every target.
type Collector struct {
	targets  []config.Target
	interval time.Duration
	metrics  MetricRecorder
	client   *http.Client

	now func() time.Time // injectable for deterministic tests
}

// New builds a Collector from the collector config and a sample sink.
func New(cfg config.CollectorConfig, metrics MetricRecorder) *Collector {
	return &Collector{
		targets:  cfg.Targets,
		interval: cfg.Interval,
		metrics:  metrics,
		client:   &http.Client{Timeout: scrapeTimeout},
		now:      time.Now,
	}
}

// Run scrapes all targets once immediately, then on every interval tick
// until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	if len(c.targets) == 0 {
		slog.Info("collector: no targets configured, idle")
		<-ctx.Done()
		return
	}

	slog.Info("collector: started",
		"targets", len(c.targets), "interval", c.interval)

	c.collectAll(ctx)

	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("collector: stopped")
			return
		case <-t.C:
			c.collectAll(ctx)
		}
	}
}

// collectAll runs one scrape pass over every target.
func (c *Collector) collectAll(ctx context.Context) {
	for _, target := range c.targets {
		if ctx.Err() != nil {
			return
		}
		if err := c.collect(ctx, target); err != nil {
			slog.Warn("collector: target scrape failed",
				"resource", target.ResourceID, "endpoint", target.Endpoint, "err", err)
		}
	}
}

// collect scrapes one target and records every mapped metric that is
// present in the exposition. Absent families are skipped, not recorded as
// zero.
func (c *Collector) collect(ctx context.Context, target config.Target) error {
	families, err := c.fetch(ctx, target.Endpoint)
	if err != nil {
		return err
	}

	ts := c.now().UTC()
	for sampleName, familyName := range target.Metrics {
		value, ok := familyValue(families[familyName])
		if !ok {
			slog.Debug("collector: metric family absent",
				"resource", target.ResourceID, "family", familyName)
			continue
		}

		sample := &store.Sample{
			ResourceID: target.ResourceID,
			MetricName: sampleName,
			Value:      value,
			Timestamp:  ts,
		}
		if err := c.metrics.Record(ctx, sample); err != nil {
			slog.Warn("collector: recording sample failed",
				"resource", target.ResourceID, "metric", sampleName, "err", err)
		}
	}
	return nil
}

// fetch GETs the endpoint and parses the Prometheus text exposition into
// metric families.
func (c *Collector) fetch(ctx context.Context, endpoint string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseExposition(resp.Body)
}

// parseExposition decodes a Prometheus text exposition into metric
// families. A partial parse that still yielded families is treated as
// success.
func parseExposition(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil && len(families) == 0 {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return families, nil
}

// familyValue sums all gauge, counter, or untyped values in a family.
// Returns false if the family is nil or carries no readable values.
func familyValue(mf *dto.MetricFamily) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	var total float64
	found := false
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
			found = true
		case m.Counter != nil:
			total += m.Counter.GetValue()
			found = true
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
			found = true
		}
	}
	return total, found
}
