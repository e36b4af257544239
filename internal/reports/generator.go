package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ocloudstack/ocloudstack/internal/config"
	"github.com/ocloudstack/ocloudstack/internal/store"
)

// Fallback periods for jobs created without explicit criteria, in seconds.
const (
	defaultReportingPeriod  = 300
	defaultCollectionPeriod = 60
)

// JobSource is the performance-job surface the generator drives. The
// generator is the only writer of a job's last report time.
type JobSource interface {
	List(ctx context.Context) ([]store.PerformanceJob, error)
	Get(ctx context.Context, jobID string) (*store.PerformanceJob, error)
	SetLastReport(ctx context.Context, jobID string, t time.Time) error
}

// MetricSource provides the raw samples reports aggregate over.
type MetricSource interface {
	QuerySince(ctx context.Context, resourceID, metricName string, since time.Time) ([]store.Sample, error)
}

// Generator periodically checks active performance jobs and delivers
// aggregated reports for those whose reporting period has elapsed. The
// poll interval is deliberately much shorter than any job's reporting
// period, decoupling cheap readiness checks from per-job schedules.
type Generator struct {
	jobs    JobSource
	metrics MetricSource

	checkInterval time.Duration
	client        *http.Client

	now func() time.Time // injectable for deterministic tests
}

// NewGenerator builds a Generator from the reports config and its store
// collaborators.
func NewGenerator(cfg config.ReportsConfig, jobs JobSource, metrics MetricSource) *Generator {
	return &Generator{
		jobs:          jobs,
		metrics:       metrics,
		checkInterval: cfg.CheckInterval,
		client:        &http.Client{Timeout: cfg.DeliveryTimeout},
		now:           time.Now,
	}
}

// Run polls jobs every check interval until ctx is cancelled. Per-job
// failures are logged and never stop the loop.
func (g *Generator) Run(ctx context.Context) {
	slog.Info("reports: generator started", "check_interval", g.checkInterval)

	t := time.NewTicker(g.checkInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reports: generator stopped")
			return
		case <-t.C:
			g.checkJobs(ctx)
		}
	}
}

// checkJobs runs one readiness pass over all jobs.
func (g *Generator) checkJobs(ctx context.Context) {
	jobs, err := g.jobs.List(ctx)
	if err != nil {
		slog.Error("reports: listing jobs failed, skipping cycle", "err", err)
		return
	}

	now := g.now()
	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		job := &jobs[i]
		if !shouldGenerate(job, now) {
			continue
		}
		if err := g.generateAndDeliver(ctx, job); err != nil {
			slog.Warn("reports: report failed, will retry next eligible cycle",
				"job", job.JobID, "err", err)
		}
	}
}

// shouldGenerate reports whether the job's reporting period has elapsed
// since its last successful report, or since creation if it has never
// reported. A failed delivery leaves the last report time untouched, so
// the job stays eligible on subsequent cycles.
func shouldGenerate(job *store.PerformanceJob, now time.Time) bool {
	period := time.Duration(reportingPeriod(job)) * time.Second

	since := job.CreatedAt
	if job.LastReportTime != nil {
		since = *job.LastReportTime
	}
	return now.Sub(since) >= period
}

func reportingPeriod(job *store.PerformanceJob) int {
	if job.ReportingPeriod > 0 {
		return job.ReportingPeriod
	}
	return defaultReportingPeriod
}

func collectionPeriod(job *store.PerformanceJob) int {
	if job.CollectionPeriod > 0 {
		return job.CollectionPeriod
	}
	return defaultCollectionPeriod
}

// GenerateNow generates and delivers a report for one job immediately,
// bypassing the readiness check. Used for manual triggering.
func (g *Generator) GenerateNow(ctx context.Context, jobID string) error {
	job, err := g.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("reports: job %q not found", jobID)
	}
	return g.generateAndDeliver(ctx, job)
}

// generateAndDeliver builds the report for job and POSTs it to the job's
// callback. The last report time advances only after a successful
// delivery.
func (g *Generator) generateAndDeliver(ctx context.Context, job *store.PerformanceJob) error {
	if job.CallbackURI == "" {
		return fmt.Errorf("job has no callback URI")
	}

	payload, err := g.buildReport(ctx, job)
	if err != nil {
		return err
	}

	if err := g.deliver(ctx, job.CallbackURI, payload); err != nil {
		return err
	}

	now := g.now().UTC()
	if err := g.jobs.SetLastReport(ctx, job.JobID, now); err != nil {
		return fmt.Errorf("record last report time: %w", err)
	}

	slog.Info("reports: delivered", "job", job.JobID, "callback", job.CallbackURI)
	return nil
}

// objectReport is the per-object-instance section of a report.
type objectReport struct {
	ObjectType         string               `json:"objectType"`
	ObjectInstanceID   string               `json:"objectInstanceId"`
	PerformanceMetrics map[string]Aggregate `json:"performanceMetrics"`
}

// buildReport aggregates every configured metric for every object instance
// over the trailing collection window. Metrics with no samples in the
// window are omitted.
func (g *Generator) buildReport(ctx context.Context, job *store.PerformanceJob) (map[string]any, error) {
	var objectIDs []string
	if len(job.ObjectInstanceIDs) > 0 {
		if err := json.Unmarshal(job.ObjectInstanceIDs, &objectIDs); err != nil {
			return nil, fmt.Errorf("parse object instance ids: %w", err)
		}
	}

	var metricNames []string
	if len(job.Metrics) > 0 {
		if err := json.Unmarshal(job.Metrics, &metricNames); err != nil {
			return nil, fmt.Errorf("parse metric names: %w", err)
		}
	}

	collection := collectionPeriod(job)
	since := g.now().Add(-time.Duration(collection) * time.Second)

	objectType := job.ObjectType
	if objectType == "" {
		objectType = "Resource"
	}

	data := make([]objectReport, 0, len(objectIDs))
	for _, objectID := range objectIDs {
		obj := objectReport{
			ObjectType:         objectType,
			ObjectInstanceID:   objectID,
			PerformanceMetrics: map[string]Aggregate{},
		}

		for _, metric := range metricNames {
			samples, err := g.metrics.QuerySince(ctx, objectID, metric, since)
			if err != nil {
				slog.Warn("reports: metric query failed, omitting from report",
					"job", job.JobID, "object", objectID, "metric", metric, "err", err)
				continue
			}
			if agg, ok := aggregate(samples); ok {
				obj.PerformanceMetrics[metric] = agg
			}
		}

		data = append(data, obj)
	}

	return map[string]any{
		"reportType":       "performanceReport",
		"jobId":            job.JobID,
		"timestamp":        g.now().UTC().Format(time.RFC3339),
		"reportingPeriod":  reportingPeriod(job),
		"collectionPeriod": collection,
		"data":             data,
	}, nil
}

// deliver POSTs the report once. The next eligible cycle retries a failed
// delivery, so no per-delivery retry loop is needed here.
func (g *Generator) deliver(ctx context.Context, callbackURI string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("callback returned HTTP %d", resp.StatusCode)
	}
}
