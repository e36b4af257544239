package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/ocloudstack/ocloudstack/internal/config"
	"github.com/ocloudstack/ocloudstack/internal/store"
)

type fakeJobs struct {
	jobs        map[string]*store.PerformanceJob
	lastReports map[string]time.Time
}

func newFakeJobs(jobs ...*store.PerformanceJob) *fakeJobs {
	f := &fakeJobs{
		jobs:        make(map[string]*store.PerformanceJob),
		lastReports: make(map[string]time.Time),
	}
	for _, j := range jobs {
		f.jobs[j.JobID] = j
	}
	return f
}

func (f *fakeJobs) List(context.Context) ([]store.PerformanceJob, error) {
	var out []store.PerformanceJob
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*store.PerformanceJob, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) SetLastReport(_ context.Context, id string, t time.Time) error {
	f.lastReports[id] = t
	if j, ok := f.jobs[id]; ok {
		j.LastReportTime = &t
	}
	return nil
}

type fakeSamples struct{ samples map[string][]store.Sample }

func (f *fakeSamples) add(resourceID, metric string, values ...float64) {
	if f.samples == nil {
		f.samples = make(map[string][]store.Sample)
	}
	now := time.Now()
	for i, v := range values {
		f.samples[resourceID+"/"+metric] = append(f.samples[resourceID+"/"+metric], store.Sample{
			ResourceID: resourceID,
			MetricName: metric,
			Value:      v,
			Timestamp:  now.Add(time.Duration(i) * time.Second),
		})
	}
}

func (f *fakeSamples) QuerySince(_ context.Context, resourceID, metric string, _ time.Time) ([]store.Sample, error) {
	return f.samples[resourceID+"/"+metric], nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func reportsConfig() config.ReportsConfig {
	return config.ReportsConfig{
		CheckInterval:   10 * time.Second,
		DeliveryTimeout: time.Second,
	}
}

// Scenario: a job with a 300s reporting period created at T0 is not ready
// at T0+250 and is ready at T0+305.
func TestShouldGenerate_ReportingPeriodElapsed(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job := &store.PerformanceJob{
		JobID:           "job-1",
		ReportingPeriod: 300,
		CreatedAt:       t0,
	}

	if shouldGenerate(job, t0.Add(250*time.Second)) {
		t.Error("at T0+250: expected not ready")
	}
	if !shouldGenerate(job, t0.Add(305*time.Second)) {
		t.Error("at T0+305: expected ready")
	}
}

func TestShouldGenerate_CountsFromLastReport(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	last := t0.Add(600 * time.Second)
	job := &store.PerformanceJob{
		JobID:           "job-1",
		ReportingPeriod: 300,
		CreatedAt:       t0,
		LastReportTime:  &last,
	}

	if shouldGenerate(job, last.Add(100*time.Second)) {
		t.Error("100s after last report: expected not ready")
	}
	if !shouldGenerate(job, last.Add(300*time.Second)) {
		t.Error("300s after last report: expected ready")
	}
}

func TestShouldGenerate_ZeroPeriodUsesDefault(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job := &store.PerformanceJob{JobID: "job-1", CreatedAt: t0}

	if shouldGenerate(job, t0.Add(200*time.Second)) {
		t.Error("before default 300s period: expected not ready")
	}
	if !shouldGenerate(job, t0.Add(301*time.Second)) {
		t.Error("after default 300s period: expected ready")
	}
}

func TestAggregate(t *testing.T) {
	samples := []store.Sample{
		{Value: 10}, {Value: 30}, {Value: 20},
	}
	agg, ok := aggregate(samples)
	if !ok {
		t.Fatal("aggregate: expected ok")
	}
	if agg.Current != 20 {
		t.Errorf("current: got %v, want 20 (last sample)", agg.Current)
	}
	if agg.Average != 20 {
		t.Errorf("average: got %v, want 20", agg.Average)
	}
	if agg.Min != 10 || agg.Max != 30 {
		t.Errorf("min/max: got %v/%v, want 10/30", agg.Min, agg.Max)
	}
	if agg.Samples != 3 {
		t.Errorf("samples: got %d, want 3", agg.Samples)
	}
}

func TestAggregate_NoSamples(t *testing.T) {
	if _, ok := aggregate(nil); ok {
		t.Error("aggregate of nothing: expected not ok")
	}
}

func TestBuildReport_OmitsMetricsWithoutSamples(t *testing.T) {
	samples := &fakeSamples{}
	samples.add("obj-1", "cpu_usage", 50, 60)
	// obj-1 has no memory_usage samples; obj-2 has nothing at all.

	job := &store.PerformanceJob{
		JobID:             "job-1",
		ObjectType:        "Resource",
		ObjectInstanceIDs: datatypes.JSON(`["obj-1", "obj-2"]`),
		Metrics:           datatypes.JSON(`["cpu_usage", "memory_usage"]`),
		CollectionPeriod:  60,
		ReportingPeriod:   300,
	}

	g := NewGenerator(reportsConfig(), newFakeJobs(job), samples)
	payload, err := g.buildReport(context.Background(), job)
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}

	if payload["reportType"] != "performanceReport" {
		t.Errorf("reportType: got %v", payload["reportType"])
	}
	if payload["jobId"] != "job-1" {
		t.Errorf("jobId: got %v", payload["jobId"])
	}
	if payload["reportingPeriod"] != 300 || payload["collectionPeriod"] != 60 {
		t.Errorf("periods: got %v/%v", payload["reportingPeriod"], payload["collectionPeriod"])
	}

	data := payload["data"].([]objectReport)
	if len(data) != 2 {
		t.Fatalf("data entries: got %d, want 2", len(data))
	}

	byID := map[string]objectReport{}
	for _, obj := range data {
		byID[obj.ObjectInstanceID] = obj
	}

	obj1 := byID["obj-1"]
	if len(obj1.PerformanceMetrics) != 1 {
		t.Fatalf("obj-1 metrics: got %d, want 1 (memory omitted)", len(obj1.PerformanceMetrics))
	}
	cpu := obj1.PerformanceMetrics["cpu_usage"]
	if cpu.Current != 60 || cpu.Samples != 2 || cpu.Average != 55 {
		t.Errorf("obj-1 cpu aggregate: got %+v", cpu)
	}

	if len(byID["obj-2"].PerformanceMetrics) != 0 {
		t.Errorf("obj-2 metrics: got %d, want 0", len(byID["obj-2"].PerformanceMetrics))
	}
}

func TestGenerate_AdvancesLastReportOnlyOnSuccess(t *testing.T) {
	var mu sync.Mutex
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
	}))
	defer srv.Close()

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job := &store.PerformanceJob{
		JobID:            "job-1",
		CallbackURI:      srv.URL,
		ReportingPeriod:  300,
		CollectionPeriod: 60,
		CreatedAt:        t0,
	}
	jobs := newFakeJobs(job)
	g := NewGenerator(reportsConfig(), jobs, &fakeSamples{})
	g.now = fixedClock(t0.Add(400 * time.Second))

	// Failing callback: the job must stay eligible.
	g.checkJobs(context.Background())
	if _, ok := jobs.lastReports["job-1"]; ok {
		t.Fatal("last report advanced after failed delivery")
	}
	if !shouldGenerate(job, t0.Add(401*time.Second)) {
		t.Fatal("job no longer eligible after failed delivery")
	}

	// Callback recovers: the next cycle delivers and records the time.
	mu.Lock()
	status = http.StatusOK
	mu.Unlock()

	g.checkJobs(context.Background())
	if _, ok := jobs.lastReports["job-1"]; !ok {
		t.Fatal("last report not advanced after successful delivery")
	}
	if shouldGenerate(job, t0.Add(500*time.Second)) {
		t.Error("job still eligible right after successful report")
	}
}

func TestGenerate_DeliversReportEnvelope(t *testing.T) {
	var mu sync.Mutex
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	samples := &fakeSamples{}
	samples.add("obj-1", "cpu_usage", 42)

	job := &store.PerformanceJob{
		JobID:             "job-1",
		ObjectInstanceIDs: datatypes.JSON(`["obj-1"]`),
		Metrics:           datatypes.JSON(`["cpu_usage"]`),
		CallbackURI:       srv.URL,
		ReportingPeriod:   300,
		CollectionPeriod:  60,
	}
	jobs := newFakeJobs(job)
	g := NewGenerator(reportsConfig(), jobs, samples)

	if err := g.GenerateNow(context.Background(), "job-1"); err != nil {
		t.Fatalf("GenerateNow: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received["reportType"] != "performanceReport" {
		t.Errorf("reportType: got %v", received["reportType"])
	}
	data := received["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("data: got %d entries, want 1", len(data))
	}
	obj := data[0].(map[string]any)
	if obj["objectType"] != "Resource" {
		t.Errorf("objectType: got %v, want Resource default", obj["objectType"])
	}
	metricsMap := obj["performanceMetrics"].(map[string]any)
	cpu := metricsMap["cpu_usage"].(map[string]any)
	if cpu["current"] != 42.0 || cpu["samples"] != 1.0 {
		t.Errorf("cpu aggregate over the wire: got %v", cpu)
	}
}

func TestGenerateNow_UnknownJob(t *testing.T) {
	g := NewGenerator(reportsConfig(), newFakeJobs(), &fakeSamples{})
	if err := g.GenerateNow(context.Background(), "nope"); err == nil {
		t.Fatal("GenerateNow on unknown job: expected error")
	}
}

func TestGenerate_NoCallbackIsError(t *testing.T) {
	job := &store.PerformanceJob{JobID: "job-1", ReportingPeriod: 300}
	g := NewGenerator(reportsConfig(), newFakeJobs(job), &fakeSamples{})
	if err := g.GenerateNow(context.Background(), "job-1"); err == nil {
		t.Fatal("expected error for job without callback")
	}
}
