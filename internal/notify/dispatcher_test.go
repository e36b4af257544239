package notify

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

type fakeSubs struct{ subs []store.Subscription }

func (f *fakeSubs) List(context.Context, string) ([]store.Subscription, error) {
	return f.subs, nil
}

type fakeResourceGetter struct{ resources map[string]*store.Resource }

func (f *fakeResourceGetter) Get(_ context.Context, id string) (*store.Resource, error) {
	return f.resources[id], nil
}

type fakeAlarmGetter struct{ alarms map[string]*store.Alarm }

func (f *fakeAlarmGetter) Get(_ context.Context, id string) (*store.Alarm, error) {
	return f.alarms[id], nil
}

// callbackRecorder collects delivered payloads behind a test HTTP server.
type callbackRecorder struct {
	mu       sync.Mutex
	payloads []map[string]any
	srv      *httptest.Server
}

func newCallbackRecorder() *callbackRecorder {
	rec := &callbackRecorder{}
	rec.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			rec.mu.Lock()
			rec.payloads = append(rec.payloads, payload)
			rec.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return rec
}

func (r *callbackRecorder) delivered() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.payloads...)
}

func notifyConfig() config.NotifyConfig {
	return config.NotifyConfig{
		Enabled:         true,
		QueueSize:       16,
		DeliveryTimeout: time.Second,
		MaxRetries:      1,
	}
}

func TestDispatcher_DeliversAlarmEnvelope(t *testing.T) {
	rec := newCallbackRecorder()
	defer rec.srv.Close()

	raised := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alarms := &fakeAlarmGetter{alarms: map[string]*store.Alarm{
		"alarm-1": {
			AlarmID:           "alarm-1",
			ResourceID:        "res-1",
			PerceivedSeverity: store.SeverityCritical,
			ProbableCause:     "System CPU usage 96.0% exceeds 95% threshold",
			RaisedTime:        raised,
		},
	}}
	subs := &fakeSubs{subs: []store.Subscription{
		{SubscriptionID: "sub-1", CallbackURI: rec.srv.URL},
	}}

	d := NewDispatcher(notifyConfig(), subs, &fakeResourceGetter{}, alarms)
	d.process(context.Background(), Event{
		Type:           EventAlarmRaised,
		NotificationID: "notif-test",
		AlarmID:        "alarm-1",
	})

	got := rec.delivered()
	if len(got) != 1 {
		t.Fatalf("deliveries: got %d, want 1", len(got))
	}

	payload := got[0]
	want := map[string]string{
		"notificationEventType": "alarm.raised",
		"objectRef":             "/O2dms_infrastructureMonitoring/v1/alarms/alarm-1",
		"objectType":            "AlarmEventRecord",
		"notificationId":        "notif-test",
		"subscriptionId":        "sub-1",
		"alarmId":               "alarm-1",
		"resourceId":            "res-1",
		"perceivedSeverity":     "CRITICAL",
		"probableCause":         "System CPU usage 96.0% exceeds 95% threshold",
		"alarmRaisedTime":       "2024-05-01T12:00:00Z",
	}
	for field, v := range want {
		if payload[field] != v {
			t.Errorf("%s: got %v, want %q", field, payload[field], v)
		}
	}
	if _, ok := payload["timestamp"]; !ok {
		t.Error("payload missing timestamp")
	}
}

func TestDispatcher_AlarmGoneDropsSilently(t *testing.T) {
	rec := newCallbackRecorder()
	defer rec.srv.Close()

	subs := &fakeSubs{subs: []store.Subscription{
		{SubscriptionID: "sub-1", CallbackURI: rec.srv.URL},
	}}
	d := NewDispatcher(notifyConfig(), subs, &fakeResourceGetter{}, &fakeAlarmGetter{})

	d.process(context.Background(), Event{
		Type:           EventAlarmRaised,
		NotificationID: "notif-test",
		AlarmID:        "missing",
	})

	if got := rec.delivered(); len(got) != 0 {
		t.Errorf("deliveries for missing alarm: got %d, want 0", len(got))
	}
}

func TestDispatcher_AlarmFilterByResource(t *testing.T) {
	rec := newCallbackRecorder()
	defer rec.srv.Close()

	alarms := &fakeAlarmGetter{alarms: map[string]*store.Alarm{
		"alarm-1": {AlarmID: "alarm-1", ResourceID: "res-1"},
	}}
	subs := &fakeSubs{subs: []store.Subscription{
		{SubscriptionID: "wants-res-1", CallbackURI: rec.srv.URL,
			Filter: datatypes.JSON(`{"resourceId": "res-1"}`)},
		{SubscriptionID: "wants-res-2", CallbackURI: rec.srv.URL,
			Filter: datatypes.JSON(`{"resourceId": "res-2"}`)},
		{SubscriptionID: "wants-all", CallbackURI: rec.srv.URL},
	}}

	d := NewDispatcher(notifyConfig(), subs, &fakeResourceGetter{}, alarms)
	d.process(context.Background(), Event{
		Type:           EventAlarmCleared,
		NotificationID: "notif-test",
		AlarmID:        "alarm-1",
	})

	got := rec.delivered()
	if len(got) != 2 {
		t.Fatalf("deliveries: got %d, want 2", len(got))
	}
	seen := map[string]bool{}
	for _, p := range got {
		seen[p["subscriptionId"].(string)] = true
	}
	if !seen["wants-res-1"] || !seen["wants-all"] || seen["wants-res-2"] {
		t.Errorf("delivered to wrong subscriptions: %v", seen)
	}
}

func TestDispatcher_ResourceEventFilterUsesStoredState(t *testing.T) {
	rec := newCallbackRecorder()
	defer rec.srv.Close()

	resources := &fakeResourceGetter{resources: map[string]*store.Resource{
		"res-1": {ResourceID: "res-1", ResourcePoolID: "pool-1", ResourceTypeID: "type-a"},
	}}
	subs := &fakeSubs{subs: []store.Subscription{
		{SubscriptionID: "pool-match", CallbackURI: rec.srv.URL,
			Filter: datatypes.JSON(`{"resourcePoolId": "pool-1"}`)},
		{SubscriptionID: "pool-miss", CallbackURI: rec.srv.URL,
			Filter: datatypes.JSON(`{"resourcePoolId": "pool-9"}`)},
	}}

	d := NewDispatcher(notifyConfig(), subs, resources, &fakeAlarmGetter{})
	d.process(context.Background(), Event{
		Type:           EventResourceUpdated,
		NotificationID: "notif-test",
		ResourceID:     "res-1",
		Data:           map[string]any{"operationalState": "enabled"},
	})

	got := rec.delivered()
	if len(got) != 1 {
		t.Fatalf("deliveries: got %d, want 1", len(got))
	}
	p := got[0]
	if p["subscriptionId"] != "pool-match" {
		t.Errorf("subscriptionId: got %v, want pool-match", p["subscriptionId"])
	}
	if p["objectRef"] != "/O2ims_infrastructureInventory/v1/resources/res-1" {
		t.Errorf("objectRef: got %v", p["objectRef"])
	}
	if p["objectType"] != "ResourceInfo" {
		t.Errorf("objectType: got %v", p["objectType"])
	}
	data, ok := p["data"].(map[string]any)
	if !ok || data["operationalState"] != "enabled" {
		t.Errorf("data: got %v", p["data"])
	}
}

func TestDispatcher_QueueEvictsOldestWhenFull(t *testing.T) {
	cfg := notifyConfig()
	cfg.QueueSize = 2
	d := NewDispatcher(cfg, &fakeSubs{}, &fakeResourceGetter{}, &fakeAlarmGetter{})

	d.AlarmRaised("a1")
	d.AlarmRaised("a2")
	d.AlarmRaised("a3") // evicts a1

	if got := d.Pending(); got != 2 {
		t.Fatalf("pending: got %d, want 2", got)
	}
	first := <-d.queue
	if first.AlarmID != "a2" {
		t.Errorf("front of queue: got %q, want a2 (a1 evicted)", first.AlarmID)
	}
}

func TestDispatcher_RunDrainsQueue(t *testing.T) {
	rec := newCallbackRecorder()
	defer rec.srv.Close()

	alarms := &fakeAlarmGetter{alarms: map[string]*store.Alarm{
		"alarm-1": {AlarmID: "alarm-1", ResourceID: "res-1"},
	}}
	subs := &fakeSubs{subs: []store.Subscription{
		{SubscriptionID: "sub-1", CallbackURI: rec.srv.URL},
	}}

	d := NewDispatcher(notifyConfig(), subs, &fakeResourceGetter{}, alarms)
	d.AlarmRaised("alarm-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(rec.delivered()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for delivery")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestEventNotificationIDsAreUnique(t *testing.T) {
	d := NewDispatcher(notifyConfig(), &fakeSubs{}, &fakeResourceGetter{}, &fakeAlarmGetter{})
	d.AlarmRaised("a")
	d.AlarmRaised("a")

	e1, e2 := <-d.queue, <-d.queue
	if e1.NotificationID == e2.NotificationID {
		t.Errorf("notification ids not unique: %q", e1.NotificationID)
	}
}
