package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/ocloudstack/ocloudstack/internal/config"
	"github.com/ocloudstack/ocloudstack/internal/store"
)

// SubscriptionLister enumerates registered subscribers.
type SubscriptionLister interface {
	List(ctx context.Context, subscriptionType string) ([]store.Subscription, error)
}

// ResourceGetter resolves a resource's current stored state for filter
// matching.
type ResourceGetter interface {
	Get(ctx context.Context, resourceID string) (*store.Resource, error)
}

// AlarmGetter resolves an alarm referenced by an event.
type AlarmGetter interface {
	Get(ctx context.Context, alarmID string) (*store.Alarm, error)
}

// Dispatcher owns the notification queue and its single delivery worker.
// Producers enqueue from any goroutine; the worker matches each event
// against subscriber filters and delivers sequentially, so ordering is
// preserved per producer but not guaranteed across racing producers.
//
// The queue is bounded: when full, the oldest pending event is dropped to
// admit the newest. Queued events are lost on process exit.
type Dispatcher struct {
	queue chan Event

	subs      SubscriptionLister
	resources ResourceGetter
	alarms    AlarmGetter
	sender    *Sender

	now func() time.Time // injectable for deterministic tests
}

// NewDispatcher builds a Dispatcher from the notification config and its
// store collaborators.
func NewDispatcher(cfg config.NotifyConfig, subs SubscriptionLister,
	resources ResourceGetter, alarms AlarmGetter) *Dispatcher {

	return &Dispatcher{
		queue:     make(chan Event, cfg.QueueSize),
		subs:      subs,
		resources: resources,
		alarms:    alarms,
		sender:    NewSender(cfg.DeliveryTimeout, cfg.MaxRetries),
		now:       time.Now,
	}
}

// Run processes the queue until ctx is cancelled. An in-flight delivery
// attempt at shutdown is abandoned when its request context is cancelled;
// queued events are discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("notify: dispatcher started", "queue_cap", cap(d.queue))
	for {
		select {
		case <-ctx.Done():
			slog.Info("notify: dispatcher stopped", "pending", len(d.queue))
			return
		case ev := <-d.queue:
			d.process(ctx, ev)
		}
	}
}

// Pending returns the number of queued, not-yet-processed events.
func (d *Dispatcher) Pending() int { return len(d.queue) }

// enqueue adds ev to the queue, evicting the oldest pending event when the
// queue is full.
func (d *Dispatcher) enqueue(ev Event) {
	select {
	case d.queue <- ev:
		return
	default:
	}

	select {
	case old := <-d.queue:
		slog.Warn("notify: queue full, dropped oldest event",
			"dropped", old.Type, "queue_cap", cap(d.queue))
	default:
	}
	d.queue <- ev
}

// ResourceCreated enqueues a resource creation event.
func (d *Dispatcher) ResourceCreated(resourceID string, data map[string]any) {
	d.enqueue(Event{
		Type:           EventResourceCreated,
		NotificationID: newNotificationID(),
		ResourceID:     resourceID,
		Data:           data,
	})
}

// ResourceUpdated enqueues a resource update event.
func (d *Dispatcher) ResourceUpdated(resourceID string, data map[string]any) {
	d.enqueue(Event{
		Type:           EventResourceUpdated,
		NotificationID: newNotificationID(),
		ResourceID:     resourceID,
		Data:           data,
	})
}

// ResourceDeleted enqueues a resource deletion event.
func (d *Dispatcher) ResourceDeleted(resourceID string) {
	d.enqueue(Event{
		Type:           EventResourceDeleted,
		NotificationID: newNotificationID(),
		ResourceID:     resourceID,
	})
}

// AlarmRaised enqueues an alarm raised event.
func (d *Dispatcher) AlarmRaised(alarmID string) {
	d.enqueue(Event{
		Type:           EventAlarmRaised,
		NotificationID: newNotificationID(),
		AlarmID:        alarmID,
	})
}

// AlarmChanged enqueues an alarm severity change event.
func (d *Dispatcher) AlarmChanged(alarmID string) {
	d.enqueue(Event{
		Type:           EventAlarmChanged,
		NotificationID: newNotificationID(),
		AlarmID:        alarmID,
	})
}

// AlarmCleared enqueues an alarm cleared event.
func (d *Dispatcher) AlarmCleared(alarmID string) {
	d.enqueue(Event{
		Type:           EventAlarmCleared,
		NotificationID: newNotificationID(),
		AlarmID:        alarmID,
	})
}

// process delivers one event to all matching subscribers.
func (d *Dispatcher) process(ctx context.Context, ev Event) {
	switch {
	case ev.isResource():
		d.deliverResource(ctx, ev)
	case ev.isAlarm():
		d.deliverAlarm(ctx, ev)
	default:
		// Performance reports go out through the report generator, not
		// this queue.
		slog.Warn("notify: unknown event type, dropping", "type", ev.Type)
	}
}

// deliverResource matches a resource event against every subscription and
// delivers the envelope to each match.
func (d *Dispatcher) deliverResource(ctx context.Context, ev Event) {
	subs, err := d.subs.List(ctx, "")
	if err != nil {
		slog.Error("notify: listing subscriptions failed, dropping event",
			"type", ev.Type, "err", err)
		return
	}

	fc := d.resolveContext(ctx, ev.ResourceID)

	for i := range subs {
		sub := &subs[i]
		if !Matches(sub.Filter, fc) {
			continue
		}
		payload := resourcePayload(ev, sub, d.now())
		if err := d.sender.Send(ctx, sub.CallbackURI, payload); err != nil {
			slog.Error("notify: resource notification dropped",
				"type", ev.Type, "subscription", sub.SubscriptionID, "err", err)
		}
	}
}

// resolveContext loads the resource's current stored attributes for filter
// matching. A resource that no longer exists (e.g. a deletion event)
// yields a context with only the id: filters on pool or type then fail to
// match.
func (d *Dispatcher) resolveContext(ctx context.Context, resourceID string) FilterContext {
	fc := FilterContext{ResourceID: resourceID}
	r, err := d.resources.Get(ctx, resourceID)
	if err != nil {
		slog.Warn("notify: resource lookup failed", "resource", resourceID, "err", err)
		return fc
	}
	if r != nil {
		fc.ResourcePoolID = r.ResourcePoolID
		fc.ResourceTypeID = r.ResourceTypeID
	}
	return fc
}

// deliverAlarm fetches the alarm behind an event and delivers it to every
// subscription whose filter admits the alarm's resource.
func (d *Dispatcher) deliverAlarm(ctx context.Context, ev Event) {
	alarm, err := d.alarms.Get(ctx, ev.AlarmID)
	if err != nil {
		slog.Error("notify: alarm lookup failed, dropping event",
			"alarm", ev.AlarmID, "err", err)
		return
	}
	if alarm == nil {
		// Raced with a deletion; nothing to deliver.
		slog.Debug("notify: alarm gone, dropping event", "alarm", ev.AlarmID)
		return
	}

	subs, err := d.subs.List(ctx, "")
	if err != nil {
		slog.Error("notify: listing subscriptions failed, dropping event",
			"type", ev.Type, "err", err)
		return
	}

	for i := range subs {
		sub := &subs[i]
		if !MatchesAlarm(sub.Filter, alarm.ResourceID) {
			continue
		}
		payload := alarmPayload(ev, alarm, sub, d.now())
		if err := d.sender.Send(ctx, sub.CallbackURI, payload); err != nil {
			slog.Error("notify: alarm notification dropped",
				"type", ev.Type, "alarm", alarm.AlarmID,
				"subscription", sub.SubscriptionID, "err", err)
		}
	}
}
