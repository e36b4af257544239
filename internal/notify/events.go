package notify

import "github.com/google/uuid"

// Notification event types as they appear on the wire in
// notificationEventType.
const (
	EventResourceCreated = "resourceInfo.created"
	EventResourceUpdated = "resourceInfo.updated"
	EventResourceDeleted = "resourceInfo.deleted"
	EventAlarmRaised     = "alarm.raised"
	EventAlarmChanged    = "alarm.changed"
	EventAlarmCleared    = "alarm.cleared"
)

// Event is one transient unit of delivery work. Events live only in the
// dispatch queue: they are never persisted and are lost on restart.
type Event struct {
	Type           string
	NotificationID string

	// ResourceID is set for resource events.
	ResourceID string

	// Data carries the resource representation for created/updated events.
	Data map[string]any

	// AlarmID is set for alarm events.
	AlarmID string
}

// isAlarm reports whether the event describes an alarm transition.
func (e Event) isAlarm() bool {
	switch e.Type {
	case EventAlarmRaised, EventAlarmChanged, EventAlarmCleared:
		return true
	}
	return false
}

// isResource reports whether the event describes an inventory change.
func (e Event) isResource() bool {
	switch e.Type {
	case EventResourceCreated, EventResourceUpdated, EventResourceDeleted:
		return true
	}
	return false
}

// newNotificationID returns an id unique per event instance.
func newNotificationID() string {
	return "notif-" + uuid.NewString()
}
