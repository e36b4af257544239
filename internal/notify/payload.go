package notify

import (
	"fmt"
	"time"

	"github.com/ocloudstack/ocloudstack/internal/store"
)

// Envelope field values for the two object kinds this service delivers.
const (
	objectTypeResource = "ResourceInfo"
	objectTypeAlarm    = "AlarmEventRecord"
)

// resourcePayload builds the notification envelope for a resource event.
// Field names are the wire contract and must not change.
func resourcePayload(ev Event, sub *store.Subscription, now time.Time) map[string]any {
	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		"notificationEventType": ev.Type,
		"objectRef":             fmt.Sprintf("/O2ims_infrastructureInventory/v1/resources/%s", ev.ResourceID),
		"objectType":            objectTypeResource,
		"notificationId":        ev.NotificationID,
		"subscriptionId":        sub.SubscriptionID,
		"timestamp":             now.UTC().Format(time.RFC3339),
		"data":                  data,
	}
}

// alarmPayload builds the notification envelope for an alarm event.
func alarmPayload(ev Event, alarm *store.Alarm, sub *store.Subscription, now time.Time) map[string]any {
	return map[string]any{
		"notificationEventType": ev.Type,
		"objectRef":             fmt.Sprintf("/O2dms_infrastructureMonitoring/v1/alarms/%s", alarm.AlarmID),
		"objectType":            objectTypeAlarm,
		"notificationId":        ev.NotificationID,
		"subscriptionId":        sub.SubscriptionID,
		"timestamp":             now.UTC().Format(time.RFC3339),
		"alarmId":               alarm.AlarmID,
		"resourceId":            alarm.ResourceID,
		"perceivedSeverity":     alarm.PerceivedSeverity,
		"probableCause":         alarm.ProbableCause,
		"alarmRaisedTime":       alarm.RaisedTime.UTC().Format(time.RFC3339),
	}
}
