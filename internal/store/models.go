package store

import (
	"time"

	"gorm.io/datatypes"
)

// Alarm severities as stored and delivered over the wire.
const (
	SeverityCritical = "CRITICAL"
	SeverityMajor    = "MAJOR"
	SeverityMinor    = "MINOR"
	SeverityWarning  = "WARNING"
)

// Resource is one monitored infrastructure or process entity.
// Extensions is an opaque JSON bag; for process-backed resources it carries
// the discovered process info and its resource usage:
//
//	{"process": {"pid": 1234, ...}, "resources": {"cpu_percent": 12.5, "memory_percent": 3.1}}
type Resource struct {
	ResourceID       string         `gorm:"primaryKey" json:"resourceId"`
	ResourceTypeID   string         `gorm:"index" json:"resourceTypeId"`
	ResourcePoolID   string         `gorm:"index" json:"resourcePoolId"`
	Name             string         `json:"name"`
	OperationalState string         `json:"operationalState"`
	Extensions       datatypes.JSON `json:"extensions"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Sample is one time-stamped metric measurement for a resource.
// Samples are append-only.
type Sample struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	ResourceID string    `gorm:"index:idx_sample_key" json:"resourceId"`
	MetricName string    `gorm:"index:idx_sample_key" json:"metricName"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
}

// Alarm is a fault record. It is created open, may change severity while
// open, and transitions to cleared exactly once. Alarms are never deleted;
// cleared alarms remain as fault history.
type Alarm struct {
	AlarmID    string `gorm:"primaryKey" json:"alarmId"`
	ResourceID string `gorm:"index" json:"resourceId"`
	// Condition is the dedup tag the alarm was raised under: a metric name
	// for threshold alarms, a condition tag (e.g. "process_not_found") for
	// boolean checks. Empty for manually created alarms, which are not
	// deduplicated.
	Condition         string     `gorm:"index" json:"condition,omitempty"`
	PerceivedSeverity string     `gorm:"index" json:"perceivedSeverity"`
	ProbableCause     string     `json:"probableCause"`
	AlarmType         string     `json:"alarmType"`
	IsRootCause       bool       `json:"isRootCause"`
	RaisedTime        time.Time  `json:"alarmRaisedTime"`
	ChangedTime       time.Time  `json:"alarmChangedTime"`
	ClearedTime       *time.Time `gorm:"index" json:"alarmClearedTime,omitempty"`
	Acknowledged      bool       `json:"alarmAcknowledged"`
	AcknowledgedTime  *time.Time `json:"alarmAcknowledgedTime,omitempty"`
}

// Cleared reports whether the alarm has transitioned to the cleared state.
func (a *Alarm) Cleared() bool { return a.ClearedTime != nil }

// AlarmPatch is a typed partial update for an open alarm. Nil fields are
// left untouched. Any applied patch also advances ChangedTime.
type AlarmPatch struct {
	Severity     *string
	Acknowledged *bool
}

// Subscription is a registered notification consumer: a callback URI plus
// an opaque JSON filter predicate. Subscriptions are created and deleted by
// the API layer; the dispatcher only reads them.
type Subscription struct {
	SubscriptionID         string         `gorm:"primaryKey" json:"subscriptionId"`
	SubscriptionType       string         `gorm:"index" json:"subscriptionType"`
	CallbackURI            string         `json:"callback"`
	Filter                 datatypes.JSON `json:"filter"`
	ConsumerSubscriptionID string         `json:"consumerSubscriptionId,omitempty"`
	CreatedAt              time.Time      `json:"createdAt"`
}

// PerformanceJob is a standing request to periodically aggregate metrics
// for a set of object instances and deliver the report to a callback.
// LastReportTime is advanced by the report generator only after a
// successful delivery.
type PerformanceJob struct {
	JobID             string         `gorm:"primaryKey" json:"jobId"`
	ObjectType        string         `json:"objectType"`
	ObjectInstanceIDs datatypes.JSON `json:"objectInstanceIds"` // JSON array of resource ids
	Metrics           datatypes.JSON `json:"performanceMetrics"` // JSON array of metric names
	CallbackURI       string         `json:"callback"`
	CollectionPeriod  int            `json:"collectionPeriod"` // seconds
	ReportingPeriod   int            `json:"reportingPeriod"`  // seconds
	CreatedAt         time.Time      `json:"createdAt"`
	LastReportTime    *time.Time     `json:"lastReportTime,omitempty"`
}
