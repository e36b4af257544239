package alarms

import (
	"fmt"

	"github.com/ocloudstack/ocloudstack/internal/config"
	"github.com/ocloudstack/ocloudstack/internal/store"
)

// Condition tags for boolean (non-threshold) checks.
const (
	CondProcessNotFound     = "process_not_found"
	CondResourceStateChange = "resource_state_change"
)

// Action is the outcome of classifying one sample against its thresholds.
type Action int

const (
	// ActionNone means the value sits in the hysteresis gap between the
	// clear and minor bounds: no alarm is raised and an existing alarm,
	// if any, persists unchanged.
	ActionNone Action = iota

	// ActionRaise means a severity bound was crossed.
	ActionRaise

	// ActionClear means the value fell below the clear bound.
	ActionClear
)

// Classify compares value against ts and returns the resulting action,
// the severity for ActionRaise, and the boundary that was crossed.
//
// Matching is strictly highest-severity-first: critical, then major, then
// minor, then the clear bound. A misordered threshold set is not corrected;
// the first matching branch wins.
func Classify(value float64, ts config.ThresholdSet) (Action, string, float64) {
	switch {
	case value >= ts.Critical:
		return ActionRaise, store.SeverityCritical, ts.Critical
	case value >= ts.Major:
		return ActionRaise, store.SeverityMajor, ts.Major
	case value >= ts.Minor:
		return ActionRaise, store.SeverityMinor, ts.Minor
	case value < ts.Clear:
		return ActionClear, "", ts.Clear
	default:
		return ActionNone, "", 0
	}
}

// alarmTypes maps a condition tag to its alarm type classification.
var alarmTypes = map[string]string{
	"cpu_usage":             "ProcessingError",
	"memory_usage":          "MemoryError",
	"disk_usage":            "StorageCapacityProblem",
	"gnb_process_cpu":       "ProcessingError",
	"gnb_process_memory":    "MemoryError",
	CondProcessNotFound:     "CommunicationsAlarm",
	CondResourceStateChange: "EquipmentAlarm",
}

// alarmTypeFor returns the alarm type for a condition tag, defaulting to
// "Other" for unmapped conditions.
func alarmTypeFor(condition string) string {
	if t, ok := alarmTypes[condition]; ok {
		return t
	}
	return "Other"
}

// probableCause builds the human-readable cause string for a threshold
// crossing.
func probableCause(condition string, value, threshold float64) string {
	switch condition {
	case "cpu_usage":
		return fmt.Sprintf("System CPU usage %.1f%% exceeds %.0f%% threshold", value, threshold)
	case "memory_usage":
		return fmt.Sprintf("System memory usage %.1f%% exceeds %.0f%% threshold", value, threshold)
	case "disk_usage":
		return fmt.Sprintf("Disk usage %.1f%% exceeds %.0f%% threshold", value, threshold)
	case "gnb_process_cpu":
		return fmt.Sprintf("gNB process CPU usage %.1f%% exceeds %.0f%% threshold", value, threshold)
	case "gnb_process_memory":
		return fmt.Sprintf("gNB process memory usage %.1f%% exceeds %.0f%% threshold", value, threshold)
	default:
		return fmt.Sprintf("Metric %s value %.1f exceeds %.0f threshold", condition, value, threshold)
	}
}
