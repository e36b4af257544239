// Package alarms implements the threshold evaluation loop and the alarm
// lifecycle: classifying metric samples against severity thresholds,
// raising and clearing deduplicated alarm records, and handing lifecycle
// transitions to the notification dispatcher.
package alarms
