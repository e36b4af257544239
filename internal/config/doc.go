// Package config loads and validates the monitor configuration from YAML,
// including alarm thresholds, evaluation and reporting intervals, and
// notification delivery settings. Watch provides hot reload of the config
// file so threshold changes take effect without a restart.
package config
