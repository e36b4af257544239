// Package collector produces metric samples by scraping Prometheus text
// exposition endpoints on a fixed interval and recording the configured
// metric families into the sample store, where the threshold evaluator and
// the report generator consume them.
package collector
