// Package store implements the durable SQLite-backed stores shared by the
// monitor components: resources, metric samples, alarms, subscriptions, and
// performance jobs. Each store method is atomic from the caller's point of
// view; the package does not provide cross-call transactions.
package store
