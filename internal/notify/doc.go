// Package notify implements the asynchronous notification pipeline: a
// bounded event queue, a single delivery worker that matches events
// against subscriber filters, and best-effort HTTP callback delivery with
// retry and exponential backoff.
package notify
