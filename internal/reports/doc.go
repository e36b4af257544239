// Package reports implements the performance report generator: it polls
// active performance jobs on a short interval, aggregates raw metric
// samples over each job's collection window, and delivers the report to
// the job's callback URI.
package reports
