// Package sinks implements concrete lifecycle event consumers: structured
// logging, Prometheus collectors and the blob archive of completed reports.
// Each sink satisfies progress.Sink and is safe for repeated Consume/Close
// cycles.
package sinks
