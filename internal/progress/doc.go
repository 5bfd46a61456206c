// Package progress provides the lifecycle event primitives and the
// non-blocking hub used by the report controller. Events are batched on a
// background goroutine and fanned out to pluggable sinks such as Prometheus
// metrics, structured logs, or the report archive.
package progress
