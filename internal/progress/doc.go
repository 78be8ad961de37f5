// Package progress provides the scan lifecycle events, the non-blocking hub and
// the emitter interfaces the monitor uses to report run progress. Events are
// batched on a background goroutine and fanned out to sinks such as Prometheus
// metrics, structured logs or the per-client stats table.
package progress
