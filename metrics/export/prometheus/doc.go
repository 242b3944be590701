// Package prometheus exposes goGuard engine metrics to a client_golang
// registry.
//
// [Collector] reads [goGuard.Engine.MetricsSnapshot] on every scrape and
// emits constant counters (goguard_*_total) plus the
// goguard_resolve_latency_seconds histogram. [Exporter] wraps a collector in
// a private registry for callers that only want an http.Handler.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry.
//   - Mutate engine state.
package prometheus
