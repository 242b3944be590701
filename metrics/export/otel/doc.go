// Package otel publishes goGuard engine metrics as OpenTelemetry observable
// instruments.
//
// Each counter becomes an Int64ObservableCounter. The latency histogram is
// exposed as one cumulative Int64ObservableGauge per bucket plus a count
// gauge. One callback reads [goGuard.Engine.MetricsSnapshot] per collection.
//
// The caller owns the MeterProvider and supplies the Meter.
package otel
