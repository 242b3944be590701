// Package metrics stores goGuard counters and latency histograms.
//
// Every counter sits in its own 64-byte slot so that hot counters on different
// cores do not share a cache line. Histograms have eight fixed buckets, the
// last one unbounded. Writes never allocate. Names and export formats belong
// to goGuard and metrics/export.
package metrics
