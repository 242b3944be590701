// Package goGuard caches per-organization permission snapshots and gates
// protected regions on required, any-of and all-of permission predicates.
//
// An [Engine] is built once per process with [Builder]. It reads snapshots
// through a two-tier cache (volatile map plus an optional Redis or Badger
// durable tier), fetches missing ones from a [source.Source] exactly once per
// key no matter how many callers are waiting, and evaluates requirements with
// [access.Evaluator].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config],
// [Tracker] and value types. Fetch coalescing, audit dispatch and metric
// storage live under internal/ and are never exported. HTTP adapters live in
// the guard package; the NATS invalidation bus lives in invalidation.
//
// # Failure model
//
//   - Durable tier failures are logged and counted, never returned. The engine
//     keeps serving from memory.
//   - Fetch failures wrap [ErrResolveFailed] and are never cached.
//   - Unknown permission names and malformed snapshots grant nothing.
//
// # What this package must NOT do
//
//   - Compute permissions itself; the source is the only authority.
//   - Install a global logger.
//   - Import any sub-package that re-imports goGuard.
package goGuard
