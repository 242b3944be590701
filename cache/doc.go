// Package cache implements the two-tier permission snapshot cache: a volatile
// in-process map in front of a durable key-value store.
//
// # Read path
//
// [Store.Get] checks the volatile map first and falls back to the durable tier,
// validating age before returning. Valid durable records are promoted into the
// volatile map. Records past their hard MaxAge are deleted on read; nothing is
// swept proactively.
//
// # Degraded mode
//
// Every durable failure (unavailable backend, quota, codec errors) is logged and
// reported as a cache event, then treated as a miss or a no-op. Memory-only
// operation is a supported mode, never an error returned to the caller.
//
// # Key layout
//
// Durable keys are "<prefix>:<organization>:<user>". [Store.Clear] deletes only
// keys under "<prefix>:", leaving unrelated data in the same backend untouched.
//
// # What this package must NOT do
//
//   - Call the permission source.
//   - Evaluate access requirements.
//   - Return durable-tier errors from Get, Set, Invalidate, or Clear.
package cache
