// Package resolver turns cache misses into source fetches.
//
// Concurrent resolutions of one key share a single in-flight fetch. Each key
// carries an epoch that Invalidate advances; a fetch that started in an older
// epoch still answers its waiters but never writes the cache.
//
// # Architecture boundaries
//
// This package owns fetch coalescing and write-back. Cache validity rules
// live in cache and snapshot; access decisions live in access.
//
// # What this package must NOT do
//
//   - Cache failed fetches.
//   - Retry fetches on its own.
//   - Import goGuard.
package resolver
