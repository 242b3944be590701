// Package snapshot defines the immutable permission snapshot cached per
// (user, organization) and its durable CBOR encoding.
//
// # Validity
//
// A snapshot is valid iff now-CapturedAt <= TTL and now-CapturedAt <= MaxAge.
// MaxAge is a hard ceiling: [Snapshot.ValidRelaxed] ignores TTL but never MaxAge.
//
// # Encoding
//
// Records are CBOR maps with integer keys and a leading schema version. Decoding a
// record with an unknown version fails with [ErrSchema]; the cache treats that as a
// miss and deletes the record.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Mutate a snapshot after construction (a refresh replaces it wholesale).
package snapshot
