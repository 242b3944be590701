// Package permission provides the enumerated permission registry, fixed-size bitmask
// types, and role composition helpers used by goGuard snapshots and access checks.
//
// # Naming convention
//
// Permission names are either flat ("view_dashboard") or module-scoped using a single
// dot ("chat.reply"). Nested grant maps returned by permission sources
// (module -> sub-permission -> bool) are flattened into the dotted form by [Compile].
//
// # Mask sizes
//
// Supported widths: 64, 128, 256, and 512 bits. A width is selected at registry
// construction time and is immutable thereafter. Bit positions are assigned by
// [Registry.Register] and are stable for the lifetime of the process.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. It provides the
// codec (EncodeMask/DecodeMask) used by the snapshot encoder.
//
// # What this package must NOT do
//
//   - Access Redis, Badger, or the network.
//   - Import goGuard, cache, or snapshot.
//   - Treat an unregistered name as granted.
package permission
