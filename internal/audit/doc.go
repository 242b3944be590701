// Package audit delivers permission engine events (denials, optimistic grants,
// resolve failures, invalidations) to pluggable sinks without blocking the
// decision path.
//
// The engine decides what to emit; this package only buffers and delivers.
// It must not import goGuard or any sibling internal package.
package audit
