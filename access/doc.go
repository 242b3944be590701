// Package access decides whether a permission snapshot satisfies a requirement.
//
// The evaluator is a pure function of its inputs. Every decision carries a
// reason code so callers can tell why access was refused, not only whether.
//
// # Precedence
//
// Rules are applied in a fixed order and the first applicable rule wins:
// authentication readiness, super-admin role, empty requirement, resolver
// initialization (where [PolicyStrict] and [PolicyOptimistic] differ), then the
// required, any and all groups.
//
// # What this package must NOT do
//
//   - Perform I/O or resolve snapshots.
//   - Grant on unknown permission names.
package access
