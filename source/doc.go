// Package source defines the permission fetch collaborator and ships three
// implementations of it.
//
// [HTTPSource] calls a remote permission service behind a circuit breaker.
// [CasbinSource] evaluates a local RBAC-with-domains policy where the
// organization is the casbin domain. [StaticSource] serves fixed role
// assignments and is intended for tests and examples.
//
// A [Source] returns a raw [Grant]; compiling it into a bitmask is the
// resolver's job.
package source
