// Package guard gates protected regions on permission requirements.
//
// # Policies
//
//   - [NewStrict] renders nothing but a loading state until the snapshot for
//     the current key has been resolved.
//   - [NewOptimistic] renders immediately from a possibly stale cached snapshot,
//     or when the caller opted out of a loading state, and re-evaluates once
//     resolution completes.
//
// A [Guard] turns a [goGuard.PermissionState] into an [Outcome]. Outcomes are
// memoized per state version, readiness and requirement, so render loops can
// call [Guard.Decide] on every frame. [Watch] drives a guard from a
// [goGuard.Tracker] and reports only outcome changes.
//
// # HTTP
//
// [RequireStrict] and [RequireOptimistic] adapt guards to net/http middleware.
// They read the identity placed on the request by [Authenticate].
//
// # What this package must NOT do
//
//   - Fetch or cache permissions itself (the Engine does).
//   - Decide access beyond what access.Evaluator returns.
package guard
