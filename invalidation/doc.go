// Package invalidation carries permission cache invalidations over NATS.
//
// A [Publisher] announces that a user's permissions in an organization
// changed; every process running a [Listener] on the same subject drops the
// cached snapshot and reloads its live trackers. A message with neither field
// set clears the whole cache.
package invalidation
