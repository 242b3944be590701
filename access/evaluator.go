package access

import (
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/snapshot"
)

// Evaluator applies requirements to snapshots over a fixed permission registry.
type Evaluator struct {
	registry    *permission.Registry
	superAdmins map[string]struct{}
}

// NewEvaluator builds an [Evaluator]. superAdminRoles lists role names that
// bypass permission checks; an empty list disables the bypass.
func NewEvaluator(registry *permission.Registry, superAdminRoles ...string) *Evaluator {
	admins := make(map[string]struct{}, len(superAdminRoles))
	for _, r := range superAdminRoles {
		if r != "" {
			admins[r] = struct{}{}
		}
	}
	return &Evaluator{registry: registry, superAdmins: admins}
}

// IsSuperAdmin reports whether snap carries a super-admin role.
func (e *Evaluator) IsSuperAdmin(snap *snapshot.Snapshot) bool {
	if snap == nil {
		return false
	}
	_, ok := e.superAdmins[snap.RoleName]
	return ok
}

// Has reports whether snap grants name. Unknown names, nil snapshots and
// malformed snapshots are false.
func (e *Evaluator) Has(snap *snapshot.Snapshot, name string) bool {
	if snap == nil {
		return false
	}
	return e.registry.Has(snap.Permissions, name)
}

// Evaluate returns the access decision for snap against req.
func (e *Evaluator) Evaluate(snap *snapshot.Snapshot, req Requirement, rd Readiness, policy Policy) Decision {
	if rd.AuthLoading || !rd.ProfileResolved {
		return Decision{Reason: ReasonAuthLoading}
	}
	if e.IsSuperAdmin(snap) {
		return Decision{Granted: true, Reason: ReasonSuperAdmin}
	}
	if req.Empty() {
		return Decision{Granted: true, Reason: ReasonNoRequirements}
	}

	if !rd.Initialized {
		if policy != PolicyOptimistic {
			return Decision{Reason: ReasonNotInitialized}
		}
		switch {
		case snap != nil:
			return Decision{Granted: true, Reason: ReasonCacheUsed}
		case !rd.ShowLoading:
			return Decision{Granted: true, Reason: ReasonLoadingDisabled}
		default:
			return Decision{Reason: ReasonPermissionsLoading}
		}
	}

	if missing := e.missing(snap, req.Required); len(missing) > 0 {
		return Decision{Reason: ReasonRequiredMissing, Missing: missing}
	}
	if len(req.Any) > 0 && !e.hasAny(snap, req.Any) {
		return Decision{Reason: ReasonAnyMissing, Missing: append([]string(nil), req.Any...)}
	}
	if missing := e.missing(snap, req.All); len(missing) > 0 {
		return Decision{Reason: ReasonAllMissing, Missing: missing}
	}

	return Decision{Granted: true, Reason: ReasonGranted}
}

func (e *Evaluator) missing(snap *snapshot.Snapshot, names []string) []string {
	var out []string
	for _, name := range names {
		if !e.Has(snap, name) {
			out = append(out, name)
		}
	}
	return out
}

func (e *Evaluator) hasAny(snap *snapshot.Snapshot, names []string) bool {
	for _, name := range names {
		if e.Has(snap, name) {
			return true
		}
	}
	return false
}

// HasAll reports whether snap grants every name. An empty list is true.
func (e *Evaluator) HasAll(snap *snapshot.Snapshot, names ...string) bool {
	return len(e.missing(snap, names)) == 0
}

// HasAny reports whether snap grants at least one name. An empty list is false.
func (e *Evaluator) HasAny(snap *snapshot.Snapshot, names ...string) bool {
	return e.hasAny(snap, names)
}
