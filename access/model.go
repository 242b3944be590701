package access

// Reason is the machine-checkable cause of a [Decision].
type Reason string

const (
	ReasonNoRequirements     Reason = "no_requirements"
	ReasonSuperAdmin         Reason = "super_admin"
	ReasonCacheUsed          Reason = "cache_used"
	ReasonLoadingDisabled    Reason = "loading_disabled"
	ReasonAuthLoading        Reason = "auth_loading"
	ReasonNotInitialized     Reason = "not_initialized"
	ReasonPermissionsLoading Reason = "permissions_loading"
	ReasonRequiredMissing    Reason = "required_missing"
	ReasonAnyMissing         Reason = "any_missing"
	ReasonAllMissing         Reason = "all_missing"
	ReasonGranted            Reason = "granted"
)

// Optimistic reports whether r grants without a fresh snapshot.
func (r Reason) Optimistic() bool {
	return r == ReasonCacheUsed || r == ReasonLoadingDisabled
}

// Loading reports whether r means the decision is pending on readiness.
func (r Reason) Loading() bool {
	switch r {
	case ReasonAuthLoading, ReasonNotInitialized, ReasonPermissionsLoading:
		return true
	}
	return false
}

// Requirement groups permission names. Required and All both need every name;
// they are kept apart so denials report which group failed. Any needs at least one.
type Requirement struct {
	Required []string
	Any      []string
	All      []string
}

// Empty reports whether no group has names.
func (r Requirement) Empty() bool {
	return len(r.Required) == 0 && len(r.Any) == 0 && len(r.All) == 0
}

// Equal compares group contents in order.
func (r Requirement) Equal(o Requirement) bool {
	return equalNames(r.Required, o.Required) && equalNames(r.Any, o.Any) && equalNames(r.All, o.All)
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Readiness describes how far identity and permission resolution have progressed.
type Readiness struct {
	AuthLoading     bool
	ProfileResolved bool
	// Initialized is true once the resolver has completed for the current key.
	Initialized bool
	// ShowLoading is the caller's preference for a loading affordance.
	ShowLoading bool
}

// Policy selects how an uninitialized resolver is treated.
type Policy uint8

const (
	// PolicyStrict never grants before initialization.
	PolicyStrict Policy = iota
	// PolicyOptimistic grants from a possibly stale snapshot, or when the caller
	// disabled the loading affordance.
	PolicyOptimistic
)

func (p Policy) String() string {
	if p == PolicyOptimistic {
		return "optimistic"
	}
	return "strict"
}

// Decision is the result of an evaluation.
type Decision struct {
	Granted bool
	Reason  Reason
	// Missing lists the names that failed the reported group.
	Missing []string
}

// Equal compares two decisions including missing names.
func (d Decision) Equal(o Decision) bool {
	return d.Granted == o.Granted && d.Reason == o.Reason && equalNames(d.Missing, o.Missing)
}
