package goGuard

import "context"

type identityContextKey struct{}

// Identity is the (user, organization) pair a request acts as.
type Identity struct {
	UserID         string
	OrganizationID string
	// Role is informational; permissions always come from the resolved snapshot.
	Role string
}

// Valid reports whether both ids are present.
func (i Identity) Valid() bool {
	return i.UserID != "" && i.OrganizationID != ""
}

// WithIdentity attaches id to ctx. Guards read it with [IdentityFromContext].
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by [WithIdentity].
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || !id.Valid() {
		return Identity{}, false
	}
	return id, true
}
