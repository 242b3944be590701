package source

import (
	"context"
	"errors"
)

var (
	// ErrSourceUnavailable is returned when the source cannot be reached or the breaker is open.
	ErrSourceUnavailable = errors.New("permission source unavailable")
	// ErrSourceUnauthorized is returned when the source refuses the caller.
	ErrSourceUnauthorized = errors.New("permission source unauthorized")
	// ErrSourceNotFound is returned when the user has no membership in the organization.
	ErrSourceNotFound = errors.New("permission grant not found")
	// ErrSourceMalformed is returned when the source answers with an invalid payload.
	ErrSourceMalformed = errors.New("permission grant malformed")
)

// Grant is a user's role and raw permission map in one organization. Permissions
// values are bool or nested map[string]any; a nil map grants nothing.
type Grant struct {
	RoleID      string
	RoleName    string
	Permissions map[string]any
}

// Source fetches the current grant for a user in an organization.
type Source interface {
	Fetch(ctx context.Context, userID, organizationID string) (*Grant, error)
}

// Func adapts a function to [Source].
type Func func(ctx context.Context, userID, organizationID string) (*Grant, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, userID, organizationID string) (*Grant, error) {
	return f(ctx, userID, organizationID)
}
