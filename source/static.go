package source

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/goGuard/permission"
)

type assignmentKey struct {
	organizationID string
	userID         string
}

// StaticSource serves grants from fixed role assignments.
type StaticSource struct {
	registry *permission.Registry
	roles    *permission.RoleManager

	mu          sync.RWMutex
	assignments map[assignmentKey]string
}

// NewStaticSource builds a source over roles defined in rm.
func NewStaticSource(reg *permission.Registry, rm *permission.RoleManager) *StaticSource {
	return &StaticSource{
		registry:    reg,
		roles:       rm,
		assignments: make(map[assignmentKey]string),
	}
}

// Assign sets the role of userID in organizationID, replacing any previous one.
func (s *StaticSource) Assign(userID, organizationID, role string) error {
	if _, ok := s.roles.Mask(role); !ok {
		return errors.New("role not registered: " + role)
	}
	s.mu.Lock()
	s.assignments[assignmentKey{organizationID, userID}] = role
	s.mu.Unlock()
	return nil
}

// Unassign removes userID from organizationID.
func (s *StaticSource) Unassign(userID, organizationID string) {
	s.mu.Lock()
	delete(s.assignments, assignmentKey{organizationID, userID})
	s.mu.Unlock()
}

// Fetch expands the assigned role mask into a grant.
func (s *StaticSource) Fetch(_ context.Context, userID, organizationID string) (*Grant, error) {
	s.mu.RLock()
	role, ok := s.assignments[assignmentKey{organizationID, userID}]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSourceNotFound
	}

	mask, ok := s.roles.Mask(role)
	if !ok {
		return nil, ErrSourceNotFound
	}

	return &Grant{
		RoleID:      role,
		RoleName:    role,
		Permissions: permission.Expand(s.registry, mask),
	}, nil
}
