package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// rbacWithDomains grants permission names (obj) to roles inside an
// organization (dom).
const rbacWithDomains = `
[request_definition]
r = sub, dom, obj

[policy_definition]
p = sub, dom, obj

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && r.dom == p.dom && r.obj == p.obj
`

// CasbinSource evaluates grants from a local casbin policy. The first role,
// in sorted order, that a user holds in an organization is reported as the
// grant's role.
type CasbinSource struct {
	enforcer *casbin.SyncedEnforcer
}

// NewCasbinSource builds a source over an empty in-memory policy.
func NewCasbinSource() (*CasbinSource, error) {
	m, err := model.NewModelFromString(rbacWithDomains)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}
	return &CasbinSource{enforcer: enforcer}, nil
}

// NewCasbinSourceFromEnforcer wraps an enforcer whose model matches the
// sub/dom/obj layout above, for example one loaded from a database adapter.
func NewCasbinSourceFromEnforcer(enforcer *casbin.SyncedEnforcer) *CasbinSource {
	return &CasbinSource{enforcer: enforcer}
}

// Allow grants permission to role inside organizationID.
func (s *CasbinSource) Allow(role, organizationID, permission string) error {
	if _, err := s.enforcer.AddPolicy(role, organizationID, permission); err != nil {
		return fmt.Errorf("casbin add policy: %w", err)
	}
	return nil
}

// Assign gives userID the role inside organizationID.
func (s *CasbinSource) Assign(userID, role, organizationID string) error {
	if _, err := s.enforcer.AddGroupingPolicy(userID, role, organizationID); err != nil {
		return fmt.Errorf("casbin add grouping: %w", err)
	}
	return nil
}

// Revoke removes the role assignment.
func (s *CasbinSource) Revoke(userID, role, organizationID string) error {
	if _, err := s.enforcer.RemoveGroupingPolicy(userID, role, organizationID); err != nil {
		return fmt.Errorf("casbin remove grouping: %w", err)
	}
	return nil
}

// Fetch returns the implicit permissions of userID in organizationID.
func (s *CasbinSource) Fetch(_ context.Context, userID, organizationID string) (*Grant, error) {
	roles := s.enforcer.GetRolesForUserInDomain(userID, organizationID)
	if len(roles) == 0 {
		return nil, ErrSourceNotFound
	}
	sort.Strings(roles)

	rules, err := s.enforcer.GetImplicitPermissionsForUser(userID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	perms := make(map[string]any, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 || rule[1] != organizationID {
			continue
		}
		perms[rule[2]] = true
	}

	return &Grant{
		RoleID:      roles[0],
		RoleName:    roles[0],
		Permissions: perms,
	}, nil
}
