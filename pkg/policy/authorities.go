package policy

import (
	"sort"
	"strings"
)

// RolePrefix marks grants derived from roles rather than permissions.
const RolePrefix = "ROLE_"

// GrantSet is the set of authority strings derived from a verified token.
// A nil *GrantSet means no identity is attached to the request.
type GrantSet struct {
	grants map[string]struct{}
}

// NewGrantSet creates a grant set holding the given authorities verbatim.
func NewGrantSet(grants ...string) *GrantSet {
	g := &GrantSet{grants: make(map[string]struct{}, len(grants))}
	for _, grant := range grants {
		g.grants[grant] = struct{}{}
	}
	return g
}

// MapToAuthorities emits ROLE_<ROLE> for every role and <PERMISSION> for every permission,
// both upper-cased. Duplicates collapse.
func MapToAuthorities(roles, permissions []string) *GrantSet {
	g := &GrantSet{grants: make(map[string]struct{}, len(roles)+len(permissions))}
	for _, role := range roles {
		g.grants[RoleAuthority(role)] = struct{}{}
	}
	for _, permission := range permissions {
		g.grants[PermissionAuthority(permission)] = struct{}{}
	}
	return g
}

// RoleAuthority returns the grant for a role.
// strings.ToUpper applies Unicode case mapping only, so the result never depends on a locale.
func RoleAuthority(role string) string {
	return RolePrefix + strings.ToUpper(role)
}

// PermissionAuthority returns the grant for a permission.
func PermissionAuthority(permission string) string {
	return strings.ToUpper(permission)
}

// Has reports whether grant is in the set.
func (g *GrantSet) Has(grant string) bool {
	if g == nil {
		return false
	}
	_, ok := g.grants[grant]
	return ok
}

// Len returns the number of grants.
func (g *GrantSet) Len() int {
	if g == nil {
		return 0
	}
	return len(g.grants)
}

// Slice returns the grants in sorted order.
func (g *GrantSet) Slice() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.grants))
	for grant := range g.grants {
		out = append(out, grant)
	}
	sort.Strings(out)
	return out
}
