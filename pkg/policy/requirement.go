// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"fmt"
	"strings"
)

// Requirement is the access rule attached to a route: required permissions and roles,
// matched with ANY semantics unless RequireAll is set.
// An empty requirement admits any authenticated identity.
type Requirement struct {
	Permissions []string `json:"permissions,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	RequireAll  bool     `json:"require_all,omitempty"`
}

// AnyPermission requires at least one of the permissions.
func AnyPermission(permissions ...string) Requirement {
	return Requirement{Permissions: permissions}
}

// AllPermissions requires every permission.
func AllPermissions(permissions ...string) Requirement {
	return Requirement{Permissions: permissions, RequireAll: true}
}

// AnyRole requires at least one of the roles.
func AnyRole(roles ...string) Requirement {
	return Requirement{Roles: roles}
}

// Authenticated admits any identity.
func Authenticated() Requirement {
	return Requirement{}
}

// Authorities returns the required grants in their normalized form.
func (r Requirement) Authorities() []string {
	out := make([]string, 0, len(r.Permissions)+len(r.Roles))
	seen := make(map[string]bool, cap(out))
	add := func(grant string) {
		if !seen[grant] {
			seen[grant] = true
			out = append(out, grant)
		}
	}
	for _, p := range r.Permissions {
		add(PermissionAuthority(p))
	}
	for _, role := range r.Roles {
		add(RoleAuthority(role))
	}
	return out
}

// IsEmpty reports whether the requirement names no grants.
func (r Requirement) IsEmpty() bool {
	return len(r.Permissions) == 0 && len(r.Roles) == 0
}

func (r Requirement) String() string {
	if r.IsEmpty() {
		return "authenticated"
	}
	mode := "any of"
	if r.RequireAll {
		mode = "all of"
	}
	return mode + " [" + strings.Join(r.Authorities(), ", ") + "]"
}

// Outcome is the result of an authorization decision.
type Outcome int

const (
	Allow Outcome = iota
	// Unauthorized means no identity was attached; the caller should authenticate.
	Unauthorized
	// Forbidden means the identity lacks the required grants; the caller needs elevated access.
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision carries the outcome and, when forbidden, the grants that were missing.
type Decision struct {
	Outcome Outcome
	Missing []string
	Reason  string
}

// Allowed reports whether the decision admits the request.
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Decide evaluates a requirement against the grants of the current request.
// A nil grant set means the request is anonymous.
func Decide(req Requirement, grants *GrantSet) Decision {
	if grants == nil {
		return Decision{Outcome: Unauthorized, Reason: "authentication required"}
	}
	if req.IsEmpty() {
		return Decision{Outcome: Allow}
	}

	required := req.Authorities()
	var missing []string
	for _, grant := range required {
		if !grants.Has(grant) {
			missing = append(missing, grant)
		}
	}

	if req.RequireAll {
		if len(missing) == 0 {
			return Decision{Outcome: Allow}
		}
		return Decision{
			Outcome: Forbidden,
			Missing: missing,
			Reason:  "missing required authorities: " + strings.Join(missing, ", "),
		}
	}

	if len(missing) < len(required) {
		return Decision{Outcome: Allow}
	}
	return Decision{
		Outcome: Forbidden,
		Missing: missing,
		Reason:  "requires any of: " + strings.Join(required, ", "),
	}
}
