// Package policy maps roles and permissions to grants, decides route requirements against them,
// and provides pluggable engines that describe the predefined token profiles the service can mint.
package policy

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrUnknownProfile is returned when an engine has no profile with the requested name
var ErrUnknownProfile = errors.New("unknown token profile")

// PolicyDecision describes the token a profile mints: who it is for and what it grants.
type PolicyDecision struct {
	// Subject is the sub claim of the minted token
	Subject string `json:"subject"`

	// Roles are emitted as ROLE_<ROLE> grants
	Roles []string `json:"roles"`

	// Permissions are emitted verbatim (upper-cased) as grants
	Permissions []string `json:"permissions"`

	// AuthLevel is the auth_level claim; empty means AAL1
	AuthLevel string `json:"auth_level,omitempty"`

	// IdentityProvider is the idp claim; empty means "local"
	IdentityProvider string `json:"idp,omitempty"`

	// TokenLifetime overrides jwt.expiration for this profile
	TokenLifetime *time.Duration `json:"token_lifetime,omitempty"`
}

// Engine resolves profile names to policy decisions.
type Engine interface {
	// EvaluatePolicy returns the decision for the named profile, or ErrUnknownProfile.
	// This method should be thread-safe and can be called concurrently.
	EvaluatePolicy(ctx context.Context, profile string) (*PolicyDecision, error)

	// Profiles lists the known profile names in sorted order.
	Profiles() []string
}

// DefaultProfiles returns the predefined token types: admin, user, cache-admin, cache-writer and cache-reader.
func DefaultProfiles() map[string]*PolicyDecision {
	all := []string{"CACHE_READ", "CACHE_WRITE", "CACHE_DELETE", "CACHE_ADMIN"}
	return map[string]*PolicyDecision{
		"admin": {
			Subject:     "admin",
			Roles:       []string{"ADMIN", "USER"},
			Permissions: all,
		},
		"user": {
			Subject:     "user",
			Roles:       []string{"USER"},
			Permissions: []string{"CACHE_READ"},
		},
		"cache-admin": {
			Subject:     "cache-admin",
			Roles:       []string{"USER"},
			Permissions: all,
		},
		"cache-writer": {
			Subject:     "cache-writer",
			Roles:       []string{"USER"},
			Permissions: []string{"CACHE_READ", "CACHE_WRITE"},
		},
		"cache-reader": {
			Subject:     "cache-reader",
			Roles:       []string{"USER"},
			Permissions: []string{"CACHE_READ"},
		},
	}
}

// copyPolicyDecision creates a deep copy of a policy decision
func copyPolicyDecision(decision *PolicyDecision) *PolicyDecision {
	if decision == nil {
		return nil
	}

	policyCopy := &PolicyDecision{
		Subject:          decision.Subject,
		Roles:            make([]string, len(decision.Roles)),
		Permissions:      make([]string, len(decision.Permissions)),
		AuthLevel:        decision.AuthLevel,
		IdentityProvider: decision.IdentityProvider,
	}
	copy(policyCopy.Roles, decision.Roles)
	copy(policyCopy.Permissions, decision.Permissions)

	if decision.TokenLifetime != nil {
		d := *decision.TokenLifetime
		policyCopy.TokenLifetime = &d
	}

	return policyCopy
}

func sortedNames(profiles map[string]*PolicyDecision) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
