// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package token issues and verifies HS256 JWTs carrying a subject, roles, permissions,
// an authentication assurance level (NIST SP 800-63B) and the identity provider that
// authenticated the subject.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names as they appear in the token payload.
const (
	ClaimSubject          = "sub"
	ClaimRoles            = "roles"
	ClaimPermissions      = "permissions"
	ClaimAuthLevel        = "auth_level"
	ClaimIdentityProvider = "idp"
	ClaimIssuedAt         = "iat"
	ClaimExpiresAt        = "exp"
	ClaimID               = "jti"
)

// DefaultIdentityProvider is reported when a token carries no idp claim.
const DefaultIdentityProvider = "local"

// AuthLevel is the NIST SP 800-63B authenticator assurance level of the original login.
type AuthLevel string

const (
	AAL1 AuthLevel = "AAL1"
	AAL2 AuthLevel = "AAL2"
	AAL3 AuthLevel = "AAL3"
)

// Rank orders assurance levels. Unknown levels rank 0 and never satisfy a minimum.
func (l AuthLevel) Rank() int {
	switch l {
	case AAL1:
		return 1
	case AAL2:
		return 2
	case AAL3:
		return 3
	default:
		return 0
	}
}

// Meets reports whether l is at least min.
func (l AuthLevel) Meets(min AuthLevel) bool {
	return l.Rank() > 0 && l.Rank() >= min.Rank()
}

// ParseAuthLevel parses AAL1, AAL2 or AAL3.
func ParseAuthLevel(s string) (AuthLevel, error) {
	l := AuthLevel(s)
	if l.Rank() == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAuthLevel, s)
	}
	return l, nil
}

// Claims is a verified claims set. It can only be obtained from TokenManager.Decode or
// TokenManager.Verify and is immutable; accessors return copies.
type Claims struct {
	subject     string
	roles       []string
	permissions []string
	authLevel   AuthLevel
	idp         string
	id          string
	issuedAt    time.Time
	expiresAt   time.Time
	mismatches  []ClaimTypeMismatch
}

// Subject returns the principal the token was issued to.
func (c *Claims) Subject() string { return c.subject }

// Roles returns the role claim, or an empty slice when absent or mistyped.
func (c *Claims) Roles() []string { return append([]string{}, c.roles...) }

// Permissions returns the permission claim, or an empty slice when absent or mistyped.
func (c *Claims) Permissions() []string { return append([]string{}, c.permissions...) }

// AuthLevel returns the assurance level, AAL1 when absent or not a string.
func (c *Claims) AuthLevel() AuthLevel { return c.authLevel }

// IdentityProvider returns the idp claim, "local" when absent or not a string.
func (c *Claims) IdentityProvider() string { return c.idp }

func (c *Claims) ID() string { return c.id }

func (c *Claims) IssuedAt() time.Time { return c.issuedAt }

func (c *Claims) ExpiresAt() time.Time { return c.expiresAt }

// TypeMismatches lists claims that were present with the wrong type and were replaced by defaults.
func (c *Claims) TypeMismatches() []ClaimTypeMismatch {
	return append([]ClaimTypeMismatch{}, c.mismatches...)
}

// newClaims extracts a Claims value from a verified MapClaims.
func newClaims(m jwt.MapClaims) (*Claims, error) {
	c := &Claims{
		authLevel: AAL1,
		idp:       DefaultIdentityProvider,
	}

	sub, ok := m[ClaimSubject].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMissingSubject)
	}
	c.subject = sub

	c.roles = c.stringSet(m, ClaimRoles)
	c.permissions = c.stringSet(m, ClaimPermissions)

	if v, present := m[ClaimAuthLevel]; present {
		if s, ok := v.(string); ok && s != "" {
			c.authLevel = AuthLevel(s)
		} else if !ok {
			c.mismatch(ClaimAuthLevel, v)
		}
	}

	if v, present := m[ClaimIdentityProvider]; present {
		if s, ok := v.(string); ok && s != "" {
			c.idp = s
		} else if !ok {
			c.mismatch(ClaimIdentityProvider, v)
		}
	}

	if v, ok := m[ClaimID].(string); ok {
		c.id = v
	}

	iat, err := m.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if iat != nil {
		c.issuedAt = iat.Time
	}

	exp, err := m.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if exp != nil {
		c.expiresAt = exp.Time
	}

	return c, nil
}

// stringSet reads an array-of-strings claim, dropping duplicates and non-string elements.
func (c *Claims) stringSet(m jwt.MapClaims, name string) []string {
	v, present := m[name]
	if !present || v == nil {
		return []string{}
	}

	items, ok := v.([]interface{})
	if !ok {
		c.mismatch(name, v)
		return []string{}
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			c.mismatch(name+"[]", item)
			continue
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (c *Claims) mismatch(name string, v interface{}) {
	c.mismatches = append(c.mismatches, ClaimTypeMismatch{Claim: name, Got: fmt.Sprintf("%T", v)})
}
