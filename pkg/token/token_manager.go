// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openchami/tokengate/pkg/keys"
	"github.com/openchami/tokengate/pkg/metrics"
)

// Failure reasons reported by Reason and used as metric labels.
const (
	ReasonMalformed        = "malformed"
	ReasonSignatureInvalid = "signature_invalid"
	ReasonExpired          = "expired"
	ReasonUnknown          = "unknown"
)

// TokenManager issues and verifies tokens with a single symmetric secret.
// It is safe for concurrent use once constructed.
type TokenManager struct {
	keyManager *keys.KeyManager
	ttl        time.Duration
	now        func() time.Time
	cache      *lru.Cache[string, *Claims]
	parser     *jwt.Parser
	metrics    metrics.Recorder
}

// Option configures a TokenManager
type Option func(*TokenManager) error

// WithClock replaces time.Now, mostly for tests around expiry.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) error {
		tm.now = now
		return nil
	}
}

// WithCacheSize enables the verified-claims cache with the given capacity. Zero disables it.
func WithCacheSize(size int) Option {
	return func(tm *TokenManager) error {
		if size <= 0 {
			tm.cache = nil
			return nil
		}
		cache, err := lru.New[string, *Claims](size)
		if err != nil {
			return fmt.Errorf("failed to create claims cache: %w", err)
		}
		tm.cache = cache
		return nil
	}
}

// WithMetrics records issuance and validation outcomes.
func WithMetrics(m metrics.Recorder) Option {
	return func(tm *TokenManager) error {
		tm.metrics = m
		return nil
	}
}

// NewTokenManager creates a new TokenManager instance
func NewTokenManager(keyManager *keys.KeyManager, ttl time.Duration, opts ...Option) (*TokenManager, error) {
	if _, err := keyManager.GetSecret(); err != nil {
		return nil, err
	}
	if err := CheckLifetime(ttl); err != nil {
		return nil, err
	}

	tm := &TokenManager{
		keyManager: keyManager,
		ttl:        ttl,
		now:        time.Now,
		metrics:    metrics.NewNoopMetrics(),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{keyManager.Algorithm()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}

	for _, opt := range opts {
		if err := opt(tm); err != nil {
			return nil, err
		}
	}

	return tm, nil
}

// NewTokenManagerFromConfig builds the key manager and token manager from jwt.* settings
func NewTokenManagerFromConfig(cfg *Config, opts ...Option) (*TokenManager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token configuration: %w", err)
	}

	km, err := cfg.KeyManager()
	if err != nil {
		return nil, err
	}

	return NewTokenManager(km, cfg.TTL(), append([]Option{WithCacheSize(cfg.CacheSize)}, opts...)...)
}

// TTL returns the lifetime given to issued tokens
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// GetKeyManager returns the underlying KeyManager instance
func (tm *TokenManager) GetKeyManager() *keys.KeyManager {
	return tm.keyManager
}

type issueOptions struct {
	authLevel AuthLevel
	idp       string
	ttl       time.Duration
}

// IssueOption sets optional claims on an issued token
type IssueOption func(*issueOptions)

// WithAuthLevel sets auth_level. The default is AAL1.
func WithAuthLevel(level AuthLevel) IssueOption {
	return func(o *issueOptions) { o.authLevel = level }
}

// WithIdentityProvider sets idp. The default is "local".
func WithIdentityProvider(idp string) IssueOption {
	return func(o *issueOptions) { o.idp = idp }
}

// CheckLifetime reports whether ttl survives the one-second precision of NumericDate,
// so that exp - iat is exactly ttl.
func CheckLifetime(ttl time.Duration) error {
	if ttl < time.Second || ttl%time.Second != 0 {
		return fmt.Errorf("%w, got %s", ErrInvalidLifetime, ttl)
	}
	return nil
}

// WithLifetime overrides the configured lifetime for a single token.
func WithLifetime(ttl time.Duration) IssueOption {
	return func(o *issueOptions) { o.ttl = ttl }
}

// Issue signs a token for subject carrying the given roles and permissions.
// iat is the current time truncated to the second and exp is iat plus the lifetime.
func (tm *TokenManager) Issue(subject string, roles, permissions []string, opts ...IssueOption) (string, error) {
	signed, err := tm.issue(subject, roles, permissions, opts...)
	tm.metrics.RecordTokenIssued("custom", err == nil)
	return signed, err
}

// IssueProfile is Issue with the issuance metric labelled by a predefined profile name.
func (tm *TokenManager) IssueProfile(profile, subject string, roles, permissions []string, opts ...IssueOption) (string, error) {
	signed, err := tm.issue(subject, roles, permissions, opts...)
	tm.metrics.RecordTokenIssued(profile, err == nil)
	return signed, err
}

func (tm *TokenManager) issue(subject string, roles, permissions []string, opts ...IssueOption) (string, error) {
	if subject == "" {
		return "", ErrMissingSubject
	}

	o := issueOptions{
		authLevel: AAL1,
		idp:       DefaultIdentityProvider,
		ttl:       tm.ttl,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.authLevel.Rank() == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAuthLevel, o.authLevel)
	}
	if o.idp == "" {
		o.idp = DefaultIdentityProvider
	}
	if err := CheckLifetime(o.ttl); err != nil {
		return "", err
	}

	secret, err := tm.keyManager.GetSecret()
	if err != nil {
		return "", fmt.Errorf("failed to get secret: %w", err)
	}

	signingMethod, err := keys.GetSigningMethod(tm.keyManager.Algorithm())
	if err != nil {
		return "", fmt.Errorf("invalid signing algorithm: %w", err)
	}

	issuedAt := tm.now().Truncate(time.Second)
	claims := jwt.MapClaims{
		ClaimSubject:          subject,
		ClaimRoles:            nonNil(roles),
		ClaimPermissions:      nonNil(permissions),
		ClaimAuthLevel:        string(o.authLevel),
		ClaimIdentityProvider: o.idp,
		ClaimIssuedAt:         jwt.NewNumericDate(issuedAt),
		ClaimExpiresAt:        jwt.NewNumericDate(issuedAt.Add(o.ttl)),
		ClaimID:               uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Decode parses the token and verifies its signature. It does not check expiry;
// use Verify when the result is going to be trusted.
func (tm *TokenManager) Decode(tokenString string) (*Claims, error) {
	secret, err := tm.keyManager.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	parsed, err := tm.parser.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type %T", ErrMalformed, parsed.Claims)
	}

	return newClaims(mapClaims)
}

// Verify decodes the token and requires its expiry to be strictly after the current time.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	start := time.Now()
	claims, err := tm.verify(tokenString)
	result := metrics.ResultValid
	if err != nil {
		result = Reason(err)
	}
	tm.metrics.RecordTokenValidation(result, time.Since(start))
	return claims, err
}

func (tm *TokenManager) verify(tokenString string) (*Claims, error) {
	if tm.cache != nil {
		if claims, ok := tm.cache.Get(tokenString); ok {
			if err := tm.checkExpiry(claims); err != nil {
				tm.cache.Remove(tokenString)
				return nil, err
			}
			return claims, nil
		}
	}

	claims, err := tm.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if err := tm.checkExpiry(claims); err != nil {
		return nil, err
	}

	if tm.cache != nil {
		tm.cache.Add(tokenString, claims)
	}
	return claims, nil
}

func (tm *TokenManager) checkExpiry(claims *Claims) error {
	if claims.expiresAt.IsZero() {
		return fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}
	if !claims.expiresAt.After(tm.now()) {
		return fmt.Errorf("%w: expired at %s", ErrExpired, claims.expiresAt.Format(time.RFC3339))
	}
	return nil
}

// Validate reports whether the token has a valid signature and has not expired.
func (tm *TokenManager) Validate(tokenString string) bool {
	_, err := tm.Verify(tokenString)
	return err == nil
}

// ValidateWithSubject is Validate plus a subject match. It verifies the token itself,
// so malformed input yields false rather than an error.
func (tm *TokenManager) ValidateWithSubject(tokenString, expectedSubject string) bool {
	claims, err := tm.Verify(tokenString)
	if err != nil {
		return false
	}
	return claims.Subject() == expectedSubject
}

// Reason maps a Decode or Verify error to a short failure label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrSignatureInvalid):
		return ReasonSignatureInvalid
	case errors.Is(err, ErrMalformed):
		return ReasonMalformed
	default:
		return ReasonUnknown
	}
}

// classify converts golang-jwt parse errors into this package's sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
