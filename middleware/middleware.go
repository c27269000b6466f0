// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package middleware authenticates bearer tokens into a request identity and guards routes with it.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/openchami/tokengate/pkg/logging"
	"github.com/openchami/tokengate/pkg/metrics"
	"github.com/openchami/tokengate/pkg/policy"
	"github.com/openchami/tokengate/pkg/token"
)

// ContextKey is the key used to store the identity in the context
type ContextKey string

const (
	// IdentityContextKey is the key used to store the authenticated identity in the context
	IdentityContextKey ContextKey = "tokengate_identity"

	bearerPrefix = "Bearer "
)

// Verifier checks a compact token and returns its verified claims.
// *token.TokenManager satisfies it.
type Verifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	Subject string
	Grants  *policy.GrantSet
	Claims  *token.Claims
}

// MiddlewareOptions contains options for the authentication middleware
type MiddlewareOptions struct {
	// PublicPaths bypass authentication entirely. An entry ending in "/" matches as a prefix,
	// any other entry (including "/" itself) matches exactly.
	PublicPaths []string
	// Metrics receives authentication outcomes; nil disables recording
	Metrics metrics.Recorder
}

// DefaultPublicPaths are the paths the interceptor skips by default
func DefaultPublicPaths() []string {
	return []string{"/actuator/", "/", "/public/", "/error", "/error/"}
}

// DefaultMiddlewareOptions returns the default middleware options
func DefaultMiddlewareOptions() *MiddlewareOptions {
	return &MiddlewareOptions{
		PublicPaths: DefaultPublicPaths(),
		Metrics:     metrics.NewNoopMetrics(),
	}
}

// IsPublicPath reports whether path is covered by publicPaths.
func IsPublicPath(path string, publicPaths []string) bool {
	for _, p := range publicPaths {
		if p == "" {
			continue
		}
		if p != "/" && strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// Authenticate attaches an Identity to requests carrying a valid bearer token.
// It never rejects a request: missing, malformed, forged or expired tokens leave the request
// anonymous and the route guards decide what that means.
func Authenticate(verifier Verifier, opts *MiddlewareOptions) func(http.Handler) http.Handler {
	if opts == nil {
		opts = DefaultMiddlewareOptions()
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path, opts.PublicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				recorder.RecordAuthentication(metrics.AuthAnonymous)
				next.ServeHTTP(w, r)
				return
			}

			log := logging.NewStructuredLoggerFromContext(r.Context(), "auth")

			claims, err := verifier.Verify(strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				recorder.RecordAuthentication(metrics.AuthFailed)
				log.LogAuthFailure(token.Reason(err), r.Method, r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			for _, m := range claims.TypeMismatches() {
				log.LogClaimMismatch(claims.Subject(), m.Claim, m.Got)
			}

			identity := &Identity{
				Subject: claims.Subject(),
				Grants:  policy.MapToAuthorities(claims.Roles(), claims.Permissions()),
				Claims:  claims,
			}
			recorder.RecordAuthentication(metrics.AuthAuthenticated)

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			ctx = logging.WithSubject(ctx, identity.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentityFromContext retrieves the authenticated identity, if any
func GetIdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*Identity)
	return identity, ok && identity != nil
}

// GrantsFromContext returns the grants of the current identity, or nil when anonymous.
func GrantsFromContext(ctx context.Context) *policy.GrantSet {
	if identity, ok := GetIdentityFromContext(ctx); ok {
		return identity.Grants
	}
	return nil
}
