// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openchami/tokengate/pkg/keys"
	"github.com/openchami/tokengate/pkg/metrics"
	"github.com/openchami/tokengate/pkg/policy"
	"github.com/openchami/tokengate/pkg/token"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-that-is-long-enough"

// MockVerifier is a mock implementation of Verifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(tokenString string) (*token.Claims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*token.Claims), args.Error(1)
}

func newTokenManager(t *testing.T) *token.TokenManager {
	t.Helper()
	km := keys.NewKeyManager()
	require.NoError(t, km.SetSecret(testSecret))
	tm, err := token.NewTokenManager(km, time.Hour)
	require.NoError(t, err)
	return tm
}

// issueClaims mints a token and returns its verified claims for feeding mocks.
func issueClaims(t *testing.T, tm *token.TokenManager, subject string, roles, permissions []string, opts ...token.IssueOption) (string, *token.Claims) {
	t.Helper()
	signed, err := tm.Issue(subject, roles, permissions, opts...)
	require.NoError(t, err)
	claims, err := tm.Verify(signed)
	require.NoError(t, err)
	return signed, claims
}

// identityEcho writes the identity seen by the handler.
func identityEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentityFromContext(r.Context())
		body := map[string]interface{}{"authenticated": ok}
		if ok {
			body["subject"] = identity.Subject
			body["grants"] = identity.Grants.Slice()
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	})
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthenticate_WithMockVerifier(t *testing.T) {
	tm := newTokenManager(t)
	_, claims := issueClaims(t, tm, "alice", []string{"user"}, []string{"cache_read"})

	tests := []struct {
		name        string
		header      string
		setupMock   func(*MockVerifier)
		wantAuth    bool
		wantSubject string
		wantGrants  []interface{}
	}{
		{
			name:   "no header continues anonymously",
			header: "",
		},
		{
			name:   "non-bearer scheme continues anonymously",
			header: "Basic YWxpY2U6c2VjcmV0",
		},
		{
			name:   "lower-case bearer is not a bearer token",
			header: "bearer good-token",
		},
		{
			name:   "verification failure continues anonymously",
			header: "Bearer bad-token",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", "bad-token").Return(nil, token.ErrSignatureInvalid)
			},
		},
		{
			name:   "expired token continues anonymously",
			header: "Bearer old-token",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", "old-token").Return(nil, token.ErrExpired)
			},
		},
		{
			name:   "valid token attaches identity",
			header: "Bearer good-token",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", "good-token").Return(claims, nil)
			},
			wantAuth:    true,
			wantSubject: "alice",
			wantGrants:  []interface{}{"CACHE_READ", "ROLE_USER"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := new(MockVerifier)
			if tt.setupMock != nil {
				tt.setupMock(verifier)
			}

			handler := Authenticate(verifier, DefaultMiddlewareOptions())(identityEcho(t))

			req := httptest.NewRequest("GET", "/api/v1/test/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.wantAuth, body["authenticated"])
			if tt.wantAuth {
				assert.Equal(t, tt.wantSubject, body["subject"])
				assert.Equal(t, tt.wantGrants, body["grants"])
			}
			verifier.AssertExpectations(t)
		})
	}
}

func TestAuthenticate_PublicPathsSkipVerification(t *testing.T) {
	tests := []struct {
		path   string
		public bool
	}{
		{"/", true},
		{"/actuator/health", true},
		{"/actuator/prometheus", true},
		{"/public/readme", true},
		{"/error", true},
		{"/error/404", true},
		{"/errors", false},
		{"/actuator", false},
		{"/api/v1/test/public", false},
		{"/api/v1/cacheServices/getObject", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			verifier := new(MockVerifier)
			if !tt.public {
				verifier.On("Verify", "some-token").Return(nil, token.ErrMalformed)
			}

			handler := Authenticate(verifier, nil)(identityEcho(t))
			req := httptest.NewRequest("GET", tt.path, nil)
			req.Header.Set("Authorization", "Bearer some-token")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.public, IsPublicPath(tt.path, DefaultPublicPaths()))
			if tt.public {
				verifier.AssertNotCalled(t, "Verify", mock.Anything)
			} else {
				verifier.AssertExpectations(t)
			}
		})
	}
}

func TestAuthenticate_RealTokens(t *testing.T) {
	tm := newTokenManager(t)
	valid, _ := issueClaims(t, tm, "bob", []string{"ADMIN"}, []string{"CACHE_ADMIN"})

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "mallory",
		"roles": []string{"ADMIN"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("some-other-secret-of-adequate-length"))
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "bob",
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	m := metrics.Init(true).(*metrics.Metrics)
	opts := DefaultMiddlewareOptions()
	opts.Metrics = m
	handler := Authenticate(tm, opts)(identityEcho(t))

	tests := []struct {
		name     string
		token    string
		wantAuth bool
	}{
		{"valid", valid, true},
		{"forged", forged, false},
		{"expired", expired, false},
		{"garbage", "not.a.jwt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/test/protected", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.wantAuth, decodeBody(t, w)["authenticated"])
		})
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthenticationTotal.WithLabelValues(metrics.AuthAuthenticated)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.AuthenticationTotal.WithLabelValues(metrics.AuthFailed)))
}

func TestRequire(t *testing.T) {
	tm := newTokenManager(t)
	reader, _ := issueClaims(t, tm, "reader", []string{"USER"}, []string{"CACHE_READ"})
	writer, _ := issueClaims(t, tm, "writer", []string{"USER"}, []string{"CACHE_READ", "CACHE_WRITE"})
	admin, _ := issueClaims(t, tm, "admin", []string{"ADMIN", "USER"}, []string{"CACHE_ADMIN"})
	nothing, _ := issueClaims(t, tm, "nobody", nil, nil)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		req        policy.Requirement
		token      string
		wantStatus int
		wantMsg    string
	}{
		{"anonymous", policy.Authenticated(), "", http.StatusUnauthorized, "Authentication required"},
		{"empty requirement with identity", policy.Authenticated(), nothing, http.StatusOK, ""},
		{"any of satisfied", policy.AnyPermission("CACHE_READ", "CACHE_ADMIN"), reader, http.StatusOK, ""},
		{"any of satisfied by admin", policy.AnyPermission("CACHE_READ", "CACHE_ADMIN"), admin, http.StatusOK, ""},
		{"any of missing", policy.AnyPermission("CACHE_WRITE", "CACHE_ADMIN"), reader, http.StatusForbidden, "Access denied: requires any of: CACHE_WRITE, CACHE_ADMIN"},
		{"all of satisfied", policy.AllPermissions("CACHE_READ", "CACHE_WRITE"), writer, http.StatusOK, ""},
		{"all of missing one", policy.AllPermissions("CACHE_READ", "CACHE_WRITE"), reader, http.StatusForbidden, "Access denied: missing required authorities: CACHE_WRITE"},
		{"role", policy.AnyRole("ADMIN"), admin, http.StatusOK, ""},
		{"role missing", policy.AnyRole("ADMIN"), writer, http.StatusForbidden, "Access denied: requires any of: ROLE_ADMIN"},
		{"role missing while anonymous", policy.AnyRole("ADMIN"), "", http.StatusUnauthorized, "Authentication required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Authenticate(tm, nil)(Require(tt.req)(ok))

			req := httptest.NewRequest("GET", "/api/v1/test/guarded", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantMsg != "" {
				body := decodeBody(t, w)
				assert.Equal(t, tt.wantMsg, body["message"])
				assert.Equal(t, float64(tt.wantStatus), body["status"])
				assert.Equal(t, http.StatusText(tt.wantStatus), body["error"])
				assert.Equal(t, "/api/v1/test/guarded", body["path"])
				assert.NotEmpty(t, body["timestamp"])
			}
		})
	}
}

func TestRequireAuthLevelAndIdentityProvider(t *testing.T) {
	tm := newTokenManager(t)
	aal1, _ := issueClaims(t, tm, "u1", nil, nil)
	aal2, _ := issueClaims(t, tm, "u2", nil, nil, token.WithAuthLevel(token.AAL2))
	aal3ldap, _ := issueClaims(t, tm, "u3", nil, nil, token.WithAuthLevel(token.AAL3), token.WithIdentityProvider("enterprise-ldap"))

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	m := metrics.Init(true).(*metrics.Metrics)
	guard := NewGuard(m)

	aalHandler := Authenticate(tm, nil)(guard.RequireAuthLevel(token.AAL2)(ok))
	idpHandler := Authenticate(tm, nil)(guard.RequireIdentityProvider("enterprise-ldap")(ok))

	tests := []struct {
		name       string
		handler    http.Handler
		token      string
		wantStatus int
	}{
		{"aal anonymous", aalHandler, "", http.StatusUnauthorized},
		{"aal1 below aal2", aalHandler, aal1, http.StatusForbidden},
		{"aal2 meets aal2", aalHandler, aal2, http.StatusOK},
		{"aal3 exceeds aal2", aalHandler, aal3ldap, http.StatusOK},
		{"idp anonymous", idpHandler, "", http.StatusUnauthorized},
		{"idp local rejected", idpHandler, aal2, http.StatusForbidden},
		{"idp enterprise accepted", idpHandler, aal3ldap, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/test/aal2", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("auth_level", metrics.DecisionForbidden)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("auth_level", metrics.DecisionAllow)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("identity_provider", metrics.DecisionAllow)))
}

func TestRequirePolicy(t *testing.T) {
	tempDir := t.TempDir()
	policyPath := filepath.Join(tempDir, "policy.csv")

	policyData := `
p, CACHE_READ, /api/v1/cacheServices/getObject, GET
p, CACHE_ADMIN, /api/v1/cacheServices/*, *
`
	if err := os.WriteFile(policyPath, []byte(policyData), 0644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	enforcer, err := policy.NewRouteEnforcer("", policyPath)
	require.NoError(t, err)

	tm := newTokenManager(t)
	reader, _ := issueClaims(t, tm, "test-subject", []string{"USER"}, []string{"CACHE_READ"})
	admin, _ := issueClaims(t, tm, "cache-admin", []string{"USER"}, []string{"CACHE_ADMIN"})

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := Authenticate(tm, nil)(RequirePolicy(enforcer)(ok))

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		validate func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:   "accept reader get",
			method: "GET",
			path:   "/api/v1/cacheServices/getObject",
			token:  reader,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusOK, w.Code)
			},
		},
		{
			name:   "reject reader put",
			method: "PUT",
			path:   "/api/v1/cacheServices/putObject",
			token:  reader,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusForbidden, w.Code)
				assert.Contains(
					t,
					w.Body.String(),
					"subject 'test-subject' not allowed 'PUT' for resource(s) '/api/v1/cacheServices/putObject'",
				)
			},
		},
		{
			name:   "accept admin delete",
			method: "DELETE",
			path:   "/api/v1/cacheServices/deleteObject",
			token:  admin,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusOK, w.Code)
			},
		},
		{
			name:   "reject anonymous",
			method: "GET",
			path:   "/api/v1/cacheServices/getObject",
			token:  "",
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusUnauthorized, w.Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			t.Logf("Response Code: %d", w.Code)
			t.Logf("Response Body: %s", w.Body.String())
			tt.validate(t, w)
		})
	}
}
