// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package tokenservice serves token issuance and validation over HTTP together with the
// cache endpoints those tokens guard.
package tokenservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	openchamilog "github.com/openchami/chi-middleware/log"
	"github.com/rs/zerolog"

	"github.com/openchami/tokengate/middleware"
	gerrors "github.com/openchami/tokengate/pkg/errors"
	"github.com/openchami/tokengate/pkg/keys"
	"github.com/openchami/tokengate/pkg/logging"
	"github.com/openchami/tokengate/pkg/metrics"
	"github.com/openchami/tokengate/pkg/policy"
	"github.com/openchami/tokengate/pkg/token"
)

var (
	defaultRoles       = []string{"USER"}
	defaultPermissions = []string{"CACHE_READ"}
)

// TokenService mints and checks tokens and serves the guarded API
type TokenService struct {
	TokenManager *token.TokenManager
	PolicyEngine policy.Engine
	Config       *Config

	metrics metrics.Recorder
	routes  *policy.RouteEnforcer
	guard   *middleware.Guard
	logger  zerolog.Logger
	server  *http.Server
}

// TokenRequest is the body of POST /api/v1/auth/token
type TokenRequest struct {
	Username    string   `json:"username"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	AuthLevel   string   `json:"auth_level,omitempty"`
	IDP         string   `json:"idp,omitempty"`
}

// TokenResponse is returned by both issuance endpoints
type TokenResponse struct {
	Token       string   `json:"token"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	AuthLevel   string   `json:"auth_level"`
	IDP         string   `json:"idp"`
	Type        string   `json:"type,omitempty"`
	// ExpiresIn is the token lifetime in seconds
	ExpiresIn int64 `json:"expiresIn"`
	Timestamp int64 `json:"timestamp"`
}

// ValidateResponse is returned by POST /api/v1/auth/validate. Claims are only set when Valid.
type ValidateResponse struct {
	Valid       bool     `json:"valid"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	AuthLevel   string   `json:"auth_level,omitempty"`
	IDP         string   `json:"idp,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

// NewTokenService creates a new TokenService instance
func NewTokenService(config *Config) (*TokenService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidConfig, "invalid service configuration")
	}

	logger := logging.GetLogger("tokenservice")
	recorder := metrics.Init(config.MetricsEnabled)

	tm, err := token.NewTokenManagerFromConfig(&config.Token, token.WithMetrics(recorder))
	if err != nil {
		return nil, err
	}

	if config.Token.SecretFile == "" && config.Token.Secret == keys.PlaceholderSecret {
		logger.Warn().Msg("jwt secret is the shipped placeholder; set JWT_SECRET before deploying")
	} else if tm.GetKeyManager().Weak() {
		logger.Warn().Int("min_length", keys.MinRecommendedSecretLength).Msg("jwt secret is shorter than recommended")
	}

	engine, err := NewPolicyEngine(config.PolicyEngine)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidConfig, "failed to create policy engine")
	}

	var routes *policy.RouteEnforcer
	if config.RoutePolicyFile != "" {
		routes, err = policy.NewRouteEnforcer(config.RoutePolicyModel, config.RoutePolicyFile)
		if err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidConfig, "failed to load route policy")
		}
	}

	return &TokenService{
		TokenManager: tm,
		PolicyEngine: engine,
		Config:       config,
		metrics:      recorder,
		routes:       routes,
		guard:        middleware.NewGuard(recorder),
		logger:       logger,
	}, nil
}

// Metrics returns the recorder the service reports to
func (s *TokenService) Metrics() metrics.Recorder {
	return s.metrics
}

// Routes builds the HTTP handler with every endpoint and guard wired in
func (s *TokenService) Routes() http.Handler {
	r := chi.NewRouter()

	clientKey := middleware.RemoteAddrKeyExtractor
	r.Use(chimw.RequestID)
	if s.Config.TrustProxyHeaders {
		r.Use(chimw.RealIP)
		clientKey = middleware.IPKeyExtractor
	}
	r.Use(logging.Middleware)
	r.Use(openchamilog.OpenCHAMILogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMetricsMiddleware(s.metrics))
	r.Use(middleware.Authenticate(s.TokenManager, &middleware.MiddlewareOptions{
		PublicPaths: s.Config.PublicPaths,
		Metrics:     s.metrics,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		gerrors.WriteError(w, r, gerrors.New(gerrors.ErrCodeNotFound, "No handler found for "+r.Method+" "+r.URL.Path))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, "Hello Docker Yossi World")
	})

	r.Route("/actuator", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			gerrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "UP"})
		})
		if s.Config.MetricsEnabled {
			r.Method(http.MethodGet, "/prometheus", s.metrics.Handler())
		}
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.Config.IssueRateLimit, clientKey, s.metrics))
			r.Post("/token", s.IssueTokenHandler)
			r.Get("/token/{type}", s.ProfileTokenHandler)
		})
		r.Post("/validate", s.ValidateHandler)
	})

	r.Route("/api/v1/cacheServices", func(r chi.Router) {
		if s.routes != nil {
			r.Use(s.guard.RequirePolicy(s.routes))
		}
		r.With(s.guard.Require(policy.AnyPermission("CACHE_READ", "CACHE_ADMIN"))).
			HandleFunc("/getObject", cacheObjectHandler("get"))
		r.With(s.guard.Require(policy.AnyPermission("CACHE_WRITE", "CACHE_ADMIN"))).
			Put("/putObject", cacheObjectHandler("put"))
		r.With(s.guard.Require(policy.AnyPermission("CACHE_DELETE", "CACHE_ADMIN"))).
			Delete("/deleteObject", cacheObjectHandler("delete"))
	})

	r.Route("/api/v1/test", s.testRoutes)

	return r
}

func (s *TokenService) testRoutes(r chi.Router) {
	r.Get("/public", messageHandler("This is a public endpoint"))
	r.With(s.guard.Require(policy.Authenticated())).
		Get("/protected", messageHandler("This is a protected endpoint"))
	r.With(s.guard.Require(policy.AnyRole("ADMIN"))).
		Get("/admin", messageHandler("This is an admin-only endpoint"))
	r.With(s.guard.Require(policy.AnyPermission("CACHE_READ"))).
		Get("/cache/read", messageHandler("Cache read operation successful"))
	r.With(s.guard.Require(policy.AnyPermission("CACHE_WRITE"))).
		Post("/cache/write", cacheWriteHandler)
	r.With(s.guard.Require(policy.AnyPermission("CACHE_ADMIN"))).
		Delete("/cache/admin", messageHandler("Cache admin operation successful"))
	r.With(s.guard.Require(policy.AnyPermission("CACHE_READ", "CACHE_WRITE", "CACHE_ADMIN"))).
		Get("/multi-permission", messageHandler("Multi-permission endpoint accessed successfully"))
	r.With(s.guard.Require(policy.AllPermissions("CACHE_READ", "CACHE_WRITE"))).
		Get("/all-permissions", messageHandler("All permissions endpoint accessed successfully"))
	r.With(s.guard.RequireAuthLevel(token.AAL2)).
		Get("/aal2", messageHandler("High assurance endpoint accessed successfully"))
	r.With(s.guard.RequireIdentityProvider("enterprise-ldap")).
		Get("/enterprise", messageHandler("Enterprise identity endpoint accessed successfully"))
}

// IssueTokenHandler mints a token for the caller-supplied subject, roles and permissions
func (s *TokenService) IssueTokenHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.NewStructuredLoggerFromContext(r.Context(), "tokenservice")

	req, err := decodeTokenRequest(r)
	if err != nil {
		gerrors.WriteError(w, r, err)
		return
	}
	if req.Username == "" {
		gerrors.WriteError(w, r, gerrors.New(gerrors.ErrCodeMissingRequired, "username is required"))
		return
	}
	if len(req.Roles) == 0 {
		req.Roles = defaultRoles
	}
	if len(req.Permissions) == 0 {
		req.Permissions = defaultPermissions
	}

	level := token.AAL1
	if req.AuthLevel != "" {
		if level, err = token.ParseAuthLevel(req.AuthLevel); err != nil {
			gerrors.WriteError(w, r, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, err.Error()))
			return
		}
	}
	idp := req.IDP
	if idp == "" {
		idp = token.DefaultIdentityProvider
	}

	signed, err := s.TokenManager.Issue(req.Username, req.Roles, req.Permissions,
		token.WithAuthLevel(level), token.WithIdentityProvider(idp))
	log.LogTokenOperation("issue", "custom", req.Username, err, time.Since(start))
	if err != nil {
		gerrors.WriteError(w, r, gerrors.Wrap(err, gerrors.ErrCodeTokenGeneration, "failed to generate token"))
		return
	}

	gerrors.WriteJSON(w, http.StatusOK, TokenResponse{
		Token:       signed,
		Username:    req.Username,
		Roles:       req.Roles,
		Permissions: req.Permissions,
		AuthLevel:   string(level),
		IDP:         idp,
		ExpiresIn:   int64(s.TokenManager.TTL() / time.Second),
		Timestamp:   time.Now().UnixMilli(),
	})
}

// ProfileTokenHandler mints the token described by a predefined profile
func (s *TokenService) ProfileTokenHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.NewStructuredLoggerFromContext(r.Context(), "tokenservice")
	profile := chi.URLParam(r, "type")

	decision, err := s.PolicyEngine.EvaluatePolicy(r.Context(), profile)
	if errors.Is(err, policy.ErrUnknownProfile) {
		gerrors.WriteError(w, r, gerrors.New(gerrors.ErrCodeUnknownProfile, "Invalid token type").
			WithDetails("type", profile))
		return
	}
	if err != nil {
		gerrors.WriteError(w, r, gerrors.Wrap(err, gerrors.ErrCodePolicyEvaluation, "failed to evaluate token profile"))
		return
	}

	level := token.AAL1
	if decision.AuthLevel != "" {
		if level, err = token.ParseAuthLevel(decision.AuthLevel); err != nil {
			gerrors.WriteError(w, r, gerrors.Wrap(err, gerrors.ErrCodePolicyEvaluation, "profile has an invalid auth level"))
			return
		}
	}
	idp := decision.IdentityProvider
	if idp == "" {
		idp = token.DefaultIdentityProvider
	}
	ttl := s.TokenManager.TTL()
	if decision.TokenLifetime != nil {
		ttl = *decision.TokenLifetime
	}

	profile = strings.ToLower(profile)
	signed, err := s.TokenManager.IssueProfile(profile, decision.Subject, decision.Roles, decision.Permissions,
		token.WithAuthLevel(level), token.WithIdentityProvider(idp), token.WithLifetime(ttl))
	log.LogTokenOperation("issue", profile, decision.Subject, err, time.Since(start))
	if err != nil {
		gerrors.WriteError(w, r, gerrors.Wrap(err, gerrors.ErrCodeTokenGeneration, "failed to generate token"))
		return
	}

	gerrors.WriteJSON(w, http.StatusOK, TokenResponse{
		Token:       signed,
		Username:    decision.Subject,
		Roles:       decision.Roles,
		Permissions: decision.Permissions,
		AuthLevel:   string(level),
		IDP:         idp,
		Type:        chi.URLParam(r, "type"),
		ExpiresIn:   int64(ttl / time.Second),
		Timestamp:   time.Now().UnixMilli(),
	})
}

// ValidateHandler reports whether the submitted token verifies, with its claims when it does.
// An invalid token is a 200 with valid=false.
func (s *TokenService) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	tokenString, err := formOrJSONField(r, "token")
	if err != nil {
		gerrors.WriteError(w, r, err)
		return
	}
	if tokenString == "" {
		gerrors.WriteError(w, r, gerrors.New(gerrors.ErrCodeMissingRequired, "token is required"))
		return
	}

	resp := ValidateResponse{}
	claims, err := s.TokenManager.Verify(tokenString)
	if err == nil {
		resp = ValidateResponse{
			Valid:       true,
			Username:    claims.Subject(),
			Roles:       claims.Roles(),
			Permissions: claims.Permissions(),
			AuthLevel:   string(claims.AuthLevel()),
			IDP:         claims.IdentityProvider(),
		}
	} else {
		logging.NewStructuredLoggerFromContext(r.Context(), "tokenservice").
			LogAuthFailure(token.Reason(err), r.Method, r.URL.Path)
	}
	resp.Timestamp = time.Now().UnixMilli()

	gerrors.WriteJSON(w, http.StatusOK, resp)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *TokenService) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.Config.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Config.ListenAddr).Strs("profiles", s.PolicyEngine.Profiles()).Msg("starting token service")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Msg("shutting down token service")
		return s.server.Shutdown(shutdownCtx)
	}
}

// Close releases the policy engine's background reloader, if any
func (s *TokenService) Close() {
	if closer, ok := s.PolicyEngine.(interface{ Close() }); ok {
		closer.Close()
	}
}

func decodeTokenRequest(r *http.Request) (*TokenRequest, error) {
	var req TokenRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "invalid request body")
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "invalid form")
	}
	req.Username = r.Form.Get("username")
	req.Roles = listParam(r.Form["roles"])
	req.Permissions = listParam(r.Form["permissions"])
	req.AuthLevel = r.Form.Get("auth_level")
	req.IDP = r.Form.Get("idp")
	return &req, nil
}

func formOrJSONField(r *http.Request, field string) (string, error) {
	if isJSON(r) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "invalid request body")
		}
		return body[field], nil
	}
	if err := r.ParseForm(); err != nil {
		return "", gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "invalid form")
	}
	return r.Form.Get(field), nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// listParam accepts both repeated parameters and comma separated values.
func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, splitList(v)...)
	}
	return out
}

func messageHandler(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gerrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"message":   message,
			"timestamp": time.Now().UnixMilli(),
		})
	}
}

func cacheWriteHandler(w http.ResponseWriter, r *http.Request) {
	var data map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		gerrors.WriteError(w, r, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	gerrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Cache write operation successful",
		"data":      data,
		"timestamp": time.Now().UnixMilli(),
	})
}

// cacheObjectHandler answers the cache stubs. The object id is required but never logged.
func cacheObjectHandler(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "" {
			gerrors.WriteError(w, r, gerrors.New(gerrors.ErrCodeMissingRequired, "Required parameter 'id' is not present"))
			return
		}
		logger := logging.LoggerFromContextWithComponent(r.Context(), "cache")
		logger.Info().
			Str("operation", operation).
			Msg("cache operation called for object ID: [REDACTED]")
		writeText(w, operation)
	}
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
