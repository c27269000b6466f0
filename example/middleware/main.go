// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Command middleware shows a service of its own accepting tokengate tokens.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	tgmiddleware "github.com/openchami/tokengate/middleware"
	gerrors "github.com/openchami/tokengate/pkg/errors"
	"github.com/openchami/tokengate/pkg/logging"
	"github.com/openchami/tokengate/pkg/policy"
	"github.com/openchami/tokengate/pkg/token"
)

func main() {
	logger := logging.Configure(logging.DefaultConfig())

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "example-secret-change-me-example-secret"
	}

	tm, err := token.NewTokenManagerFromConfig(&token.Config{
		Secret:           secret,
		ExpirationMillis: token.DefaultExpirationMillis,
		CacheSize:        token.DefaultCacheSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}

	// Mint a token the same way the token service would for cache-writer
	tokenString, err := tm.IssueProfile("cache-writer", "cache-writer",
		[]string{"USER"}, []string{"CACHE_READ", "CACHE_WRITE"})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to issue token")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware)
	r.Use(tgmiddleware.Authenticate(tm, tgmiddleware.DefaultMiddlewareOptions()))

	// Public routes
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Welcome to the API"))
	})

	r.With(tgmiddleware.Require(policy.Authenticated())).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		identity, _ := tgmiddleware.GetIdentityFromContext(r.Context())
		gerrors.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"subject": identity.Subject,
			"grants":  identity.Grants.Slice(),
		})
	})

	r.With(tgmiddleware.Require(policy.AnyPermission("CACHE_WRITE"))).Post("/write", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Write access granted"))
	})

	r.With(tgmiddleware.Require(policy.AllPermissions("CACHE_WRITE", "CACHE_DELETE"))).Delete("/purge", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Purged"))
	})

	fmt.Printf("Test token: %s\n", tokenString)
	fmt.Println("\nTest the endpoints:")
	fmt.Println("1. Identity of the caller:")
	fmt.Println("   curl -H \"Authorization: Bearer YOUR_TOKEN\" http://localhost:8080/whoami")
	fmt.Println("\n2. CACHE_WRITE protected route:")
	fmt.Println("   curl -X POST -H \"Authorization: Bearer YOUR_TOKEN\" http://localhost:8080/write")
	fmt.Println("\n3. Route the token lacks CACHE_DELETE for (403):")
	fmt.Println("   curl -X DELETE -H \"Authorization: Bearer YOUR_TOKEN\" http://localhost:8080/purge")

	logger.Info().Str("addr", ":8080").Msg("server starting")
	if err := http.ListenAndServe(":8080", r); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
