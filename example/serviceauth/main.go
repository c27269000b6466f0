// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Command serviceauth obtains a profile token from a running tokengate and calls the cache API with it.
package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/openchami/tokengate/pkg/logging"
	"github.com/openchami/tokengate/pkg/tokenservice"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "tokengate base URL")
	profile := flag.String("profile", "cache-reader", "Token profile to request")
	objectID := flag.String("id", "123", "Cache object ID")
	flag.Parse()

	logger := logging.Configure(logging.DefaultConfig())

	client := tokenservice.NewClient(*baseURL, tokenservice.WithTracePropagation())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ctx = logging.WithTraceID(ctx, "serviceauth-example")

	issued, err := client.RequestProfileToken(ctx, *profile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to get token")
	}
	logger.Info().
		Str("subject", issued.Username).
		Strs("permissions", issued.Permissions).
		Int64("expires_in", issued.ExpiresIn).
		Msg("got token")

	validated, err := client.Validate(ctx, issued.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to validate token")
	}
	logger.Info().Bool("valid", validated.Valid).Msg("validated token")

	calls := []struct {
		name string
		call func(context.Context, string) (string, error)
	}{
		{"get", client.GetObject},
		{"put", client.PutObject},
		{"delete", client.DeleteObject},
	}
	for _, c := range calls {
		body, err := c.call(ctx, *objectID)
		var apiErr *tokenservice.APIError
		switch {
		case errors.As(err, &apiErr):
			logger.Warn().Str("operation", c.name).Int("status", apiErr.StatusCode).Str("message", apiErr.Body.Message).Msg("denied")
		case err != nil:
			logger.Fatal().Err(err).Str("operation", c.name).Msg("call failed")
		default:
			logger.Info().Str("operation", c.name).Str("body", body).Msg("allowed")
		}
	}
}
