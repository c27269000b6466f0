// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package tokenservice

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	gerrors "github.com/openchami/tokengate/pkg/errors"
	"github.com/openchami/tokengate/pkg/logging"
)

// APIError is returned when the service answers with a non-2xx status
type APIError struct {
	StatusCode int
	Body       gerrors.ErrorBody
}

func (e *APIError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("tokengate: %d %s", e.StatusCode, e.Body.Message)
	}
	return fmt.Sprintf("tokengate: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ClientOption configures a Client
type ClientOption func(*Client)

// Client talks to the token and cache API
type Client struct {
	rest *resty.Client

	mu    sync.RWMutex
	token string
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.rest.SetTimeout(d)
	}
}

// WithBearerToken authenticates cache calls with an existing token
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithTracePropagation forwards the trace and correlation IDs found in the request context
func WithTracePropagation() ClientOption {
	return func(c *Client) {
		c.rest.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			if id := logging.GetTraceID(req.Context()); id != "" {
				req.SetHeader(logging.HeaderTraceID, id)
			}
			if id := logging.GetCorrelationID(req.Context()); id != "" {
				req.SetHeader(logging.HeaderCorrelationID, id)
			}
			return nil
		})
	}
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		rest: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token used for cache calls
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the bearer token used for cache calls
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// RequestToken mints a custom token and keeps it for subsequent cache calls
func (c *Client) RequestToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", req.Username)
	for _, role := range req.Roles {
		form.Add("roles", role)
	}
	for _, perm := range req.Permissions {
		form.Add("permissions", perm)
	}
	if req.AuthLevel != "" {
		form.Set("auth_level", req.AuthLevel)
	}
	if req.IDP != "" {
		form.Set("idp", req.IDP)
	}

	var out TokenResponse
	resp, err := c.newRequest(ctx).
		SetFormDataFromValues(form).
		SetResult(&out).
		Post("/api/v1/auth/token")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}

	c.SetToken(out.Token)
	return &out, nil
}

// RequestProfileToken mints a predefined profile token and keeps it for subsequent cache calls
func (c *Client) RequestProfileToken(ctx context.Context, profile string) (*TokenResponse, error) {
	var out TokenResponse
	resp, err := c.newRequest(ctx).
		SetPathParam("type", profile).
		SetResult(&out).
		Get("/api/v1/auth/token/{type}")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}

	c.SetToken(out.Token)
	return &out, nil
}

// Validate asks the service whether tokenString is valid
func (c *Client) Validate(ctx context.Context, tokenString string) (*ValidateResponse, error) {
	var out ValidateResponse
	resp, err := c.newRequest(ctx).
		SetFormData(map[string]string{"token": tokenString}).
		SetResult(&out).
		Post("/api/v1/auth/validate")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetObject calls the cache read endpoint
func (c *Client) GetObject(ctx context.Context, id string) (string, error) {
	return c.cacheCall(ctx, http.MethodGet, "/api/v1/cacheServices/getObject", id)
}

// PutObject calls the cache write endpoint
func (c *Client) PutObject(ctx context.Context, id string) (string, error) {
	return c.cacheCall(ctx, http.MethodPut, "/api/v1/cacheServices/putObject", id)
}

// DeleteObject calls the cache delete endpoint
func (c *Client) DeleteObject(ctx context.Context, id string) (string, error) {
	return c.cacheCall(ctx, http.MethodDelete, "/api/v1/cacheServices/deleteObject", id)
}

func (c *Client) cacheCall(ctx context.Context, method, path, id string) (string, error) {
	req := c.newRequest(ctx).SetQueryParam("id", id)
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}

	resp, err := req.Execute(method, path)
	if err := checkResponse(resp, err); err != nil {
		return "", err
	}
	return resp.String(), nil
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	return c.rest.R().
		SetContext(ctx).
		SetError(&gerrors.ErrorBody{})
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*gerrors.ErrorBody); ok && body != nil {
		apiErr.Body = *body
	}
	return apiErr
}
