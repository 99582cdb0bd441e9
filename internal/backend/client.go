// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds every upstream call.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps an upstream response body (10MB).
	MaxResponseSize = 10 * 1024 * 1024

	// MsgTokenRequired is returned when a protected call has no token.
	MsgTokenRequired = "Authentication token required"

	// MsgNetworkError is returned for any transport-level failure.
	MsgNetworkError = "Network error occurred"

	// MsgNotConfigured is returned when no backend URL is set.
	MsgNotConfigured = "Backend API URL is not configured"
)

// ForwardedHeaders lists the only inbound headers that cross to upstream.
var ForwardedHeaders = []string{
	"User-Agent",
	"Accept-Language",
	"X-Forwarded-For",
	"X-Real-IP",
}

// =============================================================================
// TYPES
// =============================================================================

// Call describes one upstream request.
type Call struct {
	Method      string
	Path        string
	Body        []byte
	Token       string
	RequireAuth bool
	Headers     http.Header
}

// Envelope is the uniform result of a Call.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Status  int             `json:"status"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls the remote REST service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// WithTimeout sets the per-call timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Do performs call and never returns a Go error; every outcome is an
// Envelope. A protected call with no token is rejected without a request.
func (c *Client) Do(ctx context.Context, call Call) Envelope {
	if call.RequireAuth && strings.TrimSpace(call.Token) == "" {
		return Envelope{Error: MsgTokenRequired, Status: http.StatusUnauthorized}
	}
	if !c.Configured() {
		return Envelope{Error: MsgNotConfigured, Status: http.StatusInternalServerError}
	}

	method := call.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimPrefix(call.Path, "/"), body)
	if err != nil {
		log.Printf("BACKEND_REQUEST_INVALID | method=%s path=%s err=%v", method, call.Path, err)
		return Envelope{Error: MsgNetworkError, Status: http.StatusInternalServerError}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if call.Token != "" {
		req.Header.Set("Authorization", "Bearer "+call.Token)
	}
	for _, name := range ForwardedHeaders {
		if v := call.Headers.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("BACKEND_NETWORK_ERROR | method=%s path=%s err=%v", method, call.Path, err)
		return Envelope{Error: MsgNetworkError, Status: http.StatusInternalServerError}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		log.Printf("BACKEND_NETWORK_ERROR | method=%s path=%s err=%v", method, call.Path, err)
		return Envelope{Error: MsgNetworkError, Status: http.StatusInternalServerError}
	}
	log.Printf("BACKEND_CALL | method=%s path=%s status=%d duration=%v", method, call.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Envelope{Error: upstreamMessage(resp.StatusCode, data), Status: resp.StatusCode}
	}

	env := Envelope{Success: true, Status: resp.StatusCode}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && json.Valid(trimmed) {
		env.Data = json.RawMessage(trimmed)
	}
	return env
}

// upstreamMessage extracts the error text from an upstream failure body.
// Both {"error": "..."} and {"message": "..."} are accepted.
func upstreamMessage(status int, data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return http.StatusText(status)
}

// BearerToken returns the token of an "Authorization: Bearer <token>"
// header, or "".
func BearerToken(h http.Header) string {
	auth := strings.TrimSpace(h.Get("Authorization"))
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
