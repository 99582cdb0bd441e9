// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/gemchat/internal/gateway"
	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultGatewayURL is where the chat endpoint is served by default.
	DefaultGatewayURL = "http://localhost:3000"

	// ChatPath is the completion endpoint path.
	ChatPath = "/api/chat"

	// DefaultTimeout bounds non-streaming calls.
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 64 * 1024
)

// =============================================================================
// ERRORS
// =============================================================================

// APIError is a non-2xx response from the chat endpoint. Its message is the
// one the server put in the body.
type APIError struct {
	Status  int
	Message string
}

// Error returns the server-provided message.
func (e *APIError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int {
	return e.Status
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to a chat endpoint over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	stream     *http.Client
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGatewayURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		stream:     &http.Client{},
	}
}

// WithHTTPClient replaces both underlying HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.stream = hc
	return c
}

// WithTimeout sets the timeout of non-streaming calls.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// BaseURL returns the gateway URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream posts req with stream=true and returns the fragment stream. A
// failure status or a missing body is reported here, before any fragment.
func (c *Client) Stream(ctx context.Context, req gateway.Request) (*Stream, error) {
	req.Stream = true
	resp, err := c.post(ctx, c.stream, req)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoResponseBody
	}
	return NewStream(resp.Body), nil
}

// Complete posts req with stream=false and decodes the completion.
func (c *Client) Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error) {
	req.Stream = false
	resp, err := c.post(ctx, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoResponseBody
	}
	defer resp.Body.Close()

	var out gateway.Completion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	return &out, nil
}

// ProbeResult is the body of GET /api/chat.
type ProbeResult struct {
	Message string            `json:"message"`
	Models  []model.ModelInfo `json:"models"`
}

// Probe calls GET /api/chat to check the endpoint and list its models.
func (c *Client) Probe(ctx context.Context) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ChatPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var out ProbeResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse probe response: %w", err)
	}
	return &out, nil
}

// post sends req and returns the response if its status is 2xx.
func (c *Client) post(ctx context.Context, hc *http.Client, req gateway.Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// decodeError reads {"error": "..."} from a failed response.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	return &APIError{
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode),
	}
}
