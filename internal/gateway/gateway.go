// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// DEFAULTS AND MESSAGES
// =============================================================================

const (
	// DefaultTemperature is used when a request carries no temperature.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is used when a request carries no positive max_tokens.
	DefaultMaxTokens = 1000

	// FinishReasonStop is reported when the upstream gives no finish reason.
	FinishReasonStop = "stop"
)

// Client-facing error messages. These are part of the HTTP contract.
const (
	MsgEmptyMessages   = "Messages array is required and cannot be empty"
	MsgNotConfigured   = "Gemini API key is not configured"
	MsgUpstreamFailure = "Failed to get response from Gemini API"
	MsgInternal        = "Internal server error"
)

var (
	// ErrNotConfigured is returned before any network call when no upstream
	// API key is set.
	ErrNotConfigured = errors.New("gateway: gemini API key is not configured")

	// ErrEmptyMessages is returned for a request with no messages.
	ErrEmptyMessages = errors.New("gateway: messages array is required and cannot be empty")
)

// UpstreamError wraps any failure of the upstream call. Its message never
// includes upstream detail; the cause is available through Unwrap.
type UpstreamError struct {
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return "gateway: failed to get response from Gemini API"
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PublicMessage maps a gateway error to the message sent to HTTP clients.
func PublicMessage(err error) string {
	var upErr *UpstreamError
	switch {
	case errors.Is(err, ErrEmptyMessages):
		return MsgEmptyMessages
	case errors.Is(err, ErrNotConfigured):
		return MsgNotConfigured
	case errors.As(err, &upErr):
		return MsgUpstreamFailure
	default:
		return MsgInternal
	}
}

// =============================================================================
// REQUEST AND COMPLETION TYPES
// =============================================================================

// Message is one {role, content} pair of a completion request.
type Message struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// Request is an application-level chat-completion request.
type Request struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the non-streaming response object.
type Completion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Text returns the first choice's content.
func (c *Completion) Text() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

// =============================================================================
// GATEWAY
// =============================================================================

// Gateway adapts Requests to the Gemini client.
type Gateway struct {
	client       *gemini.Client
	defaultModel string
}

// New creates a gateway over the given Gemini client.
func New(client *gemini.Client) *Gateway {
	return &Gateway{
		client:       client,
		defaultModel: model.DefaultGatewayModel,
	}
}

// WithDefaultModel sets the model used when a request names none.
func (g *Gateway) WithDefaultModel(m string) *Gateway {
	if m = strings.TrimSpace(m); m != "" {
		g.defaultModel = m
	}
	return g
}

// Configured reports whether the upstream API key is set.
func (g *Gateway) Configured() bool {
	return g.client != nil && g.client.IsConfigured()
}

// Complete performs a non-streaming completion.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	modelID, upstream, err := g.prepare(req)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.GenerateContent(ctx, modelID, upstream)
	if err != nil {
		log.Printf("GATEWAY_UPSTREAM_FAILED | model=%s mode=complete err=%v", modelID, err)
		return nil, &UpstreamError{Err: err}
	}

	finish := resp.FinishReason()
	if finish == "" {
		finish = FinishReasonStop
	}
	usage := Usage{
		PromptTokens:     resp.UsageMetadata.PromptTokenCount,
		CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      resp.UsageMetadata.TotalTokenCount,
	}
	log.Printf("GATEWAY_COMPLETE | model=%s prompt_tokens=%d completion_tokens=%d", modelID, usage.PromptTokens, usage.CompletionTokens)

	return &Completion{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   modelID,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: model.RoleAssistant, Content: resp.Text()},
			FinishReason: finish,
		}},
		Usage: usage,
	}, nil
}

// Stream opens a streaming completion. Errors that occur before the first
// byte are returned here; later ones come from FragmentStream.Next.
func (g *Gateway) Stream(ctx context.Context, req Request) (*FragmentStream, error) {
	modelID, upstream, err := g.prepare(req)
	if err != nil {
		return nil, err
	}

	s, err := g.client.StreamGenerateContent(ctx, modelID, upstream)
	if err != nil {
		log.Printf("GATEWAY_UPSTREAM_FAILED | model=%s mode=stream err=%v", modelID, err)
		return nil, &UpstreamError{Err: err}
	}
	return &FragmentStream{upstream: s, model: modelID}, nil
}

// prepare validates req, applies defaults, and translates it.
func (g *Gateway) prepare(req Request) (string, gemini.GenerateRequest, error) {
	if len(req.Messages) == 0 {
		return "", gemini.GenerateRequest{}, ErrEmptyMessages
	}
	if !g.Configured() {
		return "", gemini.GenerateRequest{}, ErrNotConfigured
	}

	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = g.defaultModel
	}
	return modelID, Translate(req), nil
}

// Translate converts a Request into the upstream shape. System messages
// have no upstream equivalent here and are dropped; assistant becomes model.
func Translate(req Request) gemini.GenerateRequest {
	temp := DefaultTemperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := DefaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	contents := make([]gemini.Content, 0, len(req.Messages))
	dropped := 0
	for _, m := range req.Messages {
		role := gemini.RoleUser
		switch m.Role {
		case model.RoleSystem:
			dropped++
			continue
		case model.RoleAssistant:
			role = gemini.RoleModel
		}
		contents = append(contents, gemini.Content{
			Role:  role,
			Parts: []gemini.Part{{Text: m.Content}},
		})
	}
	if dropped > 0 {
		log.Printf("GATEWAY_SYSTEM_DROPPED | count=%d", dropped)
	}

	return gemini.GenerateRequest{
		Contents: contents,
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:     &temp,
			MaxOutputTokens: maxTokens,
		},
		SafetySettings: gemini.DefaultSafetySettings(),
	}
}

func newCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// =============================================================================
// FRAGMENT STREAM
// =============================================================================

// FragmentStream is a pull-based, single-pass sequence of text fragments.
// Abandoning it without Close leaks the upstream connection until the
// request context ends.
type FragmentStream struct {
	upstream  *gemini.Stream
	model     string
	fragments int
	usage     Usage
	done      bool
}

// Next blocks until the next non-empty fragment arrives. It returns io.EOF
// when the upstream completes.
func (s *FragmentStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		chunk, err := s.upstream.Next()
		if err != nil {
			s.done = true
			if err == io.EOF {
				log.Printf("GATEWAY_STREAM | model=%s fragments=%d total_tokens=%d", s.model, s.fragments, s.usage.TotalTokens)
				return "", err
			}
			log.Printf("GATEWAY_UPSTREAM_FAILED | model=%s mode=stream fragments=%d err=%v", s.model, s.fragments, err)
			return "", &UpstreamError{Err: err}
		}
		if u := chunk.UsageMetadata; u.TotalTokenCount > 0 {
			s.usage = Usage{
				PromptTokens:     u.PromptTokenCount,
				CompletionTokens: u.CandidatesTokenCount,
				TotalTokens:      u.TotalTokenCount,
			}
		}
		if text := chunk.Text(); text != "" {
			s.fragments++
			return text, nil
		}
	}
}

// Usage returns the most recent token usage reported by the upstream.
func (s *FragmentStream) Usage() Usage {
	return s.usage
}

// Model returns the model the stream was opened against.
func (s *FragmentStream) Model() string {
	return s.model
}

// Close releases the upstream connection.
func (s *FragmentStream) Close() error {
	s.done = true
	return s.upstream.Close()
}
