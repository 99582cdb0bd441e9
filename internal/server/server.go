// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jeranaias/gemchat/internal/backend"
	"github.com/jeranaias/gemchat/internal/gateway"
	"github.com/jeranaias/gemchat/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultHost is the default listen address.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 3000

	// MaxMessageCount is the maximum number of messages in a request.
	MaxMessageCount = 500

	// MaxRequestBodySize is the maximum size for a request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// ProbeMessage is the body message of GET /api/chat.
	ProbeMessage = "Chat API endpoint is running"
)

// Version is the server version reported by /health.
var Version = "0.1.0"

// validRoles lists the roles accepted in a completion request.
var validRoles = map[model.Role]bool{
	model.RoleUser:      true,
	model.RoleAssistant: true,
	model.RoleSystem:    true,
}

// validateMessages checks roles and count. Emptiness is checked separately
// so it keeps its own message.
func validateMessages(messages []gateway.Message) error {
	if len(messages) > MaxMessageCount {
		return fmt.Errorf("too many messages: %d (max %d)", len(messages), MaxMessageCount)
	}
	for i, msg := range messages {
		if !validRoles[msg.Role] {
			return fmt.Errorf("invalid role at message %d: %q", i, msg.Role)
		}
	}
	return nil
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP API server.
type Server struct {
	host   string
	port   int
	router *http.ServeMux
	server *http.Server

	gateway *gateway.Gateway
	backend *backend.Client
	cors    *CORSConfig
	limiter *RateLimiter

	closed bool
	mu     sync.RWMutex
}

// NewServer creates a Server listening on host:port. Zero values fall back
// to DefaultHost and DefaultPort.
func NewServer(host string, port int) *Server {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		host:   host,
		port:   port,
		router: http.NewServeMux(),
		cors:   DefaultCORSConfig(),
	}
	s.setupRoutes()
	return s
}

// WithGateway sets the completion gateway.
func (s *Server) WithGateway(g *gateway.Gateway) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = g
	return s
}

// WithBackend sets the remote backend client.
func (s *Server) WithBackend(b *backend.Client) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
	return s
}

// WithCORS sets the CORS configuration.
func (s *Server) WithCORS(c *CORSConfig) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cors = c
	return s
}

// WithRateLimiter sets the per-IP rate limiter. Nil disables limiting.
func (s *Server) WithRateLimiter(rl *RateLimiter) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = rl
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("GET /api/chat", s.handleChatProbe)
	s.router.HandleFunc("GET /health", s.handleHealth)

	// Remote backend proxy. Only registration is public.
	s.router.HandleFunc("POST /api/auth/register", s.proxy(http.MethodPost, staticPath("/register"), false))
	s.router.HandleFunc("POST /api/auth/logout", s.proxy(http.MethodPost, staticPath("/logout"), true))
	s.router.HandleFunc("GET /api/user", s.proxy(http.MethodGet, staticPath("/user"), true))
	s.router.HandleFunc("GET /api/user/preferences", s.proxy(http.MethodGet, staticPath("/user/preferences"), true))
	s.router.HandleFunc("PUT /api/user/preferences", s.proxy(http.MethodPut, staticPath("/user/preferences"), true))
	s.router.HandleFunc("GET /api/chats", s.proxy(http.MethodGet, staticPath("/chats"), true))
	s.router.HandleFunc("POST /api/chats", s.proxy(http.MethodPost, staticPath("/chats"), true))
	s.router.HandleFunc("GET /api/chats/{id}", s.proxy(http.MethodGet, chatPath(""), true))
	s.router.HandleFunc("PUT /api/chats/{id}", s.proxy(http.MethodPut, chatPath(""), true))
	s.router.HandleFunc("DELETE /api/chats/{id}", s.proxy(http.MethodDelete, chatPath(""), true))
	s.router.HandleFunc("GET /api/chats/{id}/messages", s.proxy(http.MethodGet, chatPath("/messages"), true))
	s.router.HandleFunc("POST /api/chats/{id}/messages", s.proxy(http.MethodPost, chatPath("/messages"), true))
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	cors, limiter := s.cors, s.limiter
	s.mu.RUnlock()

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
	}
	if cors != nil {
		middlewares = append(middlewares, CORSMiddleware(cors))
	}
	if limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(limiter))
	}
	return Chain(middlewares...)(s.router)
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req gateway.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("CHAT_BAD_BODY | err=%v", err)
		writeError(w, http.StatusInternalServerError, gateway.MsgInternal)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, gateway.MsgEmptyMessages)
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.RLock()
	gw := s.gateway
	s.mu.RUnlock()
	if gw == nil || !gw.Configured() {
		writeError(w, http.StatusInternalServerError, gateway.MsgNotConfigured)
		return
	}

	if req.Stream {
		s.streamChat(w, r, gw, req)
		return
	}

	completion, err := gw.Complete(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), gateway.PublicMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

// streamChat writes one "data:" line per fragment and a final [DONE]. A
// failure after the headers are sent ends the body without [DONE].
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, gw *gateway.Gateway, req gateway.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	stream, err := gw.Stream(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), gateway.PublicMessage(err))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	fragments := 0
	for {
		frag, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("CHAT_STREAM_ABORTED | model=%s fragments=%d err=%v", stream.Model(), fragments, err)
			return
		}
		if err := writeFragment(w, frag); err != nil {
			log.Printf("CHAT_STREAM_CLIENT_GONE | fragments=%d err=%v", fragments, err)
			return
		}
		flusher.Flush()
		fragments++
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeFragment writes one data line.
func writeFragment(w io.Writer, frag string) error {
	data, err := json.Marshal(struct {
		Content string `json:"content"`
	}{frag})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// ProbeResponse is the body of GET /api/chat.
type ProbeResponse struct {
	Message string            `json:"message"`
	Models  []model.ModelInfo `json:"models"`
}

// handleChatProbe handles GET /api/chat.
func (s *Server) handleChatProbe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{Message: ProbeMessage, Models: model.Models})
}

// statusFor maps a gateway error to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, gateway.ErrEmptyMessages) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status               string `json:"status"`
	Version              string `json:"version"`
	GeminiStatus         string `json:"gemini_status"`
	BackendURLConfigured bool   `json:"backend_url_configured"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	gw, be := s.gateway, s.backend
	s.mu.RUnlock()

	health := HealthResponse{
		Status:       "ok",
		Version:      Version,
		GeminiStatus: "not_configured",
	}
	if gw != nil && gw.Configured() {
		health.GeminiStatus = "configured"
	} else {
		health.Status = "degraded"
	}
	health.BackendURLConfigured = be != nil && be.Configured()

	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// BACKEND PROXY
// ============================================================================

// pathFunc computes the upstream path for a request.
type pathFunc func(r *http.Request) string

func staticPath(p string) pathFunc {
	return func(*http.Request) string { return p }
}

// chatPath builds /chats/{id}<suffix> with the id escaped.
func chatPath(suffix string) pathFunc {
	return func(r *http.Request) string {
		return "/chats/" + url.PathEscape(r.PathValue("id")) + suffix
	}
}

// proxy returns a handler that forwards the request to the backend.
func (s *Server) proxy(method string, path pathFunc, requireAuth bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := backend.BearerToken(r.Header)
		if requireAuth && token == "" {
			writeError(w, http.StatusUnauthorized, backend.MsgTokenRequired)
			return
		}

		s.mu.RLock()
		be := s.backend
		s.mu.RUnlock()
		if be == nil {
			writeError(w, http.StatusInternalServerError, backend.MsgNotConfigured)
			return
		}

		var body []byte
		if r.Body != nil && method != http.MethodGet && method != http.MethodDelete {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Request body too large")
				return
			}
		}

		env := be.Do(r.Context(), backend.Call{
			Method:      method,
			Path:        path(r),
			Body:        body,
			Token:       token,
			RequireAuth: requireAuth,
			Headers:     r.Header,
		})
		if !env.Success {
			writeError(w, env.Status, env.Error)
			return
		}
		if len(env.Data) == 0 {
			if env.Status == http.StatusNoContent {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, env.Status, map[string]bool{"success": true})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(env.Status)
		_, _ = w.Write(env.Data)
	}
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on Addr and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a graceful
// shutdown, including one that happened before Serve was called.
func (s *Server) Serve(ln net.Listener) error {
	handler := s.Handler()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	log.Printf("SERVER_START | addr=%s version=%s", srv.Addr, Version)
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server. A server shut down before it
// starts never serves.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv, limiter := s.server, s.limiter
	s.mu.Unlock()

	if limiter != nil {
		limiter.Close()
	}
	if srv == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("RESPONSE_ENCODE_FAILED | err=%v", err)
	}
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
