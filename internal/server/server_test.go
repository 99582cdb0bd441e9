// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/gemchat/internal/backend"
	"github.com/jeranaias/gemchat/internal/gateway"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/transport"
)

// fakeGemini serves canned upstream responses.
func fakeGemini(t *testing.T, h http.HandlerFunc) *gateway.Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return gateway.New(gemini.NewClient("key").WithBaseURL(srv.URL))
}

func postChat(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body["error"]
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidateMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []gateway.Message
		wantErr  bool
	}{
		{"valid", []gateway.Message{{Role: model.RoleUser, Content: "hi"}}, false},
		{"system allowed", []gateway.Message{{Role: model.RoleSystem, Content: "be brief"}}, false},
		{"invalid role", []gateway.Message{{Role: "hacker", Content: "x"}}, true},
		{"empty role", []gateway.Message{{Role: "", Content: "x"}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateMessages(tc.messages)
			if (err != nil) != tc.wantErr {
				t.Errorf("validateMessages() error = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

// =============================================================================
// CHAT HANDLER TESTS
// =============================================================================

func TestHandleChat_EmptyMessages(t *testing.T) {
	s := NewServer("", 0).WithGateway(gateway.New(gemini.NewClient("key")))

	for _, body := range []string{`{"messages":[]}`, `{}`} {
		w := postChat(t, s, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if got := strings.TrimSpace(w.Body.String()); got != `{"error":"Messages array is required and cannot be empty"}` {
			t.Errorf("body = %s", got)
		}
	}
}

func TestHandleChat_NotConfigured(t *testing.T) {
	s := NewServer("", 0).WithGateway(gateway.New(gemini.NewClient("")))
	w := postChat(t, s, `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", w.Code)
	}
	if msg := decodeError(t, w); msg != gateway.MsgNotConfigured {
		t.Errorf("error = %q, want %q", msg, gateway.MsgNotConfigured)
	}
}

func TestHandleChat_MalformedBody(t *testing.T) {
	s := NewServer("", 0).WithGateway(gateway.New(gemini.NewClient("key")))
	w := postChat(t, s, `{"messages":`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", w.Code)
	}
	if msg := decodeError(t, w); msg != "Internal server error" {
		t.Errorf("error = %q", msg)
	}
}

func TestHandleChat_NonStreaming(t *testing.T) {
	gw := fakeGemini(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Hi!"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1,"totalTokenCount":2}}`)
	})
	s := NewServer("", 0).WithGateway(gw)

	w := postChat(t, s, `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var c gateway.Completion
	if err := json.NewDecoder(w.Body).Decode(&c); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if c.Text() != "Hi!" || c.Usage.TotalTokens != 2 || c.Model != model.DefaultGatewayModel {
		t.Errorf("Completion = %+v", c)
	}
}

func TestHandleChat_UpstreamFailure(t *testing.T) {
	gw := fakeGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"secret internals"}}`)
	})
	s := NewServer("", 0).WithGateway(gw)

	w := postChat(t, s, `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", w.Code)
	}
	if msg := decodeError(t, w); msg != gateway.MsgUpstreamFailure {
		t.Errorf("error = %q, want %q", msg, gateway.MsgUpstreamFailure)
	}
}

func TestHandleChat_Streaming(t *testing.T) {
	gw := fakeGemini(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo \\\"x\\\"\"}]}}]}\n\n")
	})
	s := NewServer("", 0).WithGateway(gw)

	w := postChat(t, s, `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
	if conn := w.Header().Get("Connection"); conn != "keep-alive" {
		t.Errorf("Connection = %q, want keep-alive", conn)
	}

	want := "data: {\"content\":\"Hel\"}\n\n" +
		"data: {\"content\":\"lo \\\"x\\\"\"}\n\n" +
		"data: [DONE]\n\n"
	if w.Body.String() != want {
		t.Errorf("body = %q, want %q", w.Body.String(), want)
	}
}

func TestHandleChat_StreamingRoundTripThroughTransport(t *testing.T) {
	gw := fakeGemini(t, func(w http.ResponseWriter, r *http.Request) {
		for _, text := range []string{"one ", "two ", "three"} {
			_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\""+text+"\"}]}}]}\n\n")
			w.(http.Flusher).Flush()
		}
	})
	srv := httptest.NewServer(NewServer("", 0).WithGateway(gw).Handler())
	defer srv.Close()

	stream, err := transport.NewClient(srv.URL).Stream(t.Context(), gateway.Request{
		Messages: []gateway.Message{{Role: model.RoleUser, Content: "count"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		frag, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		sb.WriteString(frag)
	}
	if sb.String() != "one two three" {
		t.Errorf("text = %q", sb.String())
	}
}

func TestHandleChatProbe(t *testing.T) {
	s := NewServer("", 0)
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
	var resp ProbeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Message != ProbeMessage || len(resp.Models) != len(model.Models) {
		t.Errorf("ProbeResponse = %+v", resp)
	}
}

// =============================================================================
// HEALTH TESTS
// =============================================================================

func TestHandleHealth(t *testing.T) {
	s := NewServer("", 0).
		WithGateway(gateway.New(gemini.NewClient("key"))).
		WithBackend(backend.NewClient("http://backend.invalid"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Version != Version {
		t.Errorf("Version = %q, want %q", resp.Version, Version)
	}
	if resp.Status != "ok" || resp.GeminiStatus != "configured" || !resp.BackendURLConfigured {
		t.Errorf("HealthResponse = %+v", resp)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	s := NewServer("", 0)
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "degraded" || resp.GeminiStatus != "not_configured" || resp.BackendURLConfigured {
		t.Errorf("HealthResponse = %+v", resp)
	}
}

// =============================================================================
// PROXY TESTS
// =============================================================================

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := NewServer("127.0.0.1", 0).WithGateway(gateway.New(gemini.NewClient("key")))

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() = %v, want nil", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestServer_ShutdownBeforeServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := NewServer("127.0.0.1", 0).WithRateLimiter(NewRateLimiter(10, 10))
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v, want nil", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve kept running after an earlier Shutdown")
	}

	if _, err := net.Dial("tcp", ln.Addr().String()); err == nil {
		t.Error("listener should be closed")
	}
}

func TestProxy_RequiresToken(t *testing.T) {
	var calls int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer upstream.Close()

	s := NewServer("", 0).WithBackend(backend.NewClient(upstream.URL))
	for _, target := range []string{"/api/chats", "/api/user", "/api/chats/abc/messages"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: Status = %d, want 401", target, w.Code)
		}
		if msg := decodeError(t, w); msg != "Authentication token required" {
			t.Errorf("%s: error = %q", target, msg)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}

func TestProxy_RegisterIsPublic(t *testing.T) {
	var gotPath, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"token":"t1"}`)
	}))
	defer upstream.Close()

	s := NewServer("", 0).WithBackend(backend.NewClient(upstream.URL))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(`{"email":"a@b.c"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Status = %d, want 201", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"token":"t1"}` {
		t.Errorf("body = %s", w.Body.String())
	}
	if gotPath != "/register" || gotBody != `{"email":"a@b.c"}` {
		t.Errorf("upstream got %s %q", gotPath, gotBody)
	}
}

func TestProxy_ForwardsPathAndRelaysErrors(t *testing.T) {
	var gotPath, gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"Not your chat"}`)
	}))
	defer upstream.Close()

	s := NewServer("", 0).WithBackend(backend.NewClient(upstream.URL))
	req := httptest.NewRequest(http.MethodDelete, "/api/chats/c42", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", w.Code)
	}
	if msg := decodeError(t, w); msg != "Not your chat" {
		t.Errorf("error = %q", msg)
	}
	if gotPath != "/chats/c42" || gotAuth != "Bearer tok" {
		t.Errorf("upstream got path=%s auth=%q", gotPath, gotAuth)
	}
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", w.Code)
	}
	if msg := decodeError(t, w); msg != "Internal server error" {
		t.Errorf("error = %q", msg)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Close()

	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "203.0.113.8:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, other)
	if w.Code != http.StatusOK {
		t.Errorf("other client Status = %d, want 200", w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware(NewCORSConfig([]string{"https://chat.example.com"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight Status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://chat.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.1:5000", "", "203.0.113.1"},
		{"untrusted forwarder ignored", "203.0.113.1:5000", "1.2.3.4", "203.0.113.1"},
		{"trusted forwarder", "127.0.0.1:5000", "1.2.3.4, 10.0.0.1", "1.2.3.4"},
		{"invalid forwarded ip", "127.0.0.1:5000", "not-an-ip", "127.0.0.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := GetClientIP(req); got != tc.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
