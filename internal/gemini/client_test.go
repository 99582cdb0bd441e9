// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateContent_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotReq GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"},{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`)
	}))
	defer srv.Close()

	c := NewClient("secret").WithBaseURL(srv.URL)
	resp, err := c.GenerateContent(context.Background(), "models/gemini-1.5-flash", GenerateRequest{
		Contents:       []Content{{Role: RoleUser, Parts: []Part{{Text: "hi"}}}},
		SafetySettings: DefaultSafetySettings(),
	})
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}
	if gotPath != "/models/gemini-1.5-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("key = %q, want secret", gotKey)
	}
	if len(gotReq.SafetySettings) != 4 {
		t.Errorf("safety settings = %d, want 4", len(gotReq.SafetySettings))
	}
	if resp.Text() != "Hello" {
		t.Errorf("Text() = %q, want Hello", resp.Text())
	}
	if resp.FinishReason() != "STOP" {
		t.Errorf("FinishReason() = %q, want STOP", resp.FinishReason())
	}
	if resp.UsageMetadata.TotalTokenCount != 5 {
		t.Errorf("TotalTokenCount = %d, want 5", resp.UsageMetadata.TotalTokenCount)
	}
}

func TestGenerateContent_NotConfigured(t *testing.T) {
	_, err := NewClient("  ").GenerateContent(context.Background(), "m", GenerateRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestGenerateContent_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	_, err := NewClient("k").WithBaseURL(srv.URL).GenerateContent(context.Background(), "m", GenerateRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "API key not valid" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if apiErr.StatusCode() != 400 {
		t.Errorf("StatusCode() = %d, want 400", apiErr.StatusCode())
	}
}

func TestStreamGenerateContent(t *testing.T) {
	var gotAlt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAlt = r.URL.Query().Get("alt")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\r\n\r\n")
		_, _ = io.WriteString(w, ": keep-alive\n\n")
		_, _ = io.WriteString(w, "data: garbage\n\n")
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]},\"finishReason\":\"STOP\"}]}")
	}))
	defer srv.Close()

	s, err := NewClient("k").WithBaseURL(srv.URL).StreamGenerateContent(context.Background(), "gemini-pro", GenerateRequest{})
	if err != nil {
		t.Fatalf("StreamGenerateContent() error = %v", err)
	}
	defer s.Close()

	var texts []string
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		texts = append(texts, chunk.Text())
	}

	if gotAlt != "sse" {
		t.Errorf("alt = %q, want sse", gotAlt)
	}
	if strings.Join(texts, "|") != "Hel|lo" {
		t.Errorf("texts = %v, want [Hel lo]", texts)
	}
	if s.Events() != 2 {
		t.Errorf("Events() = %d, want 2", s.Events())
	}
}

func TestStreamGenerateContent_ErrorBeforeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	_, err := NewClient("k").WithBaseURL(srv.URL).StreamGenerateContent(context.Background(), "m", GenerateRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "slow down" {
		t.Errorf("error = %v, want APIError(slow down)", err)
	}
}

func TestKeyFingerprint(t *testing.T) {
	if got := NewClient("").KeyFingerprint(); got != "none" {
		t.Errorf("KeyFingerprint() = %q, want none", got)
	}
	fp := NewClient("abc").KeyFingerprint()
	if len(fp) != 8 || strings.Contains(fp, "abc") {
		t.Errorf("KeyFingerprint() = %q", fp)
	}
}
