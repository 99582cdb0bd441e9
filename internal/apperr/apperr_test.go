// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type statusErr struct {
	status int
	msg    string
}

func (e *statusErr) Error() string   { return e.msg }
func (e *statusErr) StatusCode() int { return e.status }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"validation passthrough", Validation("empty"), KindValidation, false},
		{"canceled", context.Canceled, KindNetwork, true},
		{"deadline wrapped", fmt.Errorf("stream: %w", context.DeadlineExceeded), KindNetwork, true},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, KindNetwork, true},
		{"unauthorized", &statusErr{401, "bad key"}, KindAuth, false},
		{"forbidden", &statusErr{403, "denied"}, KindAuth, false},
		{"bad request", &statusErr{400, "bad"}, KindAPI, false},
		{"rate limited", &statusErr{429, "slow down"}, KindAPI, true},
		{"server error", &statusErr{502, "bad gateway"}, KindAPI, true},
		{"plain", errors.New("boom"), KindAPI, true},
		{"storage", Storage("disk full", nil), KindStorage, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Kind != tc.kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tc.kind)
			}
			if got.Retryable != tc.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tc.retryable)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true, want false")
	}
}

func TestClassify_KeepsUpstreamMessage(t *testing.T) {
	got := Classify(&statusErr{500, "API Error"})
	if got.Message != "API Error" {
		t.Errorf("Message = %q, want %q", got.Message, "API Error")
	}
	if !errors.Is(got, got.Err) {
		t.Error("classified error should unwrap to its cause")
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord(&statusErr{503, "unavailable"}, "send message")
	if rec.Message != "unavailable" {
		t.Errorf("Message = %q, want %q", rec.Message, "unavailable")
	}
	if rec.Kind != KindAPI || !rec.Retryable {
		t.Errorf("record = %+v, want retryable api", rec)
	}
	if rec.Context != "send message" {
		t.Errorf("Context = %q, want %q", rec.Context, "send message")
	}
	if rec.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestKind_DefaultRetryable(t *testing.T) {
	want := map[Kind]bool{
		KindValidation: false,
		KindNetwork:    true,
		KindAuth:       false,
		KindAPI:        true,
		KindStorage:    true,
	}
	for kind, retry := range want {
		if got := kind.DefaultRetryable(); got != retry {
			t.Errorf("%s.DefaultRetryable() = %v, want %v", kind, got, retry)
		}
	}
}
