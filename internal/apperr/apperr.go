// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// AutoDismissDelay is how long a non-retryable error stays visible.
const AutoDismissDelay = 10 * time.Second

// =============================================================================
// KIND
// =============================================================================

// Kind categorizes an error for display and retry decisions.
type Kind string

const (
	// KindValidation is bad input. Never retryable.
	KindValidation Kind = "validation"
	// KindNetwork is a transport or connectivity failure.
	KindNetwork Kind = "network"
	// KindAuth is a missing or rejected credential.
	KindAuth Kind = "auth"
	// KindAPI is an upstream service error.
	KindAPI Kind = "api"
	// KindStorage is a local persistence failure. Never fatal.
	KindStorage Kind = "storage"
)

// DefaultRetryable returns the retry policy of a kind when nothing more
// specific is known.
func (k Kind) DefaultRetryable() bool {
	switch k {
	case KindNetwork, KindAPI, KindStorage:
		return true
	default:
		return false
	}
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error is a classified application error.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Status    int   // upstream HTTP status, 0 if none
	Err       error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the upstream HTTP status, if any.
func (e *Error) StatusCode() int {
	return e.Status
}

// Validation returns a non-retryable validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Network wraps a connectivity failure.
func Network(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Retryable: true, Err: err}
}

// Auth returns a non-retryable credential error.
func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Message: message, Status: 401}
}

// API returns an upstream error whose retry policy follows the status code.
func API(message string, status int) *Error {
	return &Error{Kind: KindAPI, Message: message, Status: status, Retryable: retryableStatus(status)}
}

// Storage wraps a persistence failure.
func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Retryable: true, Err: err}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// statusCoder is implemented by errors that carry an upstream HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Classify maps any error onto the taxonomy. The message is always the
// error's own text so upstream-provided messages reach the user intact.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Message: err.Error(), Retryable: true, Err: err}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		status := sc.StatusCode()
		if status == 401 || status == 403 {
			return &Error{Kind: KindAuth, Message: err.Error(), Status: status, Err: err}
		}
		return &Error{Kind: KindAPI, Message: err.Error(), Status: status, Retryable: retryableStatus(status), Err: err}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &Error{Kind: KindNetwork, Message: err.Error(), Retryable: true, Err: err}
	}

	return &Error{Kind: KindAPI, Message: err.Error(), Retryable: true, Err: err}
}

// IsRetryable reports whether err, once classified, may be retried.
func IsRetryable(err error) bool {
	if c := Classify(err); c != nil {
		return c.Retryable
	}
	return false
}

// retryableStatus treats 5xx and 429 as transient and every other status
// as a permanent client error.
func retryableStatus(status int) bool {
	return status >= 500 || status == 429
}

// =============================================================================
// RECORD
// =============================================================================

// Record is the single error slot held by the conversation store.
type Record struct {
	Message   string    `json:"message"`
	Kind      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
	Context   string    `json:"context,omitempty"`
}

// NewRecord classifies err and stamps it with the current time and a
// context label naming the operation that failed.
func NewRecord(err error, label string) Record {
	c := Classify(err)
	if c == nil {
		return Record{}
	}
	return Record{
		Message:   c.Error(),
		Kind:      c.Kind,
		Timestamp: time.Now(),
		Retryable: c.Retryable,
		Context:   label,
	}
}
