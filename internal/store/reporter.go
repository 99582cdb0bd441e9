// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"log"
	"sync"
	"time"

	"github.com/jeranaias/gemchat/internal/apperr"
)

// ErrorReporter writes classified errors into a store's single error slot.
//
// Retryable errors remember a retry action until the next report or until
// Retry runs it. Non-retryable errors clear themselves after a delay if no
// newer error has replaced them.
type ErrorReporter struct {
	store *Store
	delay time.Duration

	mu    sync.Mutex
	retry func()
	timer *time.Timer
}

// NewErrorReporter creates a reporter for s using apperr.AutoDismissDelay.
func NewErrorReporter(s *Store) *ErrorReporter {
	return &ErrorReporter{store: s, delay: apperr.AutoDismissDelay}
}

// WithDismissDelay overrides the auto-dismiss delay.
func (r *ErrorReporter) WithDismissDelay(d time.Duration) *ErrorReporter {
	r.delay = d
	return r
}

// Report classifies err, stores it, and returns the stored record. retry
// is kept only when the error is retryable.
func (r *ErrorReporter) Report(err error, label string, retry func()) apperr.Record {
	rec := apperr.NewRecord(err, label)
	if rec.Message == "" {
		return rec
	}

	log.Printf("ERROR_REPORTED | kind=%s context=%q retryable=%v", rec.Kind, label, rec.Retryable)

	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.retry = nil
	if rec.Retryable {
		r.retry = retry
	} else if r.delay > 0 {
		stamp := rec.Timestamp
		r.timer = time.AfterFunc(r.delay, func() {
			r.store.Dispatch(ClearError{Timestamp: stamp})
		})
	}
	r.mu.Unlock()

	r.store.Dispatch(SetError{Error: rec})
	return rec
}

// CanRetry reports whether a retry action is pending.
func (r *ErrorReporter) CanRetry() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retry != nil
}

// Retry clears the error and re-runs the pending retry action. It returns
// false when there is nothing to retry.
func (r *ErrorReporter) Retry() bool {
	r.mu.Lock()
	fn := r.retry
	r.retry = nil
	r.mu.Unlock()

	r.store.Dispatch(ClearError{})
	if fn == nil {
		return false
	}
	log.Printf("ERROR_RETRY | started")
	fn()
	return true
}

// Dismiss clears the error and forgets any retry action.
func (r *ErrorReporter) Dismiss() {
	r.mu.Lock()
	r.retry = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	r.store.Dispatch(ClearError{})
}

// Close stops any pending auto-dismiss timer.
func (r *ErrorReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
