// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator implements sending a chat message as a sequence of
// store mutations around one completion call.
//
// Send clears the error slot, appends the user message, titles the
// conversation on its first message, appends a streaming assistant
// placeholder, then fills the placeholder fragment by fragment. On any
// failure the placeholder gets a fixed apology and the error is reported
// with a retry action when it is retryable.
//
// Only one send may be in flight per conversation; a second one returns
// ErrSendInFlight without touching the store.
//
// # Key Types
//
//   - Orchestrator: Send, Retry, and NewConversation
//   - Completer: the transport surface Send depends on
//
// # Usage
//
//	st := store.New(store.DefaultState())
//	rep := store.NewErrorReporter(st)
//	o := orchestrator.New(st, transport.NewClient(url), rep)
//	if err := o.Send(ctx, "", "Hello"); err != nil {
//	    // the store already holds the error record
//	}
package orchestrator
