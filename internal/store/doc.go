// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds conversation and UI state behind a reducer.
//
// State only changes through Dispatch. Each action is a plain struct from a
// closed set, and Reduce is a pure function over (State, Action). One Store
// is constructed per session and passed to whichever component needs it.
//
// # Key Types
//
//   - State: conversations, current selection, flags, settings, counters
//   - Action: the closed set of transitions (AddMessage, UpdateMessage, ...)
//   - Store: serialized dispatch with ordered listeners
//   - ErrorReporter: fills the error slot, auto-dismiss and retry
//
// # Usage
//
//	st := store.New(store.DefaultState())
//	unsubscribe := st.Subscribe(func(prev, next store.State, a store.Action) {
//	    log.Printf("STATE_CHANGED | action=%s", a.Kind())
//	})
//	defer unsubscribe()
//
//	conv := model.NewConversation("")
//	st.Dispatch(store.AddConversation{Conversation: conv})
package store
