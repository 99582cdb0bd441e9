// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"log"
	"time"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/store"
)

// DefaultWriteTimeout bounds a single write-through save.
const DefaultWriteTimeout = 3 * time.Second

// Persister mirrors a store's durable slice to a KV.
//
// Every transition that changes conversations, preferences, settings, or
// persistable UI flags produces one write of the affected key. Failed
// writes are logged and otherwise ignored.
type Persister struct {
	kv      KV
	timeout time.Duration
}

// NewPersister creates a persister over kv.
func NewPersister(kv KV) *Persister {
	return &Persister{kv: kv, timeout: DefaultWriteTimeout}
}

// WithTimeout overrides the per-write timeout.
func (p *Persister) WithTimeout(d time.Duration) *Persister {
	p.timeout = d
	return p
}

// =============================================================================
// HYDRATION
// =============================================================================

// HydrateResult reports how each key loaded.
type HydrateResult struct {
	Conversations Status
	Preferences   Status
	Settings      Status
	UI            Status
}

// Hydrate loads all four keys and dispatches one store.Hydrate action with
// whatever was found. Missing or unreadable keys keep their defaults.
func (p *Persister) Hydrate(ctx context.Context, st *store.Store) HydrateResult {
	convs := Load[[]model.Conversation](ctx, p.kv, KeyConversations)
	prefs := Load[store.Preferences](ctx, p.kv, KeyPreferences)
	settings := Load[store.Settings](ctx, p.kv, KeySettings)
	ui := Load[store.UIFlags](ctx, p.kv, KeyUI)

	action := store.Hydrate{}
	if convs.OK() {
		action.Conversations = convs.Value
		if action.Conversations == nil {
			action.Conversations = []model.Conversation{}
		}
	}
	if prefs.OK() {
		action.Preferences = &prefs.Value
	}
	if settings.OK() {
		action.Settings = &settings.Value
	}
	if ui.OK() {
		action.UI = &ui.Value
	}

	for key, err := range map[string]error{
		KeyConversations: convs.Err,
		KeyPreferences:   prefs.Err,
		KeySettings:      settings.Err,
		KeyUI:            ui.Err,
	} {
		if err != nil {
			log.Printf("STORAGE_LOAD_SKIPPED | key=%s err=%v", key, err)
		}
	}

	st.Dispatch(action)

	log.Printf("STORAGE_HYDRATED | conversations=%d status=%s", len(action.Conversations), convs.Status)
	return HydrateResult{
		Conversations: convs.Status,
		Preferences:   prefs.Status,
		Settings:      settings.Status,
		UI:            ui.Status,
	}
}

// =============================================================================
// WRITE-THROUGH
// =============================================================================

// Attach subscribes to st and writes each changed key. It returns the
// unsubscribe function.
func (p *Persister) Attach(st *store.Store) (detach func()) {
	return st.Subscribe(func(prev, next store.State, a store.Action) {
		if _, ok := a.(store.Hydrate); ok {
			return
		}
		if !sameConversations(prev.Conversations, next.Conversations) {
			p.save(KeyConversations, next.Conversations)
		}
		if prev.Preferences != next.Preferences {
			p.save(KeyPreferences, next.Preferences)
		}
		if prev.Settings != next.Settings {
			p.save(KeySettings, next.Settings)
		}
		if prev.UI.Persistable() != next.UI.Persistable() {
			p.save(KeyUI, next.UI.Persistable())
		}
	})
}

// Watch reloads keys changed by another process when the backend supports
// change notification. It is a no-op for other backends.
func (p *Persister) Watch(ctx context.Context, st *store.Store) error {
	fkv, ok := p.kv.(*FileKV)
	if !ok {
		return nil
	}
	return fkv.Watch(ctx, 200*time.Millisecond, func(key string) {
		action := store.Hydrate{}
		switch key {
		case KeyConversations:
			if l := Load[[]model.Conversation](ctx, p.kv, key); l.OK() {
				action.Conversations = l.Value
			}
		case KeyPreferences:
			if l := Load[store.Preferences](ctx, p.kv, key); l.OK() {
				action.Preferences = &l.Value
			}
		case KeySettings:
			if l := Load[store.Settings](ctx, p.kv, key); l.OK() {
				action.Settings = &l.Value
			}
		case KeyUI:
			if l := Load[store.UIFlags](ctx, p.kv, key); l.OK() {
				action.UI = &l.Value
			}
		default:
			return
		}
		st.Dispatch(action)
	})
}

func (p *Persister) save(key string, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := Save(ctx, p.kv, key, v); err != nil {
		log.Printf("STORAGE_SAVE_FAILED | key=%s err=%v", key, err)
	}
}

// sameConversations reports whether two lists share the same backing
// array. The reducer copies on every change, so identity means equality.
func sameConversations(a, b []model.Conversation) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
