// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"sync"
)

// Listener observes a completed transition. Listeners run synchronously
// inside Dispatch, in subscription order, and must not call Dispatch.
type Listener func(prev, next State, a Action)

type subscription struct {
	id int
	fn Listener
}

// Store owns a State and applies actions to it one at a time.
//
// Each Dispatch runs to completion, including its listeners, before the
// next one starts, so listeners observe transitions in the exact order
// they were applied.
type Store struct {
	dispatchMu sync.Mutex // serializes reduce + notify

	mu        sync.RWMutex // guards state and subs
	state     State
	subs      []subscription
	nextSubID int
}

// New creates a store holding initial.
func New(initial State) *Store {
	return &Store{state: initial}
}

// State returns the current state snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies a to the state and notifies listeners.
func (s *Store) Dispatch(a Action) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(prev, next, a)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}
