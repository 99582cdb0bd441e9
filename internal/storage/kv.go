// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// =============================================================================
// KEYS
// =============================================================================

// Persisted keys. Each holds one JSON document.
const (
	KeyConversations = "chatgpt-clone-conversations"
	KeyPreferences   = "chatgpt-clone-preferences"
	KeySettings      = "chatgpt-clone-settings"
	KeyUI            = "chatgpt-clone-ui"
)

// Keys lists every persisted key.
var Keys = []string{KeyConversations, KeyPreferences, KeySettings, KeyUI}

// =============================================================================
// KV INTERFACE
// =============================================================================

// ErrNotFound is returned by KV.Get when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// KV is a flat key-value store of byte values.
type KV interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Backends lists every backend name accepted by Open.
var Backends = []string{BackendFile, BackendSQLite, BackendBolt, BackendRedis, BackendMemory}

// Options selects and configures a backend.
type Options struct {
	Backend       string
	Dir           string // file backend directory
	SQLitePath    string
	BoltPath      string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileKV(opts.Dir)
	case BackendSQLite:
		return NewSQLiteKV(ctx, opts.SQLitePath)
	case BackendBolt:
		return NewBoltKV(opts.BoltPath)
	case BackendRedis:
		return NewRedisKV(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisPrefix)
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryKV keeps values in a map. Used by tests and ephemeral sessions.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Close() error { return nil }
