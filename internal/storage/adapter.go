// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/gemchat/internal/apperr"
)

// =============================================================================
// LOAD RESULT
// =============================================================================

// Status describes the outcome of a load.
type Status int

const (
	// StatusFound means the value was present and decoded.
	StatusFound Status = iota
	// StatusMissing means the key has no value.
	StatusMissing
	// StatusCorrupt means the stored bytes did not decode.
	StatusCorrupt
	// StatusUnavailable means the backend could not be read.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusMissing:
		return "missing"
	case StatusCorrupt:
		return "corrupt"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Loaded is the result of Load. Value is only meaningful when Status is
// StatusFound. Err is set for StatusCorrupt and StatusUnavailable.
type Loaded[T any] struct {
	Value  T
	Status Status
	Err    error
}

// OK reports whether a value was found.
func (l Loaded[T]) OK() bool {
	return l.Status == StatusFound
}

// Or returns the loaded value, or fallback when nothing usable was loaded.
func (l Loaded[T]) Or(fallback T) T {
	if l.OK() {
		return l.Value
	}
	return fallback
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Load reads key and decodes its JSON value. Load never fails outright:
// missing, corrupt, and unreadable values are reported in the result.
func Load[T any](ctx context.Context, kv KV, key string) Loaded[T] {
	var out Loaded[T]

	data, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		out.Status = StatusMissing
		return out
	}
	if err != nil {
		out.Status = StatusUnavailable
		out.Err = apperr.Storage("failed to read "+key, err)
		return out
	}

	if err := json.Unmarshal(data, &out.Value); err != nil {
		var zero T
		out.Value = zero
		out.Status = StatusCorrupt
		out.Err = apperr.Storage("stored value for "+key+" is corrupt", err)
		return out
	}
	out.Status = StatusFound
	return out
}

// Save encodes v as JSON and writes it under key. The returned error is a
// storage-kind *apperr.Error; callers that treat durability as best-effort
// may ignore it.
func Save(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperr.Storage("failed to encode "+key, err)
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return apperr.Storage("failed to write "+key, err)
	}
	return nil
}

// Remove deletes key. Like Save, its error is a storage-kind *apperr.Error.
func Remove(ctx context.Context, kv KV, key string) error {
	if err := kv.Delete(ctx, key); err != nil {
		return apperr.Storage("failed to remove "+key, err)
	}
	return nil
}
