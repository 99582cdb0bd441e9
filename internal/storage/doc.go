// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the durable slice of the conversation store.
//
// Four keys are kept: the conversation list, preferences, settings, and
// non-modal UI flags, each as one JSON document. Values live in a KV
// backend chosen at startup.
//
// # Key Types
//
//   - KV: the backend interface (FileKV, SQLiteKV, BoltKV, RedisKV, MemoryKV)
//   - Loaded: the result of Load, distinguishing found, missing, corrupt,
//     and unavailable values
//   - Persister: hydrates a store on startup and writes through on change
//
// # Usage
//
//	kv, err := storage.Open(ctx, storage.Options{Backend: "file", Dir: dir})
//	if err != nil {
//	    return err
//	}
//	p := storage.NewPersister(kv)
//	p.Hydrate(ctx, st)
//	defer p.Attach(st)()
//
// # Storage Location
//
// The file backend writes to ~/.gemchat/data/ by default.
package storage
