// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// FILE BACKEND
// =============================================================================

// FileKV stores each key as <dir>/<key>.json, written atomically.
type FileKV struct {
	dir string

	mu      sync.Mutex
	written map[string][sha256.Size]byte // last content this process wrote per key
}

// NewFileKV creates a file store rooted at dir. The directory is created
// with owner-only permissions if missing.
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: file backend needs a directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &FileKV{dir: dir, written: make(map[string][sha256.Size]byte)}, nil
}

// Dir returns the backing directory.
func (f *FileKV) Dir() string {
	return f.dir
}

func (f *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (f *FileKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := util.AtomicWriteFile(path, value, 0600); err != nil {
		return err
	}
	f.written[key] = sha256.Sum256(value)
	return nil
}

func (f *FileKV) Delete(ctx context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.written, key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileKV) Close() error { return nil }

func (f *FileKV) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// =============================================================================
// WATCHING
// =============================================================================

// Watch calls onChange with the key of every file changed by another
// process. Writes made through this FileKV are ignored. Events for one key
// are debounced. Watch returns once the watcher is running; it stops when
// ctx is cancelled.
func (f *FileKV) Watch(ctx context.Context, debounce time.Duration, onChange func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("storage: create watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("storage: watch %s: %w", f.dir, err)
	}

	go f.processEvents(ctx, watcher, debounce, onChange)
	log.Printf("STORAGE_WATCH | dir=%s", f.dir)
	return nil
}

func (f *FileKV) processEvents(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration, onChange func(string)) {
	defer watcher.Close()

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			key, ok := f.keyFor(event.Name)
			if !ok {
				continue
			}
			if t, ok := timers[key]; ok {
				t.Stop()
			}
			timers[key] = time.AfterFunc(debounce, func() {
				if ctx.Err() != nil || !f.changedExternally(key) {
					return
				}
				log.Printf("STORAGE_EXTERNAL_CHANGE | key=%s", key)
				onChange(key)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("STORAGE_WATCH_ERROR | err=%v", err)
		}
	}
}

// keyFor maps a watched file path back to its key.
func (f *FileKV) keyFor(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
		return "", false
	}
	return strings.TrimSuffix(name, ".json"), true
}

// changedExternally reports whether the file content differs from what
// this process last wrote.
func (f *FileKV) changedExternally(key string) bool {
	path, err := f.path(key)
	if err != nil {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.written[key]
	return !ok || last != sha256.Sum256(data)
}
