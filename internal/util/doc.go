// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across gemchat packages.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadWidth: terminal-width aware layout helpers
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	line := util.PadWidth(util.TruncateWidth(title, 40), 40)
package util
