// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export converts conversations to and from portable files.
//
// The JSON array format is the same shape as the persisted conversation
// list, so an exported file can be imported back through ImportJSON.
//
// # Key Types
//
//   - Exporter: renders one conversation (JSONExporter, MarkdownExporter)
//   - Options: output directory and header settings
//
// # Usage
//
//	path, err := export.WriteAll(st.State().Conversations, ".")
//
//	convs, err := export.ImportJSON(data)
//	if err == nil {
//	    st.Dispatch(store.ImportConversations{Conversations: convs})
//	}
package export
