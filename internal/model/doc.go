// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// Conversations and messages are plain values. Mutation happens through the
// store package's reducer, which copies before it writes, so a Conversation
// handed out by a state snapshot is never changed underneath its holder.
//
// # Key Types
//
//   - Conversation: ordered messages with a title and timestamps
//   - Message: one turn with role, content, timestamp, and streaming flag
//   - ModelInfo: a completion model advertised by the chat endpoint
//   - Role: user, assistant, or the transient system role
//
// # Usage
//
// Start a conversation and title it from the first message:
//
//	conv := model.NewConversation("")
//	msg := model.NewUserMessage("How do goroutines work?")
//	conv.Title = model.DeriveTitle(msg.Content)
package model
