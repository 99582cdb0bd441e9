// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultTitle is the placeholder title of a conversation that has no
	// user message yet.
	DefaultTitle = "New Chat"

	// TitleWords is the number of words of the first user message that
	// make up a derived title.
	TitleWords = 6

	// TitleMaxLen is the maximum derived title length in runes before the
	// "..." suffix.
	TitleMaxLen = 50
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is an ordered collection of messages.
//
// Messages are kept in insertion order and are never reordered.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewConversation creates a new, empty conversation. An empty title falls
// back to DefaultTitle.
func NewConversation(title string) Conversation {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := time.Now()
	return Conversation{
		ID:        generateID(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy whose message slice does not alias c's.
func (c Conversation) Clone() Conversation {
	clone := c
	clone.Messages = make([]Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return clone
}

// MessageIndex returns the index of the message with the given ID, or -1.
func (c Conversation) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// FindMessage returns the message with the given ID.
func (c Conversation) FindMessage(id string) (Message, bool) {
	if i := c.MessageIndex(id); i >= 0 {
		return c.Messages[i], true
	}
	return Message{}, false
}

// LastMessage returns the most recent message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// MessageCount returns the number of messages in the conversation.
func (c Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages.
func (c Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// DisplayTitle returns the title or DefaultTitle when the title is blank.
func (c Conversation) DisplayTitle() string {
	if strings.TrimSpace(c.Title) == "" {
		return DefaultTitle
	}
	return c.Title
}

// Preview returns a short preview of the last message.
func (c Conversation) Preview() string {
	last, ok := c.LastMessage()
	if !ok {
		return "Empty conversation"
	}
	return last.Preview(100)
}

// =============================================================================
// METADATA
// =============================================================================

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Preview      string    `json:"preview"`
}

// GetMeta returns metadata about the conversation.
func (c Conversation) GetMeta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.DisplayTitle(),
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      c.Preview(),
	}
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// DeriveTitle builds a conversation title from the first user message:
// the first six whitespace-separated words joined by single spaces, cut to
// 50 runes with a "..." suffix when longer. Blank input yields "".
func DeriveTitle(content string) string {
	words := strings.Fields(content)
	if len(words) > TitleWords {
		words = words[:TitleWords]
	}
	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > TitleMaxLen {
		return string([]rune(title)[:TitleMaxLen]) + "..."
	}
	return title
}
