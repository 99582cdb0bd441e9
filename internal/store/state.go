// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"strings"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// THEME
// =============================================================================

// Theme is the display theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// =============================================================================
// SUB-RECORDS
// =============================================================================

// Loading holds one busy flag per concern.
type Loading struct {
	Global  bool `json:"global"`
	Chat    bool `json:"chat"`
	Message bool `json:"message"`
	API     bool `json:"api"`
}

// Preferences are user-facing display and input preferences.
type Preferences struct {
	Theme          Theme  `json:"theme"`
	Language       string `json:"language"`
	FontSize       string `json:"fontSize"`
	SendOnEnter    bool   `json:"sendOnEnter"`
	ShowTimestamps bool   `json:"showTimestamps"`
	AutoSave       bool   `json:"autoSave"`
}

// Settings are the completion parameters sent with every request.
type Settings struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	Stream      bool    `json:"stream"`
}

// Stats are aggregate usage counters.
type Stats struct {
	TotalConversations int `json:"totalConversations"`
	TotalMessages      int `json:"totalMessages"`
	TotalTokens        int `json:"totalTokens"`
}

// UIFlags are ephemeral interface flags. Modal flags are never persisted.
type UIFlags struct {
	SidebarOpen           bool   `json:"sidebarOpen"`
	SearchQuery           string `json:"searchQuery"`
	EditingConversationID string `json:"editingConversationId,omitempty"`
	SettingsModalOpen     bool   `json:"-"`
	ExportModalOpen       bool   `json:"-"`
}

// Persistable returns a copy with the modal flags closed.
func (u UIFlags) Persistable() UIFlags {
	u.SettingsModalOpen = false
	u.ExportModalOpen = false
	return u
}

// =============================================================================
// STATE
// =============================================================================

// State is the full conversation store state. Values obtained from a
// Store must be treated as read-only: the reducer never mutates a slice
// it has handed out, and callers must not either.
type State struct {
	Conversations []model.Conversation
	CurrentID     string
	Loading       Loading
	Error         *apperr.Record
	Theme         Theme
	Preferences   Preferences
	Settings      Settings
	Stats         Stats
	UI            UIFlags
}

// DefaultPreferences returns the preferences of a fresh install.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:          ThemeLight,
		Language:       "en",
		FontSize:       "medium",
		SendOnEnter:    true,
		ShowTimestamps: false,
		AutoSave:       true,
	}
}

// DefaultSettings returns the completion settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Model:       model.DefaultClientModel,
		Temperature: 0.7,
		MaxTokens:   1000,
		Stream:      true,
	}
}

// DefaultState returns the empty state a store starts from before hydration.
func DefaultState() State {
	return State{
		Conversations: []model.Conversation{},
		Theme:         ThemeLight,
		Preferences:   DefaultPreferences(),
		Settings:      DefaultSettings(),
		UI:            UIFlags{SidebarOpen: true},
	}
}

// Current returns the current conversation, if one is selected.
func (s State) Current() (model.Conversation, bool) {
	if s.CurrentID == "" {
		return model.Conversation{}, false
	}
	return s.Conversation(s.CurrentID)
}

// Conversation looks up a conversation by ID.
func (s State) Conversation(id string) (model.Conversation, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Conversations[i], true
	}
	return model.Conversation{}, false
}

// Filtered returns the conversations whose title contains the current
// search query, case-insensitively. An empty query returns all of them.
func (s State) Filtered() []model.Conversation {
	query := strings.ToLower(strings.TrimSpace(s.UI.SearchQuery))
	if query == "" {
		return s.Conversations
	}
	out := make([]model.Conversation, 0, len(s.Conversations))
	for _, c := range s.Conversations {
		if strings.Contains(strings.ToLower(c.Title), query) {
			out = append(out, c)
		}
	}
	return out
}

func (s State) indexOf(id string) int {
	for i := range s.Conversations {
		if s.Conversations[i].ID == id {
			return i
		}
	}
	return -1
}
