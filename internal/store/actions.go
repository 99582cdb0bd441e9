// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"time"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/model"
)

// Action is a state transition request. The set of actions is closed: only
// types in this package implement it, and Reduce switches over all of them.
type Action interface {
	// Kind returns the action's name, used in logs.
	Kind() string
	action()
}

// =============================================================================
// CONVERSATION ACTIONS
// =============================================================================

// AddConversation prepends a conversation and makes it current.
type AddConversation struct {
	Conversation model.Conversation
}

// SetCurrent selects a conversation. An empty ID clears the selection.
type SetCurrent struct {
	ConversationID string
}

// DeleteConversation removes a conversation and its message counts.
type DeleteConversation struct {
	ConversationID string
}

// RenameConversation sets a conversation's title.
type RenameConversation struct {
	ConversationID string
	Title          string
}

// ClearAll removes every conversation.
type ClearAll struct{}

// Hydrate replaces the durable slice with values restored from storage.
// Nil fields keep their current value. Counters are recomputed.
type Hydrate struct {
	Conversations []model.Conversation
	Preferences   *Preferences
	Settings      *Settings
	UI            *UIFlags
}

// ImportConversations appends conversations whose IDs are not yet present.
type ImportConversations struct {
	Conversations []model.Conversation
}

// =============================================================================
// MESSAGE ACTIONS
// =============================================================================

// AddMessage appends a message to a conversation.
type AddMessage struct {
	ConversationID string
	Message        model.Message
}

// UpdateMessage replaces the content of one message. IsStreaming, when
// set, may only move the flag from true to false.
type UpdateMessage struct {
	ConversationID string
	MessageID      string
	Content        string
	IsStreaming    *bool
}

// DeleteMessage removes one message.
type DeleteMessage struct {
	ConversationID string
	MessageID      string
}

// =============================================================================
// ERROR ACTIONS
// =============================================================================

// SetError replaces the error slot.
type SetError struct {
	Error apperr.Record
}

// ClearError empties the error slot. A non-zero Timestamp clears only an
// error recorded at exactly that time, so a stale dismissal cannot remove
// a newer error.
type ClearError struct {
	Timestamp time.Time
}

// =============================================================================
// THEME AND PATCH ACTIONS
// =============================================================================

// ToggleTheme flips between light and dark.
type ToggleTheme struct{}

// SetTheme sets the theme.
type SetTheme struct {
	Theme Theme
}

// LoadingPatch sets the non-nil loading flags.
type LoadingPatch struct {
	Global  *bool
	Chat    *bool
	Message *bool
	API     *bool
}

// SetLoading merges a loading patch.
type SetLoading struct {
	Patch LoadingPatch
}

// PreferencesPatch sets the non-nil preference fields.
type PreferencesPatch struct {
	Theme          *Theme
	Language       *string
	FontSize       *string
	SendOnEnter    *bool
	ShowTimestamps *bool
	AutoSave       *bool
}

// UpdatePreferences merges a preferences patch.
type UpdatePreferences struct {
	Patch PreferencesPatch
}

// SettingsPatch sets the non-nil settings fields.
type SettingsPatch struct {
	Model       *string
	Temperature *float64
	MaxTokens   *int
	Stream      *bool
}

// UpdateSettings merges a settings patch.
type UpdateSettings struct {
	Patch SettingsPatch
}

// StatsPatch sets the non-nil counters.
type StatsPatch struct {
	TotalConversations *int
	TotalMessages      *int
	TotalTokens        *int
}

// UpdateStats merges a stats patch.
type UpdateStats struct {
	Patch StatsPatch
}

// RecordUsage adds completion tokens to the running total.
type RecordUsage struct {
	Tokens int
}

// UIPatch sets the non-nil UI flags.
type UIPatch struct {
	SidebarOpen           *bool
	SearchQuery           *string
	EditingConversationID *string
	SettingsModalOpen     *bool
	ExportModalOpen       *bool
}

// SetUIFlags merges a UI patch.
type SetUIFlags struct {
	Patch UIPatch
}

// =============================================================================
// KINDS
// =============================================================================

func (AddConversation) Kind() string     { return "ADD_CONVERSATION" }
func (SetCurrent) Kind() string          { return "SET_CURRENT" }
func (DeleteConversation) Kind() string  { return "DELETE_CONVERSATION" }
func (RenameConversation) Kind() string  { return "RENAME_CONVERSATION" }
func (ClearAll) Kind() string            { return "CLEAR_ALL" }
func (Hydrate) Kind() string             { return "HYDRATE" }
func (ImportConversations) Kind() string { return "IMPORT_CONVERSATIONS" }
func (AddMessage) Kind() string          { return "ADD_MESSAGE" }
func (UpdateMessage) Kind() string       { return "UPDATE_MESSAGE" }
func (DeleteMessage) Kind() string       { return "DELETE_MESSAGE" }
func (SetError) Kind() string            { return "SET_ERROR" }
func (ClearError) Kind() string          { return "CLEAR_ERROR" }
func (ToggleTheme) Kind() string         { return "TOGGLE_THEME" }
func (SetTheme) Kind() string            { return "SET_THEME" }
func (SetLoading) Kind() string          { return "SET_LOADING" }
func (UpdatePreferences) Kind() string   { return "UPDATE_PREFERENCES" }
func (UpdateSettings) Kind() string      { return "UPDATE_SETTINGS" }
func (UpdateStats) Kind() string         { return "UPDATE_STATS" }
func (RecordUsage) Kind() string         { return "RECORD_USAGE" }
func (SetUIFlags) Kind() string          { return "SET_UI_FLAGS" }

func (AddConversation) action()     {}
func (SetCurrent) action()          {}
func (DeleteConversation) action()  {}
func (RenameConversation) action()  {}
func (ClearAll) action()            {}
func (Hydrate) action()             {}
func (ImportConversations) action() {}
func (AddMessage) action()          {}
func (UpdateMessage) action()       {}
func (DeleteMessage) action()       {}
func (SetError) action()            {}
func (ClearError) action()          {}
func (ToggleTheme) action()         {}
func (SetTheme) action()            {}
func (SetLoading) action()          {}
func (UpdatePreferences) action()   {}
func (UpdateSettings) action()      {}
func (UpdateStats) action()         {}
func (RecordUsage) action()         {}
func (SetUIFlags) action()          {}

// Bool returns a pointer to b, for building patches.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

// Int returns a pointer to i, for building patches.
func Int(i int) *int { return &i }

// Float returns a pointer to f, for building patches.
func Float(f float64) *float64 { return &f }
