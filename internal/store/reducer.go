// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"time"

	"github.com/jeranaias/gemchat/internal/model"
)

// Reduce returns the state that results from applying a to s. It has no
// side effects and never mutates s: any slice it changes is copied first.
// Actions naming unknown IDs leave the state unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case AddConversation:
		return addConversation(s, a)
	case SetCurrent:
		if a.ConversationID == "" || s.indexOf(a.ConversationID) >= 0 {
			s.CurrentID = a.ConversationID
		}
		return s
	case DeleteConversation:
		return deleteConversation(s, a)
	case RenameConversation:
		return updateConversation(s, a.ConversationID, func(c *model.Conversation) bool {
			c.Title = a.Title
			return true
		})
	case ClearAll:
		s.Conversations = []model.Conversation{}
		s.CurrentID = ""
		s.Stats.TotalConversations = 0
		s.Stats.TotalMessages = 0
		return s
	case Hydrate:
		return hydrate(s, a)
	case ImportConversations:
		return importConversations(s, a)
	case AddMessage:
		return addMessage(s, a)
	case UpdateMessage:
		return updateMessage(s, a)
	case DeleteMessage:
		return deleteMessage(s, a)
	case SetError:
		rec := a.Error
		s.Error = &rec
		return s
	case ClearError:
		if a.Timestamp.IsZero() || (s.Error != nil && s.Error.Timestamp.Equal(a.Timestamp)) {
			s.Error = nil
		}
		return s
	case ToggleTheme:
		s.Theme = s.Theme.Toggle()
		s.Preferences.Theme = s.Theme
		return s
	case SetTheme:
		if a.Theme.Valid() {
			s.Theme = a.Theme
			s.Preferences.Theme = a.Theme
		}
		return s
	case SetLoading:
		s.Loading = mergeLoading(s.Loading, a.Patch)
		return s
	case UpdatePreferences:
		s.Preferences = mergePreferences(s.Preferences, a.Patch)
		if s.Preferences.Theme.Valid() {
			s.Theme = s.Preferences.Theme
		}
		return s
	case UpdateSettings:
		s.Settings = mergeSettings(s.Settings, a.Patch)
		return s
	case UpdateStats:
		s.Stats = mergeStats(s.Stats, a.Patch)
		return s
	case RecordUsage:
		if a.Tokens > 0 {
			s.Stats.TotalTokens += a.Tokens
		}
		return s
	case SetUIFlags:
		s.UI = mergeUI(s.UI, a.Patch)
		return s
	default:
		return s
	}
}

// =============================================================================
// CONVERSATION TRANSITIONS
// =============================================================================

func addConversation(s State, a AddConversation) State {
	if a.Conversation.ID == "" || s.indexOf(a.Conversation.ID) >= 0 {
		return s
	}
	conv := a.Conversation.Clone()
	list := make([]model.Conversation, 0, len(s.Conversations)+1)
	list = append(list, conv)
	list = append(list, s.Conversations...)
	s.Conversations = list
	s.CurrentID = conv.ID
	s.Stats.TotalConversations++
	s.Stats.TotalMessages += len(conv.Messages)
	return s
}

func deleteConversation(s State, a DeleteConversation) State {
	i := s.indexOf(a.ConversationID)
	if i < 0 {
		return s
	}
	removed := s.Conversations[i]
	list := make([]model.Conversation, 0, len(s.Conversations)-1)
	list = append(list, s.Conversations[:i]...)
	list = append(list, s.Conversations[i+1:]...)
	s.Conversations = list
	if s.CurrentID == a.ConversationID {
		s.CurrentID = ""
	}
	s.Stats.TotalConversations = floor(s.Stats.TotalConversations - 1)
	s.Stats.TotalMessages = floor(s.Stats.TotalMessages - len(removed.Messages))
	return s
}

func hydrate(s State, a Hydrate) State {
	if a.Conversations != nil {
		list := make([]model.Conversation, len(a.Conversations))
		for i, c := range a.Conversations {
			list[i] = c.Clone()
		}
		s.Conversations = list
		if s.indexOf(s.CurrentID) < 0 {
			s.CurrentID = ""
		}
		s.Stats.TotalConversations, s.Stats.TotalMessages = countAll(list)
	}
	if a.Preferences != nil {
		s.Preferences = *a.Preferences
		if s.Preferences.Theme.Valid() {
			s.Theme = s.Preferences.Theme
		}
	}
	if a.Settings != nil {
		s.Settings = *a.Settings
	}
	if a.UI != nil {
		s.UI = a.UI.Persistable()
	}
	return s
}

func importConversations(s State, a ImportConversations) State {
	seen := make(map[string]bool, len(s.Conversations))
	for _, c := range s.Conversations {
		seen[c.ID] = true
	}
	var added []model.Conversation
	for _, c := range a.Conversations {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		added = append(added, c.Clone())
	}
	if len(added) == 0 {
		return s
	}
	list := make([]model.Conversation, 0, len(s.Conversations)+len(added))
	list = append(list, s.Conversations...)
	list = append(list, added...)
	s.Conversations = list
	convs, msgs := countAll(added)
	s.Stats.TotalConversations += convs
	s.Stats.TotalMessages += msgs
	return s
}

// =============================================================================
// MESSAGE TRANSITIONS
// =============================================================================

func addMessage(s State, a AddMessage) State {
	added := false
	s = updateConversation(s, a.ConversationID, func(c *model.Conversation) bool {
		msgs := make([]model.Message, 0, len(c.Messages)+1)
		msgs = append(msgs, c.Messages...)
		msgs = append(msgs, a.Message)
		c.Messages = msgs
		c.UpdatedAt = time.Now()
		added = true
		return true
	})
	if added {
		s.Stats.TotalMessages++
	}
	return s
}

func updateMessage(s State, a UpdateMessage) State {
	return updateConversation(s, a.ConversationID, func(c *model.Conversation) bool {
		i := c.MessageIndex(a.MessageID)
		if i < 0 {
			return false
		}
		msgs := make([]model.Message, len(c.Messages))
		copy(msgs, c.Messages)
		msgs[i].Content = a.Content
		if a.IsStreaming != nil && msgs[i].IsStreaming {
			msgs[i].IsStreaming = *a.IsStreaming
		}
		c.Messages = msgs
		return true
	})
}

func deleteMessage(s State, a DeleteMessage) State {
	removed := false
	s = updateConversation(s, a.ConversationID, func(c *model.Conversation) bool {
		i := c.MessageIndex(a.MessageID)
		if i < 0 {
			return false
		}
		msgs := make([]model.Message, 0, len(c.Messages)-1)
		msgs = append(msgs, c.Messages[:i]...)
		msgs = append(msgs, c.Messages[i+1:]...)
		c.Messages = msgs
		removed = true
		return true
	})
	if removed {
		s.Stats.TotalMessages = floor(s.Stats.TotalMessages - 1)
	}
	return s
}

// =============================================================================
// HELPERS
// =============================================================================

// updateConversation applies fn to a copy of the conversation with the
// given ID and swaps the copy into a new list when fn reports a change.
func updateConversation(s State, id string, fn func(c *model.Conversation) bool) State {
	i := s.indexOf(id)
	if i < 0 {
		return s
	}
	conv := s.Conversations[i]
	if !fn(&conv) {
		return s
	}
	list := make([]model.Conversation, len(s.Conversations))
	copy(list, s.Conversations)
	list[i] = conv
	s.Conversations = list
	return s
}

func countAll(convs []model.Conversation) (conversations, messages int) {
	for _, c := range convs {
		messages += len(c.Messages)
	}
	return len(convs), messages
}

func floor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func mergeLoading(l Loading, p LoadingPatch) Loading {
	if p.Global != nil {
		l.Global = *p.Global
	}
	if p.Chat != nil {
		l.Chat = *p.Chat
	}
	if p.Message != nil {
		l.Message = *p.Message
	}
	if p.API != nil {
		l.API = *p.API
	}
	return l
}

func mergePreferences(pr Preferences, p PreferencesPatch) Preferences {
	if p.Theme != nil && p.Theme.Valid() {
		pr.Theme = *p.Theme
	}
	if p.Language != nil {
		pr.Language = *p.Language
	}
	if p.FontSize != nil {
		pr.FontSize = *p.FontSize
	}
	if p.SendOnEnter != nil {
		pr.SendOnEnter = *p.SendOnEnter
	}
	if p.ShowTimestamps != nil {
		pr.ShowTimestamps = *p.ShowTimestamps
	}
	if p.AutoSave != nil {
		pr.AutoSave = *p.AutoSave
	}
	return pr
}

func mergeSettings(st Settings, p SettingsPatch) Settings {
	if p.Model != nil {
		st.Model = *p.Model
	}
	if p.Temperature != nil {
		st.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		st.MaxTokens = *p.MaxTokens
	}
	if p.Stream != nil {
		st.Stream = *p.Stream
	}
	return st
}

func mergeStats(st Stats, p StatsPatch) Stats {
	if p.TotalConversations != nil {
		st.TotalConversations = floor(*p.TotalConversations)
	}
	if p.TotalMessages != nil {
		st.TotalMessages = floor(*p.TotalMessages)
	}
	if p.TotalTokens != nil {
		st.TotalTokens = floor(*p.TotalTokens)
	}
	return st
}

func mergeUI(u UIFlags, p UIPatch) UIFlags {
	if p.SidebarOpen != nil {
		u.SidebarOpen = *p.SidebarOpen
	}
	if p.SearchQuery != nil {
		u.SearchQuery = *p.SearchQuery
	}
	if p.EditingConversationID != nil {
		u.EditingConversationID = *p.EditingConversationID
	}
	if p.SettingsModalOpen != nil {
		u.SettingsModalOpen = *p.SettingsModalOpen
	}
	if p.ExportModalOpen != nil {
		u.ExportModalOpen = *p.ExportModalOpen
	}
	return u
}
