// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/store"
	"github.com/stretchr/testify/require"
)

// brokenKV fails every operation.
type brokenKV struct{}

var errBroken = errors.New("quota exceeded")

func (brokenKV) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (brokenKV) Set(context.Context, string, []byte) error   { return errBroken }
func (brokenKV) Delete(context.Context, string) error        { return errBroken }
func (brokenKV) Close() error                                { return nil }

// =============================================================================
// LOAD / SAVE TESTS
// =============================================================================

func TestLoad_Statuses(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "good", []byte(`{"model":"gemini-pro","temperature":0.5}`)))
	require.NoError(t, kv.Set(ctx, "bad", []byte(`{not json`)))

	good := Load[store.Settings](ctx, kv, "good")
	require.Equal(t, StatusFound, good.Status)
	require.Equal(t, 0.5, good.Value.Temperature)

	bad := Load[store.Settings](ctx, kv, "bad")
	require.Equal(t, StatusCorrupt, bad.Status)
	require.Error(t, bad.Err)
	require.Equal(t, store.Settings{}, bad.Value)

	missing := Load[store.Settings](ctx, kv, "missing")
	require.Equal(t, StatusMissing, missing.Status)
	require.NoError(t, missing.Err)
	require.Equal(t, store.DefaultSettings(), missing.Or(store.DefaultSettings()))

	down := Load[store.Settings](ctx, brokenKV{}, "good")
	require.Equal(t, StatusUnavailable, down.Status)
	require.Equal(t, apperr.KindStorage, apperr.Classify(down.Err).Kind)
}

func TestSave_ReturnsStorageError(t *testing.T) {
	err := Save(context.Background(), brokenKV{}, KeySettings, store.DefaultSettings())
	require.Error(t, err)
	require.ErrorIs(t, err, errBroken)
	require.Equal(t, apperr.KindStorage, apperr.Classify(err).Kind)

	require.Error(t, Remove(context.Background(), brokenKV{}, KeySettings))
}

func TestSaveLoad_RoundTripsDates(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	conv := model.NewConversation("dates")
	conv.Messages = append(conv.Messages, model.NewUserMessage("hi"))
	require.NoError(t, Save(ctx, kv, KeyConversations, []model.Conversation{conv}))

	raw, _ := kv.Get(ctx, KeyConversations)
	var generic []map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	_, isString := generic[0]["createdAt"].(string)
	require.True(t, isString, "dates are stored as ISO-8601 strings")

	loaded := Load[[]model.Conversation](ctx, kv, KeyConversations)
	require.True(t, loaded.OK())
	require.True(t, conv.CreatedAt.Equal(loaded.Value[0].CreatedAt))
	require.True(t, conv.Messages[0].Timestamp.Equal(loaded.Value[0].Messages[0].Timestamp))
}

// =============================================================================
// PERSISTER TESTS
// =============================================================================

func TestPersister_WriteThroughAndHydrate(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	st := store.New(store.DefaultState())
	p := NewPersister(kv)
	detach := p.Attach(st)

	conv := model.NewConversation("Persisted")
	st.Dispatch(store.AddConversation{Conversation: conv})
	st.Dispatch(store.AddMessage{ConversationID: conv.ID, Message: model.NewUserMessage("hello")})
	st.Dispatch(store.UpdateSettings{Patch: store.SettingsPatch{Temperature: store.Float(1.1)}})
	st.Dispatch(store.SetTheme{Theme: store.ThemeDark})
	st.Dispatch(store.SetUIFlags{Patch: store.UIPatch{SearchQuery: store.String("go"), SettingsModalOpen: store.Bool(true)}})
	detach()

	fresh := store.New(store.DefaultState())
	res := NewPersister(kv).Hydrate(ctx, fresh)
	require.Equal(t, StatusFound, res.Conversations)
	require.Equal(t, StatusFound, res.Settings)

	s := fresh.State()
	require.Len(t, s.Conversations, 1)
	require.Equal(t, "Persisted", s.Conversations[0].Title)
	require.Len(t, s.Conversations[0].Messages, 1)
	require.Equal(t, 1, s.Stats.TotalConversations)
	require.Equal(t, 1, s.Stats.TotalMessages)
	require.Equal(t, 1.1, s.Settings.Temperature)
	require.Equal(t, store.ThemeDark, s.Theme)
	require.Equal(t, "go", s.UI.SearchQuery)
	require.False(t, s.UI.SettingsModalOpen, "modal flags are never restored")
}

func TestPersister_SkipsUnchangedKeys(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	st := store.New(store.DefaultState())
	defer NewPersister(kv).Attach(st)()

	st.Dispatch(store.SetLoading{Patch: store.LoadingPatch{Global: store.Bool(true)}})
	st.Dispatch(store.SetUIFlags{Patch: store.UIPatch{ExportModalOpen: store.Bool(true)}})

	for _, key := range Keys {
		_, err := kv.Get(ctx, key)
		require.ErrorIs(t, err, ErrNotFound, "key %s should not be written", key)
	}
}

func TestPersister_HydrateToleratesCorruption(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, KeyConversations, []byte(`[{"id":`)))
	require.NoError(t, kv.Set(ctx, KeySettings, []byte(`{"model":"gemini-1.5-pro","temperature":0.2,"maxTokens":50,"stream":false}`)))

	st := store.New(store.DefaultState())
	res := NewPersister(kv).Hydrate(ctx, st)

	require.Equal(t, StatusCorrupt, res.Conversations)
	require.Equal(t, StatusMissing, res.Preferences)
	require.Empty(t, st.State().Conversations)
	require.Equal(t, "gemini-1.5-pro", st.State().Settings.Model)
}

func TestPersister_SaveFailureIsSilent(t *testing.T) {
	st := store.New(store.DefaultState())
	defer NewPersister(brokenKV{}).WithTimeout(time.Second).Attach(st)()

	require.NotPanics(t, func() {
		st.Dispatch(store.AddConversation{Conversation: model.NewConversation("x")})
	})
	require.Len(t, st.State().Conversations, 1)
	require.Nil(t, st.State().Error)
}

func TestPersister_WatchReloadsExternalChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	st := store.New(store.DefaultState())
	p := NewPersister(kv)
	require.NoError(t, p.Watch(ctx, st))

	other, err := NewFileKV(dir)
	require.NoError(t, err)
	conv := model.NewConversation("From elsewhere")
	require.NoError(t, Save(ctx, other, KeyConversations, []model.Conversation{conv}))

	require.Eventually(t, func() bool {
		return len(st.State().Conversations) == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, "From elsewhere", st.State().Conversations[0].Title)
}
