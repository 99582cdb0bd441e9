// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// STORE TESTS
// =============================================================================

func TestStore_DispatchNotifiesInOrder(t *testing.T) {
	st := New(DefaultState())

	var kinds []string
	st.Subscribe(func(prev, next State, a Action) {
		kinds = append(kinds, "first:"+a.Kind())
	})
	st.Subscribe(func(prev, next State, a Action) {
		kinds = append(kinds, "second:"+a.Kind())
	})

	st.Dispatch(ToggleTheme{})
	require.Equal(t, []string{"first:TOGGLE_THEME", "second:TOGGLE_THEME"}, kinds)
	require.Equal(t, ThemeDark, st.State().Theme)
}

func TestStore_ListenerSeesPrevAndNext(t *testing.T) {
	st := New(DefaultState())
	conv := model.NewConversation("a")

	var prevLen, nextLen int
	st.Subscribe(func(prev, next State, a Action) {
		prevLen, nextLen = len(prev.Conversations), len(next.Conversations)
	})
	st.Dispatch(AddConversation{Conversation: conv})

	require.Equal(t, 0, prevLen)
	require.Equal(t, 1, nextLen)
}

func TestStore_Unsubscribe(t *testing.T) {
	st := New(DefaultState())
	calls := 0
	unsubscribe := st.Subscribe(func(prev, next State, a Action) { calls++ })

	st.Dispatch(ToggleTheme{})
	unsubscribe()
	unsubscribe()
	st.Dispatch(ToggleTheme{})

	require.Equal(t, 1, calls)
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	st := New(DefaultState())
	conv := model.NewConversation("a")
	st.Dispatch(AddConversation{Conversation: conv})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Dispatch(AddMessage{ConversationID: conv.ID, Message: model.NewUserMessage("x")})
		}()
	}
	wg.Wait()

	cur, ok := st.State().Current()
	require.True(t, ok)
	require.Len(t, cur.Messages, 50)
	require.Equal(t, 50, st.State().Stats.TotalMessages)
}

// =============================================================================
// ERROR REPORTER TESTS
// =============================================================================

type statusErr struct{ status int }

func (e *statusErr) Error() string   { return "upstream failed" }
func (e *statusErr) StatusCode() int { return e.status }

func TestErrorReporter_RetryableKeepsAction(t *testing.T) {
	st := New(DefaultState())
	r := NewErrorReporter(st).WithDismissDelay(10 * time.Millisecond)
	defer r.Close()

	retried := 0
	rec := r.Report(&statusErr{503}, "send message", func() { retried++ })
	require.True(t, rec.Retryable)
	require.True(t, r.CanRetry())
	require.Equal(t, "upstream failed", st.State().Error.Message)

	time.Sleep(30 * time.Millisecond)
	require.NotNil(t, st.State().Error, "retryable errors do not auto-dismiss")

	require.True(t, r.Retry())
	require.Equal(t, 1, retried)
	require.Nil(t, st.State().Error)
	require.False(t, r.Retry(), "retry runs once")
}

func TestErrorReporter_NonRetryableAutoDismisses(t *testing.T) {
	st := New(DefaultState())
	r := NewErrorReporter(st).WithDismissDelay(20 * time.Millisecond)
	defer r.Close()

	rec := r.Report(apperr.Validation("Message cannot be empty"), "send message", func() {})
	require.False(t, rec.Retryable)
	require.False(t, r.CanRetry())

	require.Eventually(t, func() bool { return st.State().Error == nil }, time.Second, 5*time.Millisecond)
}

func TestErrorReporter_DismissTimerSparesNewerError(t *testing.T) {
	st := New(DefaultState())
	r := NewErrorReporter(st).WithDismissDelay(20 * time.Millisecond)
	defer r.Close()

	first := r.Report(apperr.Auth("Authentication token required"), "load chats", nil)
	// Simulate a newer error written directly to the store.
	st.Dispatch(SetError{Error: apperr.Record{Message: "newer", Timestamp: first.Timestamp.Add(time.Second)}})

	time.Sleep(60 * time.Millisecond)
	require.NotNil(t, st.State().Error)
	require.Equal(t, "newer", st.State().Error.Message)
}

func TestErrorReporter_NilError(t *testing.T) {
	st := New(DefaultState())
	r := NewErrorReporter(st)
	r.Report(nil, "noop", nil)
	require.Nil(t, st.State().Error)
}

func TestErrorReporter_Dismiss(t *testing.T) {
	st := New(DefaultState())
	r := NewErrorReporter(st)
	r.Report(errors.New("boom"), "x", func() {})
	r.Dismiss()
	require.Nil(t, st.State().Error)
	require.False(t, r.CanRetry())
}
