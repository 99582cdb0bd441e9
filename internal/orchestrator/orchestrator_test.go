// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/gateway"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/store"
	"github.com/jeranaias/gemchat/internal/transport"
)

// fakeCompleter replays a canned stream body or completion.
type fakeCompleter struct {
	mu         sync.Mutex
	body       string
	streamErr  error
	completion *gateway.Completion
	requests   []gateway.Request
	started    chan struct{}
	release    chan struct{}
}

func (f *fakeCompleter) Stream(ctx context.Context, req gateway.Request) (*transport.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	body, err := f.body, f.streamErr
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if err != nil {
		return nil, err
	}
	return transport.NewStream(io.NopCloser(strings.NewReader(body))), nil
}

func (f *fakeCompleter) Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.completion, nil
}

func (f *fakeCompleter) lastRequest() gateway.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestOrchestrator(c Completer) (*Orchestrator, *store.Store, *store.ErrorReporter) {
	st := store.New(store.DefaultState())
	rep := store.NewErrorReporter(st)
	return New(st, c, rep), st, rep
}

const helloBody = "data: {\"content\":\"Hello\"}\n\ndata: {\"content\":\" world\"}\n\ndata: [DONE]\n\n"

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_AppendsUserAndAssistant(t *testing.T) {
	o, st, rep := newTestOrchestrator(&fakeCompleter{body: helloBody})
	defer rep.Close()

	require.NoError(t, o.Send(context.Background(), "", "How do goroutines work in practice today?"))

	state := st.State()
	require.Len(t, state.Conversations, 1)
	conv, ok := state.Current()
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)

	require.Equal(t, model.RoleUser, conv.Messages[0].Role)
	require.Equal(t, "How do goroutines work in practice today?", conv.Messages[0].Content)
	require.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	require.Equal(t, "Hello world", conv.Messages[1].Content)
	require.False(t, conv.Messages[1].IsStreaming)

	require.Equal(t, "How do goroutines work in practice", conv.Title)
	require.False(t, state.Loading.Message)
	require.Nil(t, state.Error)
}

func TestSend_TitleSetOnlyOnce(t *testing.T) {
	fc := &fakeCompleter{body: helloBody}
	o, st, rep := newTestOrchestrator(fc)
	defer rep.Close()

	convID := o.NewConversation("")
	require.NoError(t, o.Send(context.Background(), convID, "first message"))
	require.NoError(t, o.Send(context.Background(), convID, "a completely different second message"))

	conv, _ := st.State().Conversation(convID)
	require.Equal(t, "first message", conv.Title)
	require.Len(t, conv.Messages, 4)
}

func TestSend_HistoryHasNoDuplicateUserMessage(t *testing.T) {
	fc := &fakeCompleter{body: helloBody}
	o, _, rep := newTestOrchestrator(fc)
	defer rep.Close()

	require.NoError(t, o.Send(context.Background(), "", "one"))
	require.NoError(t, o.Send(context.Background(), "", "two"))

	req := fc.lastRequest()
	require.Len(t, req.Messages, 3)
	require.Equal(t, gateway.Message{Role: model.RoleUser, Content: "one"}, req.Messages[0])
	require.Equal(t, gateway.Message{Role: model.RoleAssistant, Content: "Hello world"}, req.Messages[1])
	require.Equal(t, gateway.Message{Role: model.RoleUser, Content: "two"}, req.Messages[2])
}

func TestSend_UsesSettings(t *testing.T) {
	fc := &fakeCompleter{body: helloBody}
	o, st, rep := newTestOrchestrator(fc)
	defer rep.Close()

	st.Dispatch(store.UpdateSettings{Patch: store.SettingsPatch{
		Model:       store.String("gemini-1.5-pro"),
		Temperature: store.Float(1.2),
		MaxTokens:   store.Int(64),
	}})
	require.NoError(t, o.Send(context.Background(), "", "hi"))

	req := fc.lastRequest()
	require.Equal(t, "gemini-1.5-pro", req.Model)
	require.Equal(t, 1.2, *req.Temperature)
	require.Equal(t, 64, *req.MaxTokens)
	require.True(t, req.Stream)
}

func TestSend_EmptyMessageDispatchesNothing(t *testing.T) {
	o, st, rep := newTestOrchestrator(&fakeCompleter{body: helloBody})
	defer rep.Close()

	dispatches := 0
	st.Subscribe(func(prev, next store.State, a store.Action) { dispatches++ })

	err := o.Send(context.Background(), "", "   \n\t")
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Equal(t, 0, dispatches)
	require.Equal(t, apperr.KindValidation, apperr.Classify(err).Kind)
}

func TestSend_UnknownConversation(t *testing.T) {
	o, _, rep := newTestOrchestrator(&fakeCompleter{body: helloBody})
	defer rep.Close()

	err := o.Send(context.Background(), "missing", "hi")
	require.Error(t, err)
	require.Equal(t, apperr.KindValidation, apperr.Classify(err).Kind)
}

func TestSend_FailureWritesApologyAndError(t *testing.T) {
	fc := &fakeCompleter{streamErr: &transport.APIError{Status: http.StatusInternalServerError, Message: "API Error"}}
	o, st, rep := newTestOrchestrator(fc)
	defer rep.Close()

	err := o.Send(context.Background(), "", "hi")
	require.Error(t, err)

	state := st.State()
	conv, _ := state.Current()
	require.Len(t, conv.Messages, 2)
	require.Equal(t, ApologyMessage, conv.Messages[1].Content)
	require.False(t, conv.Messages[1].IsStreaming)

	require.NotNil(t, state.Error)
	require.Equal(t, "API Error", state.Error.Message)
	require.Equal(t, apperr.KindAPI, state.Error.Kind)
	require.Equal(t, ErrorContext, state.Error.Context)
	require.True(t, rep.CanRetry())
}

func TestSend_FailureMidStreamKeepsExplanation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = io.WriteString(w, "data: {\"content\":\"partial\"}\n\n")
	}))
	defer srv.Close()

	o, st, rep := newTestOrchestrator(transport.NewClient(srv.URL))
	defer rep.Close()

	require.Error(t, o.Send(context.Background(), "", "hi"))

	conv, _ := st.State().Current()
	require.Equal(t, ApologyMessage, conv.Messages[1].Content)
	require.False(t, conv.Messages[1].IsStreaming)
	require.NotNil(t, st.State().Error)
}

func TestRetry_ResendsAfterFailure(t *testing.T) {
	fc := &fakeCompleter{streamErr: &transport.APIError{Status: http.StatusServiceUnavailable, Message: "busy"}}
	o, st, rep := newTestOrchestrator(fc)
	defer rep.Close()

	require.Error(t, o.Send(context.Background(), "", "hi"))

	fc.mu.Lock()
	fc.streamErr = nil
	fc.body = helloBody
	fc.mu.Unlock()

	require.True(t, o.Retry())
	state := st.State()
	require.Nil(t, state.Error)

	conv, _ := state.Current()
	require.Len(t, conv.Messages, 4)
	require.Equal(t, "Hello world", conv.Messages[3].Content)
}

func TestSend_SuccessClearsPendingRetry(t *testing.T) {
	fc := &fakeCompleter{streamErr: &transport.APIError{Status: http.StatusServiceUnavailable, Message: "busy"}}
	o, st, rep := newTestOrchestrator(fc)
	defer rep.Close()

	require.Error(t, o.Send(context.Background(), "", "first"))
	require.True(t, rep.CanRetry())

	fc.mu.Lock()
	fc.streamErr = nil
	fc.body = helloBody
	fc.mu.Unlock()

	require.NoError(t, o.Send(context.Background(), "", "second"))
	require.False(t, rep.CanRetry())
	require.Nil(t, st.State().Error)

	require.False(t, o.Retry())
	conv, _ := st.State().Current()
	require.Len(t, conv.Messages, 4)
	require.Equal(t, "second", conv.Messages[2].Content)
}

func TestSend_AuthErrorIsNotRetryable(t *testing.T) {
	fc := &fakeCompleter{streamErr: &transport.APIError{Status: http.StatusUnauthorized, Message: "bad key"}}
	o, st, rep := newTestOrchestrator(fc)
	rep.WithDismissDelay(20 * time.Millisecond)
	defer rep.Close()

	require.Error(t, o.Send(context.Background(), "", "hi"))
	require.False(t, rep.CanRetry())
	require.Equal(t, apperr.KindAuth, st.State().Error.Kind)

	require.Eventually(t, func() bool { return st.State().Error == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestSend_NonStreaming(t *testing.T) {
	fc := &fakeCompleter{completion: &gateway.Completion{
		Choices: []gateway.Choice{{Message: gateway.Message{Role: model.RoleAssistant, Content: "All at once"}}},
		Usage:   gateway.Usage{TotalTokens: 17},
	}}
	o, st, rep := newTestOrchestrator(fc)
	defer rep.Close()

	st.Dispatch(store.UpdateSettings{Patch: store.SettingsPatch{Stream: store.Bool(false)}})
	require.NoError(t, o.Send(context.Background(), "", "hi"))

	state := st.State()
	conv, _ := state.Current()
	require.Equal(t, "All at once", conv.Messages[1].Content)
	require.False(t, conv.Messages[1].IsStreaming)
	require.Equal(t, 17, state.Stats.TotalTokens)
	require.False(t, fc.lastRequest().Stream)
}

// =============================================================================
// IN-FLIGHT GUARD TESTS
// =============================================================================

func TestSend_SecondSendRejectedWhileInFlight(t *testing.T) {
	fc := &fakeCompleter{
		body:    helloBody,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	o, st, rep := newTestOrchestrator(fc)
	defer rep.Close()

	convID := o.NewConversation("")
	done := make(chan error, 1)
	go func() { done <- o.Send(context.Background(), convID, "first") }()

	<-fc.started
	require.True(t, o.InFlight(convID))
	require.True(t, st.State().Loading.Message)

	before, _ := st.State().Conversation(convID)
	err := o.Send(context.Background(), convID, "second")
	require.True(t, errors.Is(err, ErrSendInFlight))
	after, _ := st.State().Conversation(convID)
	require.Equal(t, len(before.Messages), len(after.Messages))

	close(fc.release)
	require.NoError(t, <-done)
	require.False(t, o.InFlight(convID))
	require.False(t, st.State().Loading.Message)
}
