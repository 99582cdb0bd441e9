// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/gateway"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/store"
	"github.com/jeranaias/gemchat/internal/transport"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

// ApologyMessage replaces the assistant reply when a send fails.
const ApologyMessage = "Sorry, I encountered an error while processing your request. Please try again."

// ErrorContext labels errors reported by Send.
const ErrorContext = "send message"

var (
	// ErrEmptyMessage is returned for a blank message. Nothing is dispatched.
	ErrEmptyMessage = apperr.Validation("message cannot be empty")

	// ErrSendInFlight is returned when a reply is still being produced for
	// the target conversation. Nothing is dispatched.
	ErrSendInFlight = apperr.Validation("a reply is already in progress for this conversation")
)

// Completer produces assistant replies. *transport.Client implements it.
type Completer interface {
	Stream(ctx context.Context, req gateway.Request) (*transport.Stream, error)
	Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error)
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator coordinates the store, a Completer, and an ErrorReporter.
type Orchestrator struct {
	store    *store.Store
	client   Completer
	reporter *store.ErrorReporter

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an orchestrator.
func New(s *store.Store, client Completer, reporter *store.ErrorReporter) *Orchestrator {
	return &Orchestrator{
		store:    s,
		client:   client,
		reporter: reporter,
		inFlight: make(map[string]struct{}),
	}
}

// NewConversation adds an empty conversation, makes it current, and
// returns its ID.
func (o *Orchestrator) NewConversation(title string) string {
	conv := model.NewConversation(title)
	o.store.Dispatch(store.AddConversation{Conversation: conv})
	return conv.ID
}

// Retry clears the current error and re-runs the failed operation, if it
// was retryable.
func (o *Orchestrator) Retry() bool {
	return o.reporter.Retry()
}

// Send appends text as a user message to the conversation and fills in an
// assistant reply. An empty conversationID targets the current
// conversation, creating one when there is none.
//
// Failures after the assistant placeholder exists are written into the
// store (apology text plus error record) and also returned.
func (o *Orchestrator) Send(ctx context.Context, conversationID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	convID, err := o.resolve(conversationID)
	if err != nil {
		return err
	}
	if !o.acquire(convID) {
		log.Printf("ORCHESTRATOR_SEND_REJECTED | conversation=%s reason=in_flight", convID)
		return ErrSendInFlight
	}
	defer o.release(convID)

	// A new send supersedes any pending retry.
	o.reporter.Dismiss()

	conv, _ := o.store.State().Conversation(convID)
	first := conv.IsEmpty()

	o.store.Dispatch(store.AddMessage{ConversationID: convID, Message: model.NewUserMessage(text)})
	if first {
		o.store.Dispatch(store.RenameConversation{ConversationID: convID, Title: model.DeriveTitle(text)})
	}

	placeholder := model.NewAssistantPlaceholder()
	o.store.Dispatch(store.AddMessage{ConversationID: convID, Message: placeholder})

	req := o.buildRequest(convID, placeholder.ID)
	log.Printf("ORCHESTRATOR_SEND | conversation=%s history=%d stream=%v", convID, len(req.Messages), req.Stream)

	if req.Stream {
		err = o.stream(ctx, convID, placeholder.ID, req)
	} else {
		err = o.complete(ctx, convID, placeholder.ID, req)
	}
	if err != nil {
		log.Printf("ORCHESTRATOR_FAILED | conversation=%s err=%v", convID, err)
		o.store.Dispatch(store.UpdateMessage{
			ConversationID: convID,
			MessageID:      placeholder.ID,
			Content:        ApologyMessage,
			IsStreaming:    store.Bool(false),
		})
		retryCtx := context.WithoutCancel(ctx)
		o.reporter.Report(err, ErrorContext, func() {
			_ = o.Send(retryCtx, convID, text)
		})
		return err
	}
	return nil
}

// resolve returns the ID of the conversation to send to.
func (o *Orchestrator) resolve(conversationID string) (string, error) {
	st := o.store.State()
	if conversationID != "" {
		if _, ok := st.Conversation(conversationID); !ok {
			return "", apperr.Validation("conversation %s not found", conversationID)
		}
		return conversationID, nil
	}
	if cur, ok := st.Current(); ok {
		return cur.ID, nil
	}
	return o.NewConversation(""), nil
}

// buildRequest maps the stored history, which already ends with the new
// user message, to a completion request. The placeholder is left out.
func (o *Orchestrator) buildRequest(convID, placeholderID string) gateway.Request {
	st := o.store.State()
	conv, _ := st.Conversation(convID)

	msgs := make([]gateway.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.ID == placeholderID {
			continue
		}
		msgs = append(msgs, gateway.Message{Role: m.Role, Content: m.Content})
	}

	temp := st.Settings.Temperature
	maxTokens := st.Settings.MaxTokens
	return gateway.Request{
		Messages:    msgs,
		Model:       st.Settings.Model,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stream:      st.Settings.Stream,
	}
}

func (o *Orchestrator) stream(ctx context.Context, convID, msgID string, req gateway.Request) error {
	s, err := o.client.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer s.Close()

	var buf strings.Builder
	fragments := 0
	for {
		frag, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fragments++
		buf.WriteString(frag)
		o.store.Dispatch(store.UpdateMessage{
			ConversationID: convID,
			MessageID:      msgID,
			Content:        buf.String(),
			IsStreaming:    store.Bool(true),
		})
	}

	o.store.Dispatch(store.UpdateMessage{
		ConversationID: convID,
		MessageID:      msgID,
		Content:        buf.String(),
		IsStreaming:    store.Bool(false),
	})
	log.Printf("ORCHESTRATOR_DONE | conversation=%s fragments=%d chars=%d", convID, fragments, buf.Len())
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, convID, msgID string, req gateway.Request) error {
	c, err := o.client.Complete(ctx, req)
	if err != nil {
		return err
	}

	o.store.Dispatch(store.UpdateMessage{
		ConversationID: convID,
		MessageID:      msgID,
		Content:        c.Text(),
		IsStreaming:    store.Bool(false),
	})
	if c.Usage.TotalTokens > 0 {
		o.store.Dispatch(store.RecordUsage{Tokens: c.Usage.TotalTokens})
	}
	log.Printf("ORCHESTRATOR_DONE | conversation=%s chars=%d tokens=%d", convID, len(c.Text()), c.Usage.TotalTokens)
	return nil
}

// =============================================================================
// IN-FLIGHT GUARD
// =============================================================================

func (o *Orchestrator) acquire(convID string) bool {
	o.mu.Lock()
	if _, busy := o.inFlight[convID]; busy {
		o.mu.Unlock()
		return false
	}
	o.inFlight[convID] = struct{}{}
	first := len(o.inFlight) == 1
	o.mu.Unlock()

	if first {
		o.store.Dispatch(store.SetLoading{Patch: store.LoadingPatch{Message: store.Bool(true)}})
	}
	return true
}

func (o *Orchestrator) release(convID string) {
	o.mu.Lock()
	delete(o.inFlight, convID)
	idle := len(o.inFlight) == 0
	o.mu.Unlock()

	if idle {
		o.store.Dispatch(store.SetLoading{Patch: store.LoadingPatch{Message: store.Bool(false)}})
	}
}

// InFlight reports whether a reply is being produced for the conversation.
func (o *Orchestrator) InFlight(convID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inFlight[convID]
	return busy
}
