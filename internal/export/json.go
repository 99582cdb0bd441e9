// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// JSON ARRAY FORMAT
// =============================================================================

// ExportJSON encodes conversations in the same shape as the persisted
// conversation list: a JSON array with ISO-8601 date strings.
func ExportJSON(convs []model.Conversation) ([]byte, error) {
	if convs == nil {
		convs = []model.Conversation{}
	}
	return json.MarshalIndent(convs, "", "  ")
}

// rawConversation mirrors model.Conversation with every field optional so
// the validator can tell missing fields from zero values.
type rawConversation struct {
	ID        *string          `json:"id"`
	Title     *string          `json:"title"`
	Messages  *[]model.Message `json:"messages"`
	CreatedAt *time.Time       `json:"createdAt"`
	UpdatedAt *time.Time       `json:"updatedAt"`
}

// ImportJSON decodes and validates an exported file. Every entry must have
// a non-empty id and title, a messages array, and both date fields; one
// invalid entry rejects the whole file. Imported messages are never marked
// as streaming.
func ImportJSON(data []byte) ([]model.Conversation, error) {
	var raws []rawConversation
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, apperr.Validation("Invalid file format: %v", err)
	}

	convs := make([]model.Conversation, 0, len(raws))
	for i, r := range raws {
		if err := validate(r); err != nil {
			return nil, apperr.Validation("Invalid conversation at index %d: %v", i, err)
		}
		msgs := make([]model.Message, len(*r.Messages))
		copy(msgs, *r.Messages)
		for j := range msgs {
			msgs[j].IsStreaming = false
		}
		convs = append(convs, model.Conversation{
			ID:        *r.ID,
			Title:     *r.Title,
			Messages:  msgs,
			CreatedAt: *r.CreatedAt,
			UpdatedAt: *r.UpdatedAt,
		})
	}
	return convs, nil
}

func validate(r rawConversation) error {
	switch {
	case r.ID == nil || *r.ID == "":
		return fmt.Errorf("missing id")
	case r.Title == nil || *r.Title == "":
		return fmt.Errorf("missing title")
	case r.Messages == nil:
		return fmt.Errorf("missing messages")
	case r.CreatedAt == nil:
		return fmt.Errorf("missing createdAt")
	case r.UpdatedAt == nil:
		return fmt.Errorf("missing updatedAt")
	}
	for j, m := range *r.Messages {
		if !m.Role.Storable() {
			return fmt.Errorf("message %d has role %q", j, m.Role)
		}
	}
	return nil
}

// =============================================================================
// SINGLE CONVERSATION EXPORTER
// =============================================================================

// JSONExporter exports one conversation as a JSON object.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Export converts a conversation to JSON.
func (e *JSONExporter) Export(conv model.Conversation) ([]byte, error) {
	if conv.ID == "" {
		return nil, fmt.Errorf("conversation has no id")
	}
	return json.MarshalIndent(conv, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
