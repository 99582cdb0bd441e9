// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/model"
)

func sampleConversations() []model.Conversation {
	a := model.NewConversation("Go questions")
	a.Messages = append(a.Messages,
		model.NewUserMessage("How do channels work?"),
		model.Message{ID: "m2", Role: model.RoleAssistant, Content: "They pass values.", Timestamp: time.Now()},
	)
	b := model.NewConversation("Empty chat")
	return []model.Conversation{a, b}
}

// =============================================================================
// JSON ROUND TRIP TESTS
// =============================================================================

func TestExportImport_RoundTrip(t *testing.T) {
	convs := sampleConversations()

	data, err := ExportJSON(convs)
	if err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	got, err := ImportJSON(data)
	if err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}

	if len(got) != len(convs) {
		t.Fatalf("ImportJSON() returned %d conversations, want %d", len(got), len(convs))
	}
	for i := range convs {
		want := convs[i]
		if got[i].ID != want.ID || got[i].Title != want.Title {
			t.Errorf("conversation %d = %s/%q, want %s/%q", i, got[i].ID, got[i].Title, want.ID, want.Title)
		}
		if !got[i].CreatedAt.Equal(want.CreatedAt) || !got[i].UpdatedAt.Equal(want.UpdatedAt) {
			t.Errorf("conversation %d dates changed", i)
		}
		if len(got[i].Messages) != len(want.Messages) {
			t.Fatalf("conversation %d has %d messages, want %d", i, len(got[i].Messages), len(want.Messages))
		}
		for j := range want.Messages {
			if got[i].Messages[j].ID != want.Messages[j].ID || got[i].Messages[j].Content != want.Messages[j].Content {
				t.Errorf("message %d/%d changed", i, j)
			}
			if !got[i].Messages[j].Timestamp.Equal(want.Messages[j].Timestamp) {
				t.Errorf("message %d/%d timestamp changed", i, j)
			}
		}
	}
}

func TestImportJSON_Validation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"not an array", `{"id":"x"}`},
		{"missing id", `[{"title":"t","messages":[],"createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`},
		{"missing title", `[{"id":"x","messages":[],"createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`},
		{"messages not array", `[{"id":"x","title":"t","messages":"no","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`},
		{"missing messages", `[{"id":"x","title":"t","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`},
		{"missing dates", `[{"id":"x","title":"t","messages":[]}]`},
		{"bad role", `[{"id":"x","title":"t","messages":[{"id":"m","role":"system","content":"c","timestamp":"2024-01-01T00:00:00Z"}],"createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ImportJSON([]byte(tc.data))
			if err == nil {
				t.Fatal("ImportJSON() error = nil, want validation error")
			}
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation {
				t.Errorf("ImportJSON() error = %v, want validation kind", err)
			}
		})
	}
}

func TestImportJSON_ClearsStreamingFlag(t *testing.T) {
	data := `[{"id":"x","title":"t","messages":[{"id":"m","role":"assistant","content":"partial","timestamp":"2024-01-01T00:00:00Z","isStreaming":true}],"createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`
	got, err := ImportJSON([]byte(data))
	if err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	if got[0].Messages[0].IsStreaming {
		t.Error("imported message should not be streaming")
	}
}

func TestDefaultFilename(t *testing.T) {
	day := time.Date(2025, 3, 7, 15, 4, 5, 0, time.UTC)
	if got := DefaultFilename(day); got != "chatgpt-clone-export-2025-03-07.json" {
		t.Errorf("DefaultFilename() = %q", got)
	}
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteAll(sampleConversations(), dir)
	if err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if _, err := ImportJSON(data); err != nil {
		t.Errorf("written file does not re-import: %v", err)
	}
}

// =============================================================================
// MARKDOWN TESTS
// =============================================================================

func TestMarkdownExporter(t *testing.T) {
	conv := sampleConversations()[0]
	out, err := NewMarkdownExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	result := string(out)
	for _, want := range []string{"# Go questions", "### You", "### Assistant", "How do channels work?", "generator: gemchat"} {
		if !strings.Contains(result, want) {
			t.Errorf("Markdown output missing %q", want)
		}
	}
}

func TestMarkdownExporter_Empty(t *testing.T) {
	if _, err := NewMarkdownExporter(nil).Export(model.NewConversation("x")); err == nil {
		t.Error("Export() of empty conversation should fail")
	}
}

func TestMarkdownExporter_YAMLEscaping(t *testing.T) {
	conv := sampleConversations()[0]
	conv.Title = "Title\ninjected: true"
	out, err := NewMarkdownExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.Contains(string(out), "\ninjected: true\n") {
		t.Error("newline in title leaked into frontmatter")
	}
}

func TestExportMarkdown_WritesFile(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	path, err := ExportMarkdown(sampleConversations()[0], opts)
	if err != nil {
		t.Fatalf("ExportMarkdown() error = %v", err)
	}
	if !strings.HasSuffix(path, ".md") || !strings.Contains(path, "Go_questions") {
		t.Errorf("path = %q", path)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename(`a/b:c?d e`); got != "a-b-c-d_e" {
		t.Errorf("sanitizeFilename() = %q", got)
	}
	if got := sanitizeFilename(""); got != "conversation" {
		t.Errorf("sanitizeFilename(\"\") = %q", got)
	}
}
