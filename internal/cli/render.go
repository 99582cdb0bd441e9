// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown rendering of assistant replies.

package cli

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/gemchat/internal/store"
)

// MarkdownRenderer renders Markdown with a glamour style that follows the
// store theme. Renderers are built lazily per theme.
type MarkdownRenderer struct {
	width int

	mu        sync.Mutex
	renderers map[store.Theme]*glamour.TermRenderer
}

// NewMarkdownRenderer creates a renderer wrapping at width columns.
func NewMarkdownRenderer(width int) *MarkdownRenderer {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	return &MarkdownRenderer{width: width, renderers: make(map[store.Theme]*glamour.TermRenderer)}
}

// Render renders content for theme. It returns content unchanged when
// colors are disabled or rendering fails.
func (m *MarkdownRenderer) Render(content string, theme store.Theme) string {
	if !ColorsEnabled() || strings.TrimSpace(content) == "" {
		return content
	}
	r := m.renderer(theme)
	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

func (m *MarkdownRenderer) renderer(theme store.Theme) *glamour.TermRenderer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.renderers[theme]; ok {
		return r
	}
	style := "light"
	if theme == store.ThemeDark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(m.width),
	)
	if err != nil {
		r = nil
	}
	m.renderers[theme] = r
	return r
}
