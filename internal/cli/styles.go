// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for gemchat commands.

package cli

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/apperr"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/util"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for banners and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// PromptStyle renders the input prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	// AssistantStyle labels assistant replies
	AssistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")). // Purple
			Bold(true)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	// SuccessStyle is used for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	// ErrorStyle is used for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// WarningStyle is used for warnings
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for secondary text
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// ToastStyle frames the current store error
	ToastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)

	// SeparatorStyle is used for horizontal rules
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// =============================================================================
// RENDER HELPERS
// =============================================================================

// RenderSeparator renders a horizontal rule that fits the terminal.
func RenderSeparator() string {
	w := GetTerminalWidth() - 4
	if w > 76 {
		w = 76
	}
	return SeparatorStyle.Render(strings.Repeat("-", w))
}

// RenderLabel renders a fixed-width field label.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}

// RenderErrorToast renders an error record the way the chat shows it.
func RenderErrorToast(rec apperr.Record) string {
	var b strings.Builder
	b.WriteString(ErrorStyle.Render(strings.ToUpper(string(rec.Kind)) + " error"))
	if rec.Context != "" {
		b.WriteString(DimStyle.Render(" (" + rec.Context + ")"))
	}
	b.WriteString("\n")
	b.WriteString(rec.Message)
	if rec.Retryable {
		b.WriteString("\n")
		b.WriteString(DimStyle.Render("type /retry to try again"))
	}
	return ToastStyle.Render(b.String())
}

// RenderConversationLine renders one entry of /list. The current
// conversation is marked with an asterisk.
func RenderConversationLine(index int, conv model.Conversation, current bool) string {
	marker := " "
	if current {
		marker = SuccessStyle.Render("*")
	}
	title := util.PadWidth(util.TruncateWidth(conv.DisplayTitle(), 40), 40)
	return strings.Join([]string{
		marker,
		DimStyle.Render(util.PadWidth(strconv.Itoa(index+1)+".", 4)),
		title,
		DimStyle.Render(conv.UpdatedAt.Local().Format("2006-01-02 15:04")),
		DimStyle.Render("(" + strconv.Itoa(conv.MessageCount()) + " msgs)"),
	}, " ")
}
