// Package cli renders the dialog in a terminal using lipgloss.
package cli

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#2E86AB")
	// SuccessColor indicates a confirmed change.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// ErrorColor indicates a failed turn.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// SubtleColor is used for hints and row numbers.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for the banner.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// ReplyStyle formats bot replies.
	ReplyStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// ErrorStyle formats failure replies.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// SubtleStyle formats hints.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	// RowNumberStyle formats the number in front of a chooser row.
	RowNumberStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			Width(4).
			Align(lipgloss.Right).
			MarginRight(1)

	// PromptStyle is used for the input prompt.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)
)

// Icons.
const (
	BotIcon   = "🛒"
	ErrorIcon = "✗"
)

// FormatTitle formats a title with the bot icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(BotIcon + " " + title)
}

// FormatReply formats a bot reply.
func FormatReply(text string) string {
	return ReplyStyle.Render(text)
}

// FormatError formats a failure reply with icon.
func FormatError(text string) string {
	return ErrorStyle.Render(ErrorIcon + " " + text)
}

// FormatRow formats one numbered chooser row.
func FormatRow(n int, label string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, RowNumberStyle.Render(strconv.Itoa(n)+"."), label)
}

// FormatPrompt formats the input prompt.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " → ")
}
