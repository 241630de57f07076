// Package tui holds the terminal presentation pieces of the chat command:
// the markdown renderer and the startup banner.
package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown answers for the
// terminal using glamour, auto-detecting light or dark backgrounds.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		// Degrade to plain text rather than refusing to chat.
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
