package tui

import (
	"github.com/charmbracelet/glamour"
)

const defaultWrap = 80

// NewRenderer returns a function that renders markdown using glamour.
// Width wraps the output; zero or less falls back to 80 columns.
func NewRenderer(width int) func(string) (string, error) {
	if width <= 0 {
		width = defaultWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
