package render

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

const defaultWrap = 100

// Markdown renders markdown for a terminal of the given width. A width of
// zero or less wraps at 100 columns.
func Markdown(source string, width int) (string, error) {
	if width <= 0 {
		width = defaultWrap
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	return renderer.Render(source)
}
