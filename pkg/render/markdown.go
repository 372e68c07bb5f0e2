// Package render turns brief summaries and deliverables into terminal or HTML output.
package render

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Markdown renders markdown content for terminal display.
// If noColor is true, returns the content unchanged.
// Otherwise, uses glamour with auto-detected style, wrapped at width (80 when width <= 0).
func Markdown(content string, noColor bool, width int) (string, error) {
	if noColor {
		return content, nil
	}
	if width <= 0 {
		width = 80
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}

	result, err := renderer.Render(content)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	return result, nil
}
