package render

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultWrapWidth = 100

// ColorsEnabled returns whether terminal colors should be used.
// It returns false if the NO_COLOR environment variable is set (any value)
// or if TERM is set to "dumb".
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// wrapWidth is the terminal width from COLUMNS, or defaultWrapWidth.
func wrapWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 20 {
		return n
	}
	return defaultWrapWidth
}

// RenderMarkdown renders markdown text for terminal display, wrapped to the
// terminal width. When colors are disabled, it returns the content
// unmodified.
func RenderMarkdown(content string) (string, error) {
	if content == "" {
		return "", nil
	}

	if !ColorsEnabled() {
		return content, nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wrapWidth()),
	)
	if err != nil {
		return content, err
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return strings.TrimSpace(rendered), nil
}
