package render

import (
	"strings"
	"testing"
)

func TestColorsEnabled(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ColorsEnabled() {
		t.Error("NO_COLOR set: ColorsEnabled = true")
	}

	enableColors(t)
	if !ColorsEnabled() {
		t.Error("ColorsEnabled = false with a color terminal")
	}
	t.Setenv("TERM", "dumb")
	if ColorsEnabled() {
		t.Error("TERM=dumb: ColorsEnabled = true")
	}
}

func TestWrapWidth(t *testing.T) {
	tests := map[string]int{
		"":    defaultWrapWidth,
		"abc": defaultWrapWidth,
		"10":  defaultWrapWidth,
		"132": 132,
	}
	for cols, want := range tests {
		t.Setenv("COLUMNS", cols)
		if got := wrapWidth(); got != want {
			t.Errorf("COLUMNS=%q: wrapWidth = %d, want %d", cols, got, want)
		}
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	got, err := RenderMarkdown("")
	if err != nil || got != "" {
		t.Errorf("RenderMarkdown(\"\") = %q, %v", got, err)
	}
}

func TestRenderMarkdownColorPathExecutes(t *testing.T) {
	enableColors(t)
	t.Setenv("GLAMOUR_STYLE", "notty")

	got, err := RenderMarkdown("# Container\n\n- **Objects:** 3\n")
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	if !strings.Contains(got, "Container") || !strings.Contains(got, "Objects") {
		t.Errorf("rendered markdown lost content:\n%s", got)
	}
}
