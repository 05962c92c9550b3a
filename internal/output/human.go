package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/haul/internal/render"
)

// writeHumanSuccess writes a human-readable success message to w.
// Single-line messages get a checkmark prefix; multi-line content (tables,
// trees, inspect views) is printed as-is to avoid corrupting formatted output.
func writeHumanSuccess(w io.Writer, message string) {
	if message == "" {
		return
	}
	if strings.Contains(message, "\n") {
		fmt.Fprintln(w, message)
		return
	}
	if render.ColorsEnabled() {
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("✔")
		fmt.Fprintf(w, "%s %s\n", icon, message)
	} else {
		fmt.Fprintln(w, message)
	}
}

// writeHumanError writes a human-readable error message to w. Joined
// errors (one per line) are listed below a count.
func writeHumanError(w io.Writer, err error) {
	lines := strings.Split(err.Error(), "\n")
	msg := lines[0]
	if len(lines) > 1 {
		msg = fmt.Sprintf("%d errors", len(lines))
	}

	if render.ColorsEnabled() {
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true).Render("✘")
		label := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true).Render("Error:")
		fmt.Fprintf(w, "%s %s %s\n", icon, label, msg)
	} else {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
	if len(lines) > 1 {
		for _, line := range lines {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}
}
