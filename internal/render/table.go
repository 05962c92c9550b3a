package render

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

const maxFieldsWidth = 60

// StyledText applies a lipgloss style to text when colors are enabled.
// When colors are disabled, it returns the plain text unchanged.
func StyledText(text string, style lipgloss.Style) string {
	if ColorsEnabled() {
		return style.Render(text)
	}
	return text
}

// ColorFromName maps color name strings to lipgloss colors.
func ColorFromName(name string) lipgloss.Color {
	switch name {
	case "red":
		return lipgloss.Color("9")
	case "yellow":
		return lipgloss.Color("11")
	case "blue":
		return lipgloss.Color("12")
	case "green":
		return lipgloss.Color("10")
	case "magenta":
		return lipgloss.Color("13")
	case "gray":
		return lipgloss.Color("8")
	default:
		return lipgloss.Color("15")
	}
}

// actionColor names the color used for an applied import action.
func actionColor(action string) string {
	switch action {
	case "create":
		return "green"
	case "discard":
		return "gray"
	case "fail":
		return "red"
	default:
		return "blue"
	}
}

// truncate shortens a string to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// EmptyState renders a styled empty-state message with an optional contextual hint.
// When quiet is true the hint is suppressed.
func EmptyState(message, hint string, quiet bool) string {
	if !ColorsEnabled() {
		if quiet || hint == "" {
			return message
		}
		return message + "\n" + hint
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	result := dimStyle.Render(message)
	if !quiet && hint != "" {
		result += "\n" + hintStyle.Render(hint)
	}
	return result
}

// KindCount is the number of records of one kind.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// CountKinds tallies records per kind, sorted by kind.
func CountKinds(records []*model.Record) []KindCount {
	counts := map[string]int{}
	for _, rec := range records {
		counts[rec.Kind()]++
	}
	out := make([]KindCount, 0, len(counts))
	for kind, n := range counts {
		out = append(out, KindCount{Kind: kind, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// RenderKinds renders per-kind counts with a total row.
func RenderKinds(counts []KindCount) string {
	if len(counts) == 0 {
		return EmptyState("No objects.", "", false)
	}
	total := 0
	rows := make([][]string, 0, len(counts)+1)
	for _, c := range counts {
		total += c.Count
		rows = append(rows, []string{c.Kind, humanize.Comma(int64(c.Count))})
	}
	rows = append(rows, []string{"total", humanize.Comma(int64(total))})

	if !ColorsEnabled() {
		return renderPlainRows([]string{"KIND", "OBJECTS"}, rows)
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers("KIND", "OBJECTS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}
			if row == len(rows)-1 {
				s = s.Bold(true)
			}
			if col == 1 {
				s = s.Align(lipgloss.Right)
			}
			return s
		})
	return t.String()
}

// RenderRecords renders one row per record: identity, a field summary and
// attachment sizes.
func RenderRecords(records []*model.Record) string {
	if len(records) == 0 {
		return EmptyState("No objects.", "", false)
	}
	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = recordToRow(rec)
	}

	if !ColorsEnabled() {
		return renderPlainRows([]string{"ID", "FIELDS", "ATTACHMENTS"}, rows)
	}
	idStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers("ID", "FIELDS", "ATTACHMENTS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}
			if col == 0 {
				return idStyle.Padding(0, 1)
			}
			return s
		})
	return t.String()
}

func recordToRow(rec *model.Record) []string {
	var parts []string
	rec.Data.Each(func(name string, value any) error {
		parts = append(parts, name+"="+model.FormatValue(value))
		return nil
	})
	return []string{
		rec.ID.String(),
		truncate(strings.Join(parts, " "), maxFieldsWidth),
		attachmentSummary(rec.Attachments),
	}
}

func attachmentSummary(atts []model.Attachment) string {
	if len(atts) == 0 {
		return "-"
	}
	var size int64
	for _, a := range atts {
		size += a.Size
	}
	return fmt.Sprintf("%d (%s)", len(atts), humanize.IBytes(uint64(size)))
}

func renderPlainRows(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	line := func(cells []string) {
		for i, cell := range cells {
			if i == len(cells)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)+2))
		}
		b.WriteString("\n")
	}
	line(headers)
	for _, row := range rows {
		line(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderRefTree renders each record with the references it holds, one
// branch per relation field. refs returns the references of a record.
func RenderRefTree(records []*model.Record, refs func(*model.Record) ([]model.Ref, error)) (string, error) {
	if len(records) == 0 {
		return EmptyState("No objects.", "", false), nil
	}
	if !ColorsEnabled() {
		return renderPlainRefTree(records, refs)
	}

	root := tree.New().Root("Objects")
	idStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	fieldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	for _, rec := range records {
		rs, err := refs(rec)
		if err != nil {
			return "", err
		}
		node := tree.Root(idStyle.Render(rec.ID.String()))
		for _, r := range rs {
			node.Child(fieldStyle.Render(r.Field+":") + " " + formatTargets(r))
		}
		root.Child(node)
	}
	return root.String(), nil
}

func renderPlainRefTree(records []*model.Record, refs func(*model.Record) ([]model.Ref, error)) (string, error) {
	var b strings.Builder
	for _, rec := range records {
		rs, err := refs(rec)
		if err != nil {
			return "", err
		}
		b.WriteString(rec.ID.String())
		b.WriteString("\n")
		for _, r := range rs {
			fmt.Fprintf(&b, "  %s: %s\n", r.Field, formatTargets(r))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatTargets(r model.Ref) string {
	if len(r.IDs) == 0 {
		if r.Many {
			return "[]"
		}
		return "null"
	}
	if r.Many {
		return model.FormatValue(r.IDs)
	}
	return r.IDs[0].String()
}
