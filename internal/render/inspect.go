package render

import (
	"fmt"
	"sort"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// InspectMarkdown describes a container as a markdown document: header,
// per-kind counts, then one section per record.
func InspectMarkdown(h model.Header, format string, records []*model.Record) string {
	var b strings.Builder

	b.WriteString("# Container\n\n")
	fmt.Fprintf(&b, "- **Format:** %s\n", format)
	fmt.Fprintf(&b, "- **Version:** %d\n", h.Version)
	fmt.Fprintf(&b, "- **Objects:** %s\n", humanize.Comma(int64(len(records))))
	if meta := metadataLines(h.Metadata); len(meta) > 0 {
		b.WriteString("\n## Metadata\n\n")
		for _, line := range meta {
			b.WriteString(line)
		}
	}

	b.WriteString("\n## Kinds\n\n| Kind | Objects |\n| --- | ---: |\n")
	counts := CountKinds(records)
	listed := map[string]bool{}
	for _, c := range counts {
		listed[c.Kind] = true
		fmt.Fprintf(&b, "| `%s` | %d |\n", c.Kind, c.Count)
	}
	for _, kind := range h.ObjectKinds {
		if !listed[kind] {
			fmt.Fprintf(&b, "| `%s` | 0 |\n", kind)
		}
	}

	for _, rec := range records {
		fmt.Fprintf(&b, "\n## %s\n\n", rec.ID)
		if rec.Data.Len() == 0 {
			b.WriteString("_no fields_\n")
		}
		rec.Data.Each(func(name string, value any) error {
			fmt.Fprintf(&b, "- **%s:** `%s`\n", name, model.FormatValue(value))
			return nil
		})
		for _, a := range rec.Attachments {
			fmt.Fprintf(&b, "- attachment `%v` (%s)\n", a.Key, humanize.IBytes(uint64(a.Size)))
		}
	}
	return b.String()
}

func metadataLines(meta any) []string {
	m, ok := meta.(map[string]any)
	if !ok {
		if meta == nil {
			return nil
		}
		return []string{fmt.Sprintf("- `%s`\n", model.FormatValue(meta))}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("- **%s:** %s\n", k, model.FormatValue(m[k]))
	}
	return lines
}

// RenderInspect renders InspectMarkdown for the terminal.
func RenderInspect(h model.Header, format string, records []*model.Record) (string, error) {
	return RenderMarkdown(InspectMarkdown(h, format, records))
}

// ActionCount is the number of objects of one kind handled by one import
// action.
type ActionCount struct {
	Kind   string `json:"kind"`
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// RenderImportSummary renders the outcome of an import, one line per kind
// and action.
func RenderImportSummary(counts []ActionCount) string {
	if len(counts) == 0 {
		return EmptyState("Nothing imported.", "", false)
	}
	sorted := make([]ActionCount, len(counts))
	copy(sorted, counts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].Action < sorted[j].Action
	})

	var lines []string
	for _, c := range sorted {
		style := lipgloss.NewStyle().Foreground(ColorFromName(actionColor(c.Action))).Bold(true)
		lines = append(lines, fmt.Sprintf("%-14s %s %s",
			StyledText(c.Action, style),
			humanize.Comma(int64(c.Count)),
			c.Kind,
		))
	}
	return strings.Join(lines, "\n")
}
