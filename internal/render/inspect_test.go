package render

import (
	"strings"
	"testing"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

func TestInspectMarkdown(t *testing.T) {
	h := model.Header{
		Version:     1,
		ObjectKinds: []string{"app:author", "app:book", "app:review", "app:tag"},
		Metadata:    map[string]any{"exported_by": "jane", "source": "prod"},
	}
	got := InspectMarkdown(h, "zip", testRecords())

	for _, want := range []string{
		"- **Format:** zip\n",
		"- **Version:** 1\n",
		"- **Objects:** 3\n",
		"- **exported_by:** \"jane\"\n",
		"| `app:author` | 1 |\n",
		"| `app:review` | 0 |\n",
		"## app:book-7\n",
		"- **author:** `app:author-1`\n",
		"- **coauthor:** `null`\n",
		"- attachment `cover.png` (2.0 KiB)\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in markdown:\n%s", want, got)
		}
	}
	if strings.Index(got, "exported_by") > strings.Index(got, "source") {
		t.Error("metadata keys are not sorted")
	}
}

func TestInspectMarkdownNoFields(t *testing.T) {
	got := InspectMarkdown(model.Header{Version: 1}, "yaml", []*model.Record{makeRecord("app:tag", 1)})
	if !strings.Contains(got, "_no fields_") {
		t.Errorf("expected empty-record marker:\n%s", got)
	}
	if strings.Contains(got, "## Metadata") {
		t.Errorf("unexpected metadata section:\n%s", got)
	}
}

func TestRenderInspectPlainIsMarkdown(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	h := model.Header{Version: 1}
	got, err := RenderInspect(h, "yaml", testRecords())
	if err != nil {
		t.Fatalf("RenderInspect: %v", err)
	}
	if got != InspectMarkdown(h, "yaml", testRecords()) {
		t.Error("plain render should return the markdown unchanged")
	}
}

func TestRenderImportSummaryPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got := RenderImportSummary([]ActionCount{
		{Kind: "app:tag", Action: "link_by_fields", Count: 2},
		{Kind: "app:book", Action: "create", Count: 1500},
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "create") || !strings.HasSuffix(lines[0], "1,500 app:book") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "2 app:tag") {
		t.Errorf("line 1 = %q", lines[1])
	}
	if RenderImportSummary(nil) != "Nothing imported." {
		t.Error("empty summary mismatch")
	}
}
