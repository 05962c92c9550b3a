package render

import (
	"os"
	"strings"
	"testing"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

func makeRecord(kind string, pk any, kv ...any) *model.Record {
	id, err := model.NewID(kind, pk)
	if err != nil {
		panic(err)
	}
	rec := &model.Record{ID: id, Data: model.NewFields()}
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Data.Set(kv[i].(string), kv[i+1])
	}
	return rec
}

// enableColors clears NO_COLOR for the test; t.Setenv restores it afterwards.
func enableColors(t *testing.T) {
	t.Helper()
	t.Setenv("NO_COLOR", "")
	os.Unsetenv("NO_COLOR")
	t.Setenv("TERM", "xterm-256color")
}

func testRecords() []*model.Record {
	author := makeRecord("app:author", 1, "name", "Jane")
	tag := makeRecord("app:tag", "t1", "name", "fiction")
	book := makeRecord("app:book", 7,
		"name", "Dune",
		"author", author.ID,
		"coauthor", nil,
		"tags", []model.ID{tag.ID},
	)
	book.Attachments = []model.Attachment{model.AttachmentFromData("cover.png", make([]byte, 2048))}
	return []*model.Record{author, tag, book}
}

func refsOf(rec *model.Record) ([]model.Ref, error) {
	var out []model.Ref
	rec.Data.Each(func(name string, value any) error {
		switch v := value.(type) {
		case model.ID:
			out = append(out, model.Ref{Field: name, IDs: []model.ID{v}})
		case []model.ID:
			out = append(out, model.Ref{Field: name, IDs: v, Many: true})
		case nil:
			out = append(out, model.Ref{Field: name, Nullable: true})
		}
		return nil
	})
	return out, nil
}

func TestCountKinds(t *testing.T) {
	recs := append(testRecords(), makeRecord("app:author", 2, "name", "Joe"))
	got := CountKinds(recs)
	want := []KindCount{{"app:author", 2}, {"app:book", 1}, {"app:tag", 1}}
	if len(got) != len(want) {
		t.Fatalf("CountKinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CountKinds[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRenderKindsPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got := RenderKinds([]KindCount{{"app:author", 1200}, {"app:book", 3}})
	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "KIND") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "1,200") {
		t.Errorf("expected humanized count in %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], "total") || !strings.Contains(lines[3], "1,203") {
		t.Errorf("total line = %q", lines[3])
	}
}

func TestRenderKindsEmpty(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if got := RenderKinds(nil); got != "No objects." {
		t.Errorf("RenderKinds(nil) = %q", got)
	}
}

func TestRenderRecordsPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got := RenderRecords(testRecords())
	for _, want := range []string{
		"app:author-1",
		`name="Jane"`,
		"app:tag-t1",
		"author=app:author-1",
		"tags=[app:tag-t1]",
		"1 (2.0 KiB)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output:\n%s", want, got)
		}
	}
}

func TestRenderRecordsTruncatesFields(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	rec := makeRecord("app:tag", 1, "name", strings.Repeat("x", 200))
	got := RenderRecords([]*model.Record{rec})
	if strings.Contains(got, strings.Repeat("x", 100)) {
		t.Errorf("field summary was not truncated:\n%s", got)
	}
	if !strings.Contains(got, "...") {
		t.Errorf("expected ellipsis in:\n%s", got)
	}
}

func TestRenderRecordsColorPathExecutes(t *testing.T) {
	enableColors(t)

	got := RenderRecords(testRecords())
	if !strings.Contains(got, "app:book-7") {
		t.Errorf("expected record id in colored output:\n%s", got)
	}
}

func TestRenderRefTreePlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got, err := RenderRefTree(testRecords(), refsOf)
	if err != nil {
		t.Fatalf("RenderRefTree: %v", err)
	}
	for _, want := range []string{
		"app:book-7\n",
		"  author: app:author-1\n",
		"  coauthor: null\n",
		"  tags: [app:tag-t1]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in tree:\n%s", want, got)
		}
	}
}

func TestRenderRefTreeColorPathExecutes(t *testing.T) {
	enableColors(t)

	got, err := RenderRefTree(testRecords(), refsOf)
	if err != nil {
		t.Fatalf("RenderRefTree: %v", err)
	}
	if !strings.Contains(got, "app:author-1") || !strings.Contains(got, "Objects") {
		t.Errorf("unexpected tree:\n%s", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a bit too long", 10, "a bit t..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestEmptyStatePlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if got := EmptyState("Nothing.", "try again", false); got != "Nothing.\ntry again" {
		t.Errorf("EmptyState = %q", got)
	}
	if got := EmptyState("Nothing.", "try again", true); got != "Nothing." {
		t.Errorf("quiet EmptyState = %q", got)
	}
}
