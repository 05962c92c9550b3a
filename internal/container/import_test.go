package container

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ALT-F4-LLC/haul/internal/codec"
	"github.com/ALT-F4-LLC/haul/internal/metrics"
	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
	"github.com/ALT-F4-LLC/haul/internal/policy"
	"github.com/ALT-F4-LLC/haul/internal/testapp"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		format codec.Format
		opts   []Option
	}{
		{"yaml", codec.YAML, nil},
		{"zip", codec.Zip, nil},
		{"zip stored", codec.ZipStored, nil},
		{"snapshot", codec.YAML, []Option{WithSnapshot(true)}},
		{"dependency order", codec.Zip, []Option{WithDependencyOrder()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := mustApp(t)
			library(t, src)
			data := exportKinds(t, src, tt.format, tt.opts, testapp.Author)

			dst := mustApp(t)
			report := mustImport(t, dst, data)

			if report.Loaded != 6 || len(report.Created) != 6 {
				t.Errorf("loaded %d, created %d, want 6 and 6", report.Loaded, len(report.Created))
			}
			for kind, want := range map[string]int{testapp.Author: 2, testapp.Book: 2, testapp.Tag: 2} {
				if got := mustCount(t, dst, kind); got != want {
					t.Errorf("%s count = %d, want %d", kind, got, want)
				}
			}

			b1 := mustOne(t, dst, testapp.Book, "name", "b1")
			if isbn, _ := b1.Get("isbn"); isbn != "978-3" {
				t.Errorf("b1.isbn = %v, want 978-3", isbn)
			}
			checkNames(t, related(t, dst, b1, "author"), "1")
			checkNames(t, related(t, dst, b1, "coauthor"), "2")
			checkNames(t, related(t, dst, b1, "tags"), "t1", "t2")

			b2 := mustOne(t, dst, testapp.Book, "name", "b2")
			checkNames(t, related(t, dst, b2, "author"), "2")
			checkNames(t, related(t, dst, b2, "coauthor"))
			checkNames(t, related(t, dst, b2, "tags"))

			// The author and favorite book point at each other.
			a1 := mustOne(t, dst, testapp.Author, "name", "1")
			checkNames(t, related(t, dst, a1, "favorite"), "b1")
			checkNames(t, related(t, dst, a1, "books"), "b1")
			checkNames(t, related(t, dst, a1, "tags"), "t1")
		})
	}
}

func checkNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("related = %v, want %v", got, want)
	}
}

func TestImportMutualForeignKeys(t *testing.T) {
	src := mustApp(t)
	a := mustCreate(t, src, testapp.Author, map[string]any{"name": "A"})
	b := mustCreate(t, src, testapp.Book, map[string]any{"name": "B", "author": a})
	if err := src.Link(context.Background(), a, "favorite", b); err != nil {
		t.Fatal(err)
	}
	data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

	dst := mustApp(t)
	mustImport(t, dst, data)

	checkNames(t, related(t, dst, mustOne(t, dst, testapp.Author, "name", "A"), "favorite"), "B")
	checkNames(t, related(t, dst, mustOne(t, dst, testapp.Book, "name", "B"), "author"), "A")
}

func mustRules(t *testing.T, actions map[string]policy.Action) *policy.Rules {
	t.Helper()
	r := policy.NewRules()
	for kind, a := range actions {
		if err := r.Set(kind, a); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func TestLinkByFieldsWithFallback(t *testing.T) {
	src := mustApp(t)
	mustCreate(t, src, testapp.Author, map[string]any{"name": "Jane"})
	mustCreate(t, src, testapp.Author, map[string]any{"name": "NewPerson"})
	data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

	dst := mustApp(t)
	jane := mustCreate(t, dst, testapp.Author, map[string]any{"name": "Jane"})

	rules := mustRules(t, map[string]policy.Action{
		testapp.Author: policy.LinkByFields{LookupFields: []string{"name"}, Fallback: policy.Create{}},
	})
	report := mustImport(t, dst, data, WithImportPolicy(rules))

	if got := mustCount(t, dst, testapp.Author); got != 2 {
		t.Errorf("author count = %d, want 2", got)
	}
	mustOne(t, dst, testapp.Author, "name", "Jane")
	mustOne(t, dst, testapp.Author, "name", "NewPerson")

	janeID := mustID(t, testapp.Author, 1)
	if len(report.Linked) != 1 || report.Linked[0] != janeID {
		t.Errorf("Linked = %v, want [%s]", report.Linked, janeID)
	}
	if len(report.Created) != 1 || report.Created[0] != mustID(t, testapp.Author, 2) {
		t.Errorf("Created = %v", report.Created)
	}
	if report.PKMap[janeID].PK() != jane.PK() {
		t.Errorf("Jane mapped to %v, want %v", report.PKMap[janeID].PK(), jane.PK())
	}
}

func TestLinkByFieldsWithoutFallback(t *testing.T) {
	src := mustApp(t)
	mustCreate(t, src, testapp.Author, map[string]any{"name": "Nobody"})
	data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

	dst := mustApp(t)
	rules := mustRules(t, map[string]policy.Action{
		testapp.Author: policy.LinkByFields{LookupFields: []string{"name"}},
	})
	_, err := mustRead(t, dst, data, WithImportPolicy(rules)).ImportObjects(context.Background(), dst.Store)

	var fe *model.FailError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want FailError", err)
	}
	if got := mustCount(t, dst, testapp.Author); got != 0 {
		t.Errorf("author count = %d, want 0", got)
	}
}

func TestLinkByFieldsOnForeignKey(t *testing.T) {
	src := mustApp(t)
	a := mustCreate(t, src, testapp.Author, map[string]any{"name": "A"})
	mustCreate(t, src, testapp.Book, map[string]any{"name": "B", "author": a})

	rules := func(t *testing.T) *policy.Rules {
		return mustRules(t, map[string]policy.Action{
			testapp.Author: policy.LinkByFields{LookupFields: []string{"name"}},
			testapp.Book:   policy.LinkByFields{LookupFields: []string{"name", "author"}},
		})
	}
	target := func(t *testing.T) *testapp.App {
		dst := mustApp(t)
		a := mustCreate(t, dst, testapp.Author, map[string]any{"name": "A"})
		mustCreate(t, dst, testapp.Book, map[string]any{"name": "B", "author": a})
		return dst
	}

	t.Run("referenced record first", func(t *testing.T) {
		data := exportKinds(t, src, codec.YAML, []Option{WithDependencyOrder()}, testapp.Book)
		dst := target(t)
		report := mustImport(t, dst, data, WithImportPolicy(rules(t)))
		if len(report.Linked) != 2 || len(report.Created) != 0 {
			t.Errorf("linked %v, created %v", report.Linked, report.Created)
		}
		if got := mustCount(t, dst, testapp.Book); got != 1 {
			t.Errorf("book count = %d, want 1", got)
		}
	})

	t.Run("referenced record later", func(t *testing.T) {
		// Visitation order puts the book before its author.
		data := exportKinds(t, src, codec.YAML, nil, testapp.Book)
		dst := target(t)
		_, err := mustRead(t, dst, data, WithImportPolicy(rules(t))).ImportObjects(context.Background(), dst.Store)
		if err == nil || !strings.Contains(err.Error(), "not been imported yet") {
			t.Errorf("error = %v, want lookup ordering error", err)
		}
	})
}

func TestLinkByPK(t *testing.T) {
	tests := []struct {
		name      string
		overwrite []string
		want      string
	}{
		{"no overwrite", nil, "old"},
		{"named field", []string{"name"}, "new"},
		{"all fields", []string{policy.OverwriteAll}, "new"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := mustApp(t)
			mustCreate(t, src, testapp.Author, map[string]any{"name": "new"})
			data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

			dst := mustApp(t)
			mustCreate(t, dst, testapp.Author, map[string]any{"name": "old"})
			rules := mustRules(t, map[string]policy.Action{
				testapp.Author: policy.LinkByPK{OverwriteFields: tt.overwrite},
			})
			mustImport(t, dst, data, WithImportPolicy(rules))

			objs := mustAll(t, dst, testapp.Author)
			if len(objs) != 1 {
				t.Fatalf("author count = %d, want 1", len(objs))
			}
			if got := testapp.Name(objs[0]); got != tt.want {
				t.Errorf("name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLinkByPKFallback(t *testing.T) {
	src := mustApp(t)
	mustCreate(t, src, testapp.Author, map[string]any{"name": "A"})
	mustCreate(t, src, testapp.Author, map[string]any{"name": "B"})
	data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

	dst := mustApp(t)
	mustCreate(t, dst, testapp.Author, map[string]any{"name": "existing"})
	rules := mustRules(t, map[string]policy.Action{
		testapp.Author: policy.LinkByPK{Fallback: policy.Create{}},
	})
	report := mustImport(t, dst, data, WithImportPolicy(rules))
	if len(report.Linked) != 1 || len(report.Created) != 1 {
		t.Errorf("linked %v, created %v", report.Linked, report.Created)
	}
}

func TestLinkToInstance(t *testing.T) {
	src := mustApp(t)
	mustCreate(t, src, testapp.Author, map[string]any{"name": "a"})
	mustCreate(t, src, testapp.Author, map[string]any{"name": "b"})
	data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

	dst := mustApp(t)
	mustCreate(t, dst, testapp.Author, map[string]any{"name": "X"})
	mustCreate(t, dst, testapp.Author, map[string]any{"name": "Y"})
	rules := mustRules(t, map[string]policy.Action{
		testapp.Author: policy.LinkToInstance{PK: 2},
	})
	report := mustImport(t, dst, data, WithImportPolicy(rules))

	if got := mustCount(t, dst, testapp.Author); got != 2 {
		t.Errorf("author count = %d, want 2", got)
	}
	for id, obj := range report.PKMap {
		if obj.PK() != int64(2) {
			t.Errorf("%s mapped to pk %v, want 2", id, obj.PK())
		}
	}
}

// discardAuthor discards the author with the given name.
func discardAuthor(name string) policy.ImportPolicy {
	return policy.RelinkFunc(func(_ context.Context, _ orm.Querier, rec *model.Record) (policy.Action, error) {
		if v, _ := rec.Data.Get("name"); rec.Kind() == testapp.Author && v == name {
			return policy.Discard{}, nil
		}
		return policy.Create{}, nil
	}).Policy()
}

func discardSource(t *testing.T) []byte {
	t.Helper()
	src := mustApp(t)
	a1 := mustCreate(t, src, testapp.Author, map[string]any{"name": "1"})
	a2 := mustCreate(t, src, testapp.Author, map[string]any{"name": "2"})
	mustCreate(t, src, testapp.Book, map[string]any{"name": "b1", "author": a1, "coauthor": a2})
	return exportKinds(t, src, codec.YAML, nil, testapp.Book)
}

func TestDiscardNullableReference(t *testing.T) {
	data := discardSource(t)
	dst := mustApp(t)
	report := mustImport(t, dst, data, WithImportPolicy(discardAuthor("2")))

	if got := mustCount(t, dst, testapp.Author); got != 1 {
		t.Errorf("author count = %d, want 1", got)
	}
	b1 := mustOne(t, dst, testapp.Book, "name", "b1")
	checkNames(t, related(t, dst, b1, "author"), "1")
	checkNames(t, related(t, dst, b1, "coauthor"))

	if len(report.Discarded) != 1 || report.Discarded[0] != mustID(t, testapp.Author, 2) {
		t.Errorf("Discarded = %v", report.Discarded)
	}
}

func TestDiscardRequiredReference(t *testing.T) {
	data := discardSource(t)
	dst := mustApp(t)
	_, err := mustRead(t, dst, data, WithImportPolicy(discardAuthor("1"))).ImportObjects(context.Background(), dst.Store)

	var ue *model.UnresolvedReferenceError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UnresolvedReferenceError", err)
	}
	if !ue.Discarded || ue.Field != "author" || ue.From != mustID(t, testapp.Book, 1) {
		t.Errorf("error = %+v", ue)
	}
	if !strings.Contains(err.Error(), "author") {
		t.Errorf("message %q does not name the field", err)
	}
	for _, kind := range []string{testapp.Author, testapp.Book} {
		if got := mustCount(t, dst, kind); got != 0 {
			t.Errorf("%s count = %d after rollback, want 0", kind, got)
		}
	}
}

func TestFailAction(t *testing.T) {
	src := mustApp(t)
	library(t, src)
	data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

	dst := mustApp(t)
	rules := mustRules(t, map[string]policy.Action{
		testapp.Tag: policy.Fail{Reason: "tags are managed elsewhere"},
	})
	_, err := mustRead(t, dst, data, WithImportPolicy(rules)).ImportObjects(context.Background(), dst.Store)

	var fe *model.FailError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want FailError", err)
	}
	if err.Error() != "tags are managed elsewhere" {
		t.Errorf("message = %q, want the reason verbatim", err.Error())
	}
	for _, kind := range []string{testapp.Author, testapp.Book, testapp.Tag} {
		if got := mustCount(t, dst, kind); got != 0 {
			t.Errorf("%s count = %d after rollback, want 0", kind, got)
		}
	}
}

func TestAmbiguousLink(t *testing.T) {
	src := mustApp(t)
	mustCreate(t, src, testapp.Tag, map[string]any{"name": "t"})
	mustCreate(t, src, testapp.Author, map[string]any{"name": "Jane"})
	mustCreate(t, src, testapp.Author, map[string]any{"name": "Jane"})
	data := exportKinds(t, src, codec.YAML, nil, testapp.Tag, testapp.Author)

	dst := mustApp(t)
	mustCreate(t, dst, testapp.Author, map[string]any{"name": "Jane"})
	mustCreate(t, dst, testapp.Author, map[string]any{"name": "Jane"})
	rules := mustRules(t, map[string]policy.Action{
		testapp.Author: policy.LinkByFields{LookupFields: []string{"name"}, Fallback: policy.Create{}},
	})
	_, err := mustRead(t, dst, data, WithImportPolicy(rules)).ImportObjects(context.Background(), dst.Store)

	var ae *model.AmbiguousLinkError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want AmbiguousLinkError", err)
	}
	want := []model.ID{mustID(t, testapp.Author, 1), mustID(t, testapp.Author, 2)}
	if len(ae.Candidates) != 2 || ae.Candidates[0] != want[0] || ae.Candidates[1] != want[1] {
		t.Errorf("Candidates = %v, want %v", ae.Candidates, want)
	}
	if len(ae.Lookup) != 1 || ae.Lookup[0] != "name" || ae.Values[0] != "Jane" {
		t.Errorf("lookup = %v %v", ae.Lookup, ae.Values)
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Errorf("want one error per ambiguous record, got %v", err)
	}

	// The tag was created before the ambiguity was found.
	if got := mustCount(t, dst, testapp.Tag); got != 0 {
		t.Errorf("tag count = %d after rollback, want 0", got)
	}
	if got := mustCount(t, dst, testapp.Author); got != 2 {
		t.Errorf("author count = %d, want 2", got)
	}
}

func TestAmbiguousLinkBehindForeignKeyLookup(t *testing.T) {
	src := mustApp(t)
	a := mustCreate(t, src, testapp.Author, map[string]any{"name": "Jane"})
	mustCreate(t, src, testapp.Book, map[string]any{"name": "B", "author": a})
	data := exportKinds(t, src, codec.YAML, []Option{WithDependencyOrder()}, testapp.Book)

	dst := mustApp(t)
	mustCreate(t, dst, testapp.Author, map[string]any{"name": "Jane"})
	mustCreate(t, dst, testapp.Author, map[string]any{"name": "Jane"})
	rules := mustRules(t, map[string]policy.Action{
		testapp.Author: policy.LinkByFields{LookupFields: []string{"name"}},
		testapp.Book:   policy.LinkByFields{LookupFields: []string{"name", "author"}},
	})
	_, err := mustRead(t, dst, data, WithImportPolicy(rules)).ImportObjects(context.Background(), dst.Store)

	var ae *model.AmbiguousLinkError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want AmbiguousLinkError", err)
	}
	if ae.Record != mustID(t, testapp.Author, a.PK()) || len(ae.Candidates) != 2 {
		t.Errorf("ambiguity = %s with %v", ae.Record, ae.Candidates)
	}
	if strings.Contains(err.Error(), "not been imported yet") {
		t.Errorf("error = %v, want only the ambiguity", err)
	}
	if got := mustCount(t, dst, testapp.Book); got != 0 {
		t.Errorf("book count = %d, want 0", got)
	}
}

func TestManyToManyModes(t *testing.T) {
	tests := []struct {
		name   string
		append bool
		want   []string
	}{
		{"replace", false, []string{"t1"}},
		{"append", true, []string{"old", "t1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := mustApp(t)
			t1 := mustCreate(t, src, testapp.Tag, map[string]any{"name": "t1"})
			mustCreate(t, src, testapp.Author, map[string]any{"name": "Jane", "tags": []orm.Object{t1}})
			data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

			dst := mustApp(t)
			old := mustCreate(t, dst, testapp.Tag, map[string]any{"name": "old"})
			mustCreate(t, dst, testapp.Author, map[string]any{"name": "Jane", "tags": []orm.Object{old}})

			rules := mustRules(t, map[string]policy.Action{
				testapp.Author: policy.LinkByFields{LookupFields: []string{"name"}, OverwriteFields: []string{"tags"}},
			})
			rules.AppendM2M[testapp.Author+".tags"] = tt.append
			mustImport(t, dst, data, WithImportPolicy(rules))

			jane := mustOne(t, dst, testapp.Author, "name", "Jane")
			checkNames(t, related(t, dst, jane, "tags"), tt.want...)
		})
	}
}

func TestCreateIgnoreFields(t *testing.T) {
	src := mustApp(t)
	a := mustCreate(t, src, testapp.Author, map[string]any{"name": "A"})
	mustCreate(t, src, testapp.Book, map[string]any{"name": "B", "isbn": "x", "author": a, "coauthor": a})
	data := exportKinds(t, src, codec.YAML, nil, testapp.Book)

	dst := mustApp(t)
	rules := mustRules(t, map[string]policy.Action{
		testapp.Book: policy.Create{IgnoreFields: []string{"isbn", "coauthor"}},
	})
	mustImport(t, dst, data, WithImportPolicy(rules))

	b := mustOne(t, dst, testapp.Book, "name", "B")
	if isbn, _ := b.Get("isbn"); isbn != nil {
		t.Errorf("isbn = %v, want nil", isbn)
	}
	checkNames(t, related(t, dst, b, "author"), "A")
	checkNames(t, related(t, dst, b, "coauthor"))
}

type avatars struct{ policy.DefaultExport }

func (avatars) Attachments(_ context.Context, obj orm.Object) ([]model.Attachment, error) {
	if obj.Kind() != testapp.Author {
		return nil, nil
	}
	return []model.Attachment{
		model.AttachmentFromData("avatar.txt", []byte("hello "+testapp.Name(obj))),
	}, nil
}

type failingPostImport struct{ *policy.Rules }

func (failingPostImport) PostObjectImport(context.Context, orm.Object) error {
	return errors.New("post-import hook failed")
}

func TestAttachments(t *testing.T) {
	src := mustApp(t)
	mustCreate(t, src, testapp.Author, map[string]any{"name": "A"})
	data := exportKinds(t, src, codec.Zip, []Option{WithExportPolicy(avatars{})}, testapp.Author)

	t.Run("written by the policy", func(t *testing.T) {
		dst := mustApp(t)
		rules := policy.NewRules()
		rules.AttachmentDir = t.TempDir()
		mustImport(t, dst, data, WithImportPolicy(rules))

		got, err := os.ReadFile(filepath.Join(rules.AttachmentDir, "testapp_author", "1", "avatar.txt"))
		if err != nil {
			t.Fatalf("reading attachment: %v", err)
		}
		if string(got) != "hello A" {
			t.Errorf("attachment = %q, want %q", got, "hello A")
		}
	})

	t.Run("removed when the import rolls back", func(t *testing.T) {
		dst := mustApp(t)
		rules := policy.NewRules()
		rules.AttachmentDir = t.TempDir()
		_, err := mustRead(t, dst, data, WithImportPolicy(failingPostImport{rules})).
			ImportObjects(context.Background(), dst.Store)
		if err == nil {
			t.Fatal("import succeeded, want post-import failure")
		}
		entries, err := os.ReadDir(rules.AttachmentDir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			sub, _ := os.ReadDir(filepath.Join(rules.AttachmentDir, e.Name()))
			if len(sub) != 0 {
				t.Errorf("%s holds %d entries after rollback", e.Name(), len(sub))
			}
		}
		if got := mustCount(t, dst, testapp.Author); got != 0 {
			t.Errorf("author count = %d after rollback, want 0", got)
		}
	})

	t.Run("rejected by default", func(t *testing.T) {
		dst := mustApp(t)
		_, err := mustRead(t, dst, data).ImportObjects(context.Background(), dst.Store)
		if !errors.Is(err, model.ErrAttachmentsUnsupported) {
			t.Errorf("error = %v, want ErrAttachmentsUnsupported", err)
		}
		if got := mustCount(t, dst, testapp.Author); got != 0 {
			t.Errorf("author count = %d after rollback, want 0", got)
		}
	})
}

func TestUnknownKinds(t *testing.T) {
	app := mustApp(t)
	other := mustID(t, "other:thing", 7)
	data := container(t, []string{"other:thing", testapp.Tag},
		record(other, "x", int64(1)),
		record(mustID(t, testapp.Tag, 1), "name", "t"),
	)

	im, err := NewImport(app.Exporters)
	if err != nil {
		t.Fatal(err)
	}
	err = im.Read(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, model.ErrKindNotRegistered) {
		t.Fatalf("Read error = %v, want ErrKindNotRegistered", err)
	}

	report := mustImport(t, app, data, IgnoreUnknown())
	if len(report.Discarded) != 1 || report.Discarded[0] != other {
		t.Errorf("Discarded = %v, want [%s]", report.Discarded, other)
	}
	if got := mustCount(t, app, testapp.Tag); got != 1 {
		t.Errorf("tag count = %d, want 1", got)
	}
}

func TestReadRejectsBadContainers(t *testing.T) {
	tag := mustID(t, testapp.Tag, 1)
	tests := []struct {
		name string
		data []byte
	}{
		{
			"future version",
			[]byte("_: header\nversion: 2\nobject_kinds: []\n---\n_: object\nid: !ID {kind: 'testapp:tag', pk: 1}\nkind: 'testapp:tag'\ndata: {name: t}\n"),
		},
		{
			"duplicate object",
			container(t, []string{testapp.Tag}, record(tag, "name", "a"), record(tag, "name", "b")),
		},
		{
			"unknown field",
			container(t, []string{testapp.Tag}, record(tag, "color", "red")),
		},
		{
			"reference in plain field",
			container(t, []string{testapp.Tag}, record(tag, "name", mustID(t, testapp.Tag, 2))),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := mustApp(t)
			im, err := NewImport(app.Exporters)
			if err != nil {
				t.Fatal(err)
			}
			err = im.Read(bytes.NewReader(tt.data), int64(len(tt.data)))
			var fe *model.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("Read error = %v, want FormatError", err)
			}
			if len(im.Records()) != 0 {
				t.Errorf("%d records buffered after a failed read", len(im.Records()))
			}
			if _, err := im.ImportObjects(context.Background(), app.Store); !errors.Is(err, ErrNotOpen) {
				t.Errorf("ImportObjects error = %v, want ErrNotOpen", err)
			}
		})
	}
}

func orphanBook(t *testing.T) []byte {
	t.Helper()
	return container(t, []string{testapp.Book},
		record(mustID(t, testapp.Book, 1), "name", "B", "author", mustID(t, testapp.Author, 99)),
	)
}

func TestUnresolvedReference(t *testing.T) {
	app := mustApp(t)
	_, err := mustRead(t, app, orphanBook(t)).ImportObjects(context.Background(), app.Store)

	var ue *model.UnresolvedReferenceError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UnresolvedReferenceError", err)
	}
	if ue.Discarded || ue.To != mustID(t, testapp.Author, 99) {
		t.Errorf("error = %+v", ue)
	}
	if got := mustCount(t, app, testapp.Book); got != 0 {
		t.Errorf("book count = %d after rollback, want 0", got)
	}
}

type resolveByName struct {
	policy.DefaultImport
	name string
}

func (p resolveByName) ResolveReference(ctx context.Context, q orm.Querier, id model.ID) (orm.Object, error) {
	objs, err := q.Find(ctx, id.Kind, []orm.Match{{Field: "name", Value: p.name}})
	if err != nil || len(objs) == 0 {
		return nil, err
	}
	return objs[0], nil
}

func TestReferenceResolver(t *testing.T) {
	app := mustApp(t)
	mustCreate(t, app, testapp.Author, map[string]any{"name": "Existing"})

	mustImport(t, app, orphanBook(t), WithImportPolicy(resolveByName{name: "Existing"}))

	b := mustOne(t, app, testapp.Book, "name", "B")
	checkNames(t, related(t, app, b, "author"), "Existing")
}

type hooks struct {
	policy.DefaultImport
	posted []string
}

func (h *hooks) PreprocessFields(_ string, f *model.Fields) error {
	if v, ok := f.Get("name"); ok {
		f.Set("name", strings.ToUpper(v.(string)))
	}
	return nil
}

func (h *hooks) PostObjectImport(_ context.Context, obj orm.Object) error {
	h.posted = append(h.posted, testapp.Name(obj))
	return nil
}

func TestImportHooks(t *testing.T) {
	src := mustApp(t)
	mustCreate(t, src, testapp.Tag, map[string]any{"name": "t1"})
	mustCreate(t, src, testapp.Tag, map[string]any{"name": "t2"})
	data := exportKinds(t, src, codec.YAML, nil, testapp.Tag)

	dst := mustApp(t)
	h := &hooks{}
	im := mustRead(t, dst, data, WithImportPolicy(h))
	if _, err := im.ImportObjects(context.Background(), dst.Store); err != nil {
		t.Fatalf("ImportObjects failed: %v", err)
	}

	checkNames(t, h.posted, "T1", "T2")
	mustOne(t, dst, testapp.Tag, "name", "T1")
	if v, _ := im.Records()[0].Data.Get("name"); v != "t1" {
		t.Errorf("buffered record changed to %v", v)
	}
}

func TestImportMetrics(t *testing.T) {
	src := mustApp(t)
	library(t, src)
	data := exportKinds(t, src, codec.YAML, nil, testapp.Author)

	m := metrics.New(prometheus.NewRegistry())
	dst := mustApp(t)
	mustImport(t, dst, data, WithMetrics(m))
	if got := testutil.ToFloat64(m.ObjectsImported.WithLabelValues(testapp.Author, "create")); got != 2 {
		t.Errorf("imported authors = %v, want 2", got)
	}

	rules := mustRules(t, map[string]policy.Action{testapp.Tag: policy.Fail{Reason: "no"}})
	failed := mustApp(t)
	_, err := mustRead(t, failed, data, WithMetrics(m), WithImportPolicy(rules)).ImportObjects(context.Background(), failed.Store)
	if err == nil {
		t.Fatal("import with a Fail rule succeeded")
	}
	if got := testutil.ToFloat64(m.ImportFailures.WithLabelValues("fail")); got != 1 {
		t.Errorf("fail count = %v, want 1", got)
	}
}

func TestImportNotOpen(t *testing.T) {
	app := mustApp(t)
	im, err := NewImport(app.Exporters)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := im.ImportObjects(context.Background(), app.Store); !errors.Is(err, ErrNotOpen) {
		t.Errorf("error = %v, want ErrNotOpen", err)
	}

	data := container(t, []string{testapp.Tag}, record(mustID(t, testapp.Tag, 1), "name", "t"))
	im = mustRead(t, app, data)
	im.Close()
	if _, err := im.ImportObjects(context.Background(), app.Store); !errors.Is(err, ErrNotOpen) {
		t.Errorf("after Close: error = %v, want ErrNotOpen", err)
	}
	if len(im.Records()) != 1 {
		t.Errorf("Records() = %d after Close, want 1", len(im.Records()))
	}
}

func TestReportTally(t *testing.T) {
	r := &Report{actions: []appliedAction{
		{"testapp:tag", "create"},
		{"testapp:tag", "create"},
		{"testapp:tag", "link_by_fields"},
		{"testapp:book", "discard"},
	}}
	got := r.Tally()
	if got["testapp:tag"]["create"] != 2 || got["testapp:tag"]["link_by_fields"] != 1 {
		t.Errorf("tag tally = %v", got["testapp:tag"])
	}
	if got["testapp:book"]["discard"] != 1 || len(got) != 2 {
		t.Errorf("tally = %v", got)
	}
}
