package container

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/ALT-F4-LLC/haul/internal/codec"
	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
	"github.com/ALT-F4-LLC/haul/internal/testapp"
)

func mustApp(t *testing.T) *testapp.App {
	t.Helper()
	app, err := testapp.New(context.Background())
	if err != nil {
		t.Fatalf("testapp.New failed: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func mustCreate(t *testing.T, app *testapp.App, kind string, fields map[string]any) orm.Object {
	t.Helper()
	obj, err := app.Create(context.Background(), kind, fields)
	if err != nil {
		t.Fatalf("creating %s: %v", kind, err)
	}
	return obj
}

func mustAll(t *testing.T, app *testapp.App, kind string) []orm.Object {
	t.Helper()
	objs, err := app.All(context.Background(), kind)
	if err != nil {
		t.Fatalf("listing %s: %v", kind, err)
	}
	return objs
}

func mustCount(t *testing.T, app *testapp.App, kind string) int {
	t.Helper()
	n, err := app.Store.Count(context.Background(), kind)
	if err != nil {
		t.Fatalf("counting %s: %v", kind, err)
	}
	return n
}

func mustOne(t *testing.T, app *testapp.App, kind, field string, value any) orm.Object {
	t.Helper()
	obj, err := app.One(context.Background(), kind, field, value)
	if err != nil {
		t.Fatal(err)
	}
	return obj
}

// related returns the names of the objects obj.field points to, sorted.
func related(t *testing.T, app *testapp.App, obj orm.Object, field string) []string {
	t.Helper()
	objs, err := app.Store.Related(context.Background(), obj, field)
	if err != nil {
		t.Fatalf("reading %s.%s: %v", obj.Kind(), field, err)
	}
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = testapp.Name(o)
	}
	sort.Strings(names)
	return names
}

// exportKinds exports every object of the given kinds from app.
func exportKinds(t *testing.T, app *testapp.App, format codec.Format, opts []Option, kinds ...string) []byte {
	t.Helper()
	e, err := NewExport(app.Exporters, opts...)
	if err != nil {
		t.Fatalf("NewExport failed: %v", err)
	}
	for _, k := range kinds {
		if err := e.ExportObjects(context.Background(), app.Store, mustAll(t, app, k)); err != nil {
			t.Fatalf("exporting %s: %v", k, err)
		}
	}
	var buf bytes.Buffer
	if err := e.Write(&buf, format, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.Bytes()
}

func mustRead(t *testing.T, app *testapp.App, data []byte, opts ...Option) *Import {
	t.Helper()
	im, err := NewImport(app.Exporters, opts...)
	if err != nil {
		t.Fatalf("NewImport failed: %v", err)
	}
	if err := im.Read(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return im
}

func mustImport(t *testing.T, app *testapp.App, data []byte, opts ...Option) *Report {
	t.Helper()
	report, err := mustRead(t, app, data, opts...).ImportObjects(context.Background(), app.Store)
	if err != nil {
		t.Fatalf("ImportObjects failed: %v", err)
	}
	return report
}

func mustID(t *testing.T, kind string, pk any) model.ID {
	t.Helper()
	id, err := model.NewID(kind, pk)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// container encodes hand-built records.
func container(t *testing.T, kinds []string, records ...*model.Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	header := model.Header{Version: model.CurrentVersion, ObjectKinds: kinds}
	if err := codec.Write(&buf, codec.YAML, header, records); err != nil {
		t.Fatalf("codec.Write failed: %v", err)
	}
	return buf.Bytes()
}

func record(id model.ID, kv ...any) *model.Record {
	data := model.NewFields()
	for i := 0; i+1 < len(kv); i += 2 {
		data.Set(kv[i].(string), kv[i+1])
	}
	return &model.Record{ID: id, Data: data}
}

// library fills app with two authors, two books and two tags. Author "1"
// and book "b1" point at each other.
func library(t *testing.T, app *testapp.App) {
	t.Helper()
	ctx := context.Background()
	t1 := mustCreate(t, app, testapp.Tag, map[string]any{"name": "t1"})
	t2 := mustCreate(t, app, testapp.Tag, map[string]any{"name": "t2"})
	a1 := mustCreate(t, app, testapp.Author, map[string]any{"name": "1", "tags": []orm.Object{t1}})
	a2 := mustCreate(t, app, testapp.Author, map[string]any{"name": "2"})
	b1 := mustCreate(t, app, testapp.Book, map[string]any{
		"name":     "b1",
		"isbn":     "978-3",
		"author":   a1,
		"coauthor": a2,
		"tags":     []orm.Object{t1, t2},
	})
	mustCreate(t, app, testapp.Book, map[string]any{"name": "b2", "author": a2})
	if err := app.Link(ctx, a1, "favorite", b1); err != nil {
		t.Fatalf("linking favorite: %v", err)
	}
}
