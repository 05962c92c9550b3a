package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hidden")
	l.WithFields(logrus.Fields{"kind": "library:book"}).Info("exported")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(out, "kind=\"library:book\"") && !strings.Contains(out, "kind=library:book") {
		t.Errorf("missing field in %q", out)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.WithField("count", 3).Debug("imported")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["msg"] != "imported" || entry["count"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Error("accepted level loud")
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("accepted format xml")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if l.IsLevelEnabled(logrus.ErrorLevel) {
		t.Error("discard logger has error level enabled")
	}
}
