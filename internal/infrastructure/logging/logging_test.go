package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewJSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Format: "json", Service: "letterbox", Level: "debug"})
	logger.Debug("letter sent", "block", 7)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if record["service"] != "letterbox" || record["msg"] != "letter sent" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record["block"] != float64(7) {
		t.Fatalf("block = %v", record["block"])
	}
}

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn"})
	logger.Info("quiet")
	logger.Warn("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "letterbox.log")
	w, err := newRotatingWriter(path, 10, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	for _, line := range []string{"first-1\n", "second-\n", "third--\n", "fourth-\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	assertFile(t, path, "fourth-\n")
	assertFile(t, backupPath(path, 1), "third--\n")
	assertFile(t, backupPath(path, 2), "second-\n")
	if _, err := os.Stat(backupPath(path, 3)); !os.IsNotExist(err) {
		t.Fatalf("expected only two backups, stat err = %v", err)
	}
}

func TestRotatingWriterAppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letterbox.log")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := NewRotatingWriter(path, 1, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := w.Write([]byte("new\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	assertFile(t, path, "old\nnew\n")
}

func TestRotatingWriterWithoutBackupsDiscards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letterbox.log")
	w, err := newRotatingWriter(path, 10, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, line := range []string{"first-1\n", "second-\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	assertFile(t, path, "second-\n")
	if _, err := os.Stat(backupPath(path, 1)); !os.IsNotExist(err) {
		t.Fatalf("expected no backup, stat err = %v", err)
	}

	// Writes after Close reopen the file.
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := w.Write([]byte("x\n")); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	w.Close()
	assertFile(t, path, "second-\nx\n")
}

func TestNewRotatingWriterRequiresPath(t *testing.T) {
	if _, err := NewRotatingWriter("", 1, 1); err == nil {
		t.Fatal("expected error")
	}
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(got) != want {
		t.Fatalf("%s = %q, want %q", filepath.Base(path), got, want)
	}
}
