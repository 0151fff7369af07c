package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.txt")
	WriteLines(t, path, "a", "b")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestEventually(t *testing.T) {
	n := 0
	if !Eventually(t, time.Second, func() bool { n++; return n >= 3 }) {
		t.Error("expected condition to become true")
	}
	if Eventually(t, 20*time.Millisecond, func() bool { return false }) {
		t.Error("expected condition to stay false")
	}
}
