package monitor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/schaermu/linewatch/internal/lines"
	"github.com/schaermu/linewatch/internal/probe"
	"github.com/schaermu/linewatch/internal/snapshot"
	"github.com/schaermu/linewatch/internal/testutil"
)

// fakeSource is a channel-backed Source.
type fakeSource struct {
	events chan WatchEvent
	errs   chan error
	err    error
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan WatchEvent, 16), errs: make(chan error, 4)}
}

func (f *fakeSource) Events() <-chan WatchEvent { return f.events }
func (f *fakeSource) Errors() <-chan error      { return f.errs }
func (f *fakeSource) Err() error                { return f.err }
func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

// end simulates the watch registration going away.
func (f *fakeSource) end(reason error) {
	f.err = reason
	close(f.events)
	close(f.errs)
}

func newTestMonitor(t *testing.T, dir string, src Source) (*Monitor, *bytes.Buffer, *countingRecorder) {
	t.Helper()
	var out bytes.Buffer
	rec := newCountingRecorder()
	report := fixedReporter(&out)
	builder := snapshot.NewBuilder(probe.New(1, time.Millisecond), snapshot.Options{Encoding: lines.UTF8})
	proc := NewProcessor(snapshot.NewCache(), builder, report, testutil.Logger(), rec)
	return New(dir, src, proc, report, testutil.Logger(), rec), &out, rec
}

func TestRunProcessesInOrderAndEndsOnInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	testutil.WriteLines(t, path, "a")

	src := newFakeSource()
	m, out, _ := newTestMonitor(t, dir, src)

	src.events <- WatchEvent{Kind: Create, Path: path}
	src.events <- WatchEvent{Kind: Overflow, Path: dir}
	src.events <- WatchEvent{Kind: Delete, Path: path}
	src.end(ErrWatchInvalidated)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !src.closed {
		t.Error("Run must close its source")
	}

	var kinds []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 1 {
			kinds = append(kinds, strings.TrimSuffix(fields[1], ":"))
		}
	}
	want := []string{"WATCH", "CREATE", "OVERFLOW", "DELETE", "STOP"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected report order %v, want %v\n%s", kinds, want, out.String())
	}
	if !strings.Contains(out.String(), "STOP: "+dir+" (watch registration invalidated)") {
		t.Errorf("missing stop line:\n%s", out.String())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	src := newFakeSource()
	m, out, _ := newTestMonitor(t, t.TempDir(), src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !strings.Contains(out.String(), "(stopped)") {
		t.Errorf("expected stop line, got %q", out.String())
	}
}

func TestRunReportsWatchErrors(t *testing.T) {
	src := newFakeSource()
	m, out, rec := newTestMonitor(t, t.TempDir(), src)

	src.errs <- errors.New("inotify hiccup")
	src.end(nil)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "ERROR: watch error: inotify hiccup") {
		t.Errorf("expected watch error report, got %q", out.String())
	}
	if rec.watchErrs != 1 {
		t.Errorf("expected 1 watch error, got %d", rec.watchErrs)
	}
}

func TestTranslate(t *testing.T) {
	root := "/watch"
	tests := []struct {
		name string
		ev   fsnotify.Event
		want WatchEvent
		ok   bool
	}{
		{"create", fsnotify.Event{Name: "/watch/a", Op: fsnotify.Create}, WatchEvent{Create, "/watch/a"}, true},
		{"write", fsnotify.Event{Name: "/watch/a", Op: fsnotify.Write}, WatchEvent{Modify, "/watch/a"}, true},
		{"remove", fsnotify.Event{Name: "/watch/a", Op: fsnotify.Remove}, WatchEvent{Delete, "/watch/a"}, true},
		{"rename away", fsnotify.Event{Name: "/watch/a", Op: fsnotify.Rename}, WatchEvent{Delete, "/watch/a"}, true},
		{"remove wins over write", fsnotify.Event{Name: "/watch/a", Op: fsnotify.Write | fsnotify.Remove}, WatchEvent{Delete, "/watch/a"}, true},
		{"chmod only", fsnotify.Event{Name: "/watch/a", Op: fsnotify.Chmod}, WatchEvent{}, false},
		{"nested", fsnotify.Event{Name: "/watch/sub/a", Op: fsnotify.Create}, WatchEvent{}, false},
		{"relative name", fsnotify.Event{Name: "b", Op: fsnotify.Create}, WatchEvent{Create, "/watch/b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translate(root, tt.ev)
			if ok != tt.ok || got != tt.want {
				t.Errorf("translate(%v) = %v, %v; want %v, %v", tt.ev, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{Create: "CREATE", Modify: "MODIFY", Delete: "DELETE", Overflow: "OVERFLOW", Kind(0): "UNKNOWN"} {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %s, want %s", int(k), k.String(), want)
		}
	}
}

// syncBuffer guards a bytes.Buffer read by the test while Run writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestFSSourceEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem notification test in short mode")
	}

	parent := t.TempDir()
	dir := filepath.Join(parent, "watched")
	testutil.WriteLines(t, filepath.Join(dir, ".keep"))

	src, err := NewFSSource(dir, testutil.Logger())
	if err != nil {
		t.Fatalf("NewFSSource failed: %v", err)
	}

	out := &syncBuffer{}
	report := NewReporter(out, "")
	builder := snapshot.NewBuilder(probe.New(2, 5*time.Millisecond), snapshot.Options{})
	proc := NewProcessor(snapshot.NewCache(), builder, report, testutil.Logger(), nil)
	m := New(src.Root(), src, proc, report, testutil.Logger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	path := filepath.Join(dir, "notes.txt")
	testutil.WriteLines(t, path, "a", "b", "a")
	if !testutil.Eventually(t, 5*time.Second, func() bool {
		return strings.Contains(out.String(), "notes.txt")
	}) {
		t.Fatalf("no report for created file:\n%s", out.String())
	}

	// Removing the watched directory ends the loop without error.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not end after watched directory was removed:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "STOP: "+src.Root()) {
		t.Errorf("expected stop line:\n%s", out.String())
	}
}

func TestNewFSSourceRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	testutil.WriteLines(t, path, "x")

	if _, err := NewFSSource(path, testutil.Logger()); err == nil {
		t.Fatal("expected error when watching a regular file")
	}
	if _, err := NewFSSource(filepath.Join(t.TempDir(), "missing"), testutil.Logger()); err == nil {
		t.Fatal("expected error when watching a missing path")
	}
}
