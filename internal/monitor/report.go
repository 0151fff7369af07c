package monitor

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schaermu/linewatch/internal/lines"
	"github.com/schaermu/linewatch/internal/snapshot"
)

// DefaultTimestampLayout prefixes every report line.
const DefaultTimestampLayout = "15:04:05.000"

// Reporter writes the human-readable report stream. Each event produces
// one headline of the form "[<ts>] <KIND>: <name> ..." optionally followed
// by indented detail lines.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	layout string
	now    func() time.Time
	err    error
}

// NewReporter returns a Reporter writing to w. An empty layout selects
// DefaultTimestampLayout.
func NewReporter(w io.Writer, layout string) *Reporter {
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return &Reporter{w: w, layout: layout, now: time.Now}
}

// Err returns the first write error, if any.
func (r *Reporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Reporter) emit(headline string, details ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := fmt.Fprintf(r.w, "[%s] %s\n", r.now().Format(r.layout), headline); err != nil && r.err == nil {
		r.err = err
	}
	for _, d := range details {
		if _, err := fmt.Fprintf(r.w, "  %s\n", d); err != nil && r.err == nil {
			r.err = err
		}
	}
}

// Watching announces the start of monitoring.
func (r *Reporter) Watching(dir string) {
	r.emit("WATCH: " + dir)
}

// Stopped announces the end of monitoring.
func (r *Reporter) Stopped(dir, reason string) {
	r.emit(fmt.Sprintf("STOP: %s (%s)", dir, reason))
}

// Created reports a freshly snapshotted file.
func (r *Reporter) Created(name string) {
	r.emit("CREATE: " + name)
}

// Skipped reports an entry that is not a regular file.
func (r *Reporter) Skipped(label, name string) {
	r.emit(fmt.Sprintf("%s: %s (not a regular file, skipped)", label, name))
}

// Unavailable reports that no snapshot could be taken for this event.
// label is the event kind, or SEED for the startup scan.
func (r *Reporter) Unavailable(label, name string, err error) {
	r.emit(fmt.Sprintf("%s: %s (snapshot unavailable: %v)", label, name, err))
}

// NoBaseline reports a modification of a file that was never snapshotted.
func (r *Reporter) NoBaseline(name string) {
	r.emit(fmt.Sprintf("MODIFY: %s (no baseline to compare)", name))
}

// Unchanged reports a modification with an identical line multiset.
func (r *Reporter) Unchanged(name string) {
	r.emit(fmt.Sprintf("MODIFY: %s no line-level changes", name))
}

// Modified reports the added and removed lines of a modification.
func (r *Reporter) Modified(name string, d lines.Delta) {
	var details []string
	if len(d.Added) > 0 {
		details = append(details, "added:")
		for _, e := range d.Added.Sorted() {
			details = append(details, "  + "+e.Line+repeat(e.Count))
		}
	}
	if len(d.Removed) > 0 {
		details = append(details, "removed:")
		for _, e := range d.Removed.Sorted() {
			details = append(details, "  - "+e.Line+repeat(e.Count))
		}
	}
	r.emit("MODIFY: "+name, details...)
}

// Deleted reports the last known state of a removed file.
func (r *Reporter) Deleted(name string, s snapshot.Snapshot) {
	r.emit(fmt.Sprintf("DELETE: %s size=%d checksum=%s", name, s.Size, s.ChecksumHex()))
}

// DeletedUnknown reports a removed file that was never snapshotted.
func (r *Reporter) DeletedUnknown(name string) {
	r.emit("DELETE: "+name+" (no prior snapshot)",
		"size and checksum are unknown: the file is already gone and was never observed stable.",
		"its bytes cannot be read after unlink; only a snapshot taken on CREATE/MODIFY could have recorded them.")
}

// Overflow warns that notifications were dropped.
func (r *Reporter) Overflow() {
	r.emit("OVERFLOW: notification backlog exceeded, some events were lost; cached snapshots may be stale")
}

// WatchError reports an error from the notification source.
func (r *Reporter) WatchError(err error) {
	r.emit(fmt.Sprintf("ERROR: watch error: %v", err))
}

func repeat(n int) string {
	if n > 1 {
		return fmt.Sprintf(" x%d", n)
	}
	return ""
}
