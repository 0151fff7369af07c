package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schaermu/linewatch/internal/lines"
	"github.com/schaermu/linewatch/internal/probe"
	"github.com/schaermu/linewatch/internal/snapshot"
)

// Snapshotter takes a snapshot of a file once it is stable.
type Snapshotter interface {
	Take(ctx context.Context, path string) (snapshot.Snapshot, probe.Result, error)
}

// Recorder receives instrumentation callbacks from the Processor.
type Recorder interface {
	Event(kind string)
	SnapshotFailure(reason string)
	ProbeFallback()
	WatchError()
	CacheSize(n int)
}

type nopRecorder struct{}

func (nopRecorder) Event(string)           {}
func (nopRecorder) SnapshotFailure(string) {}
func (nopRecorder) ProbeFallback()         {}
func (nopRecorder) WatchError()            {}
func (nopRecorder) CacheSize(int)          {}

// Processor applies WatchEvents to the snapshot cache and reports the
// outcome. It is driven by a single goroutine.
type Processor struct {
	cache    *snapshot.Cache
	snapper  Snapshotter
	report   *Reporter
	logger   *slog.Logger
	recorder Recorder
}

// NewProcessor creates a Processor. The cache is owned by the Processor
// from here on. rec may be nil.
func NewProcessor(cache *snapshot.Cache, snapper Snapshotter, report *Reporter, logger *slog.Logger, rec Recorder) *Processor {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Processor{
		cache:    cache,
		snapper:  snapper,
		report:   report,
		logger:   logger,
		recorder: rec,
	}
}

// Handle processes one event. The only errors returned come from ctx being
// done; everything else is reported and absorbed.
func (p *Processor) Handle(ctx context.Context, ev WatchEvent) error {
	p.recorder.Event(ev.Kind.String())
	p.logger.Debug("handling event", "kind", ev.Kind.String(), "path", ev.Path)

	var err error
	switch ev.Kind {
	case Create:
		err = p.handleCreate(ctx, ev.Path)
	case Modify:
		err = p.handleModify(ctx, ev.Path)
	case Delete:
		p.handleDelete(ev.Path)
	case Overflow:
		p.logger.Warn("notification overflow, events were lost", "cached", p.cache.Len())
		p.report.Overflow()
	default:
		p.logger.Warn("ignoring event of unknown kind", "kind", int(ev.Kind), "path", ev.Path)
	}

	p.recorder.CacheSize(p.cache.Len())
	return err
}

func (p *Processor) handleCreate(ctx context.Context, path string) error {
	name := filepath.Base(path)

	snap, ok, err := p.take(ctx, Create.String(), path)
	if err != nil || !ok {
		return err
	}

	p.cache.Put(path, snap)
	p.report.Created(name)
	return nil
}

func (p *Processor) handleModify(ctx context.Context, path string) error {
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		p.logger.Debug("ignoring modify of missing or non-regular entry", "path", path, "error", err)
		return nil
	}

	snap, ok, err := p.take(ctx, Modify.String(), path)
	if err != nil || !ok {
		return err
	}

	prev, had := p.cache.Put(path, snap)
	if !had {
		p.report.NoBaseline(name)
		return nil
	}

	delta := lines.Diff(prev.Lines, snap.Lines)
	if delta.Empty() {
		if prev.Checksum != snap.Checksum {
			p.logger.Debug("checksum changed without line-level change",
				"path", path,
				"old_checksum", prev.ChecksumHex(),
				"new_checksum", snap.ChecksumHex())
		}
		p.report.Unchanged(name)
		return nil
	}

	p.logger.Debug("line-level change",
		"path", path,
		"added", delta.Added.Total(),
		"removed", delta.Removed.Total())
	p.report.Modified(name, delta)
	return nil
}

func (p *Processor) handleDelete(path string) {
	name := filepath.Base(path)

	snap, ok := p.cache.Remove(path)
	if !ok {
		p.report.DeletedUnknown(name)
		return
	}
	p.report.Deleted(name, snap)
}

// take snapshots path and reports failures. ok is false when the event
// must be skipped; err is only set when ctx is done.
func (p *Processor) take(ctx context.Context, label, path string) (snapshot.Snapshot, bool, error) {
	name := filepath.Base(path)

	snap, res, err := p.snapper.Take(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return snapshot.Snapshot{}, false, ctxErr
		}

		reason := failureReason(err)
		p.recorder.SnapshotFailure(reason)
		p.logger.Warn("snapshot failed", "kind", label, "path", path, "reason", reason, "error", err)

		if reason == "not_regular" {
			p.report.Skipped(label, name)
		} else {
			p.report.Unavailable(label, name, err)
		}
		return snapshot.Snapshot{}, false, nil
	}

	if !res.Stable {
		p.recorder.ProbeFallback()
		p.logger.Warn("file size did not settle, snapshot may be incomplete",
			"path", path,
			"attempts", res.Attempts,
			"size", snap.Size)
	}
	return snap, true, nil
}

// Seed snapshots the regular files already present in dir without
// reporting them, so their first modification has a baseline.
func (p *Processor) Seed(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	seeded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		snap, ok, err := p.take(ctx, "SEED", path)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		p.cache.Put(path, snap)
		seeded++
		p.logger.Debug("seeded snapshot", "path", path, "size", snap.Size, "checksum", snap.ChecksumHex())
	}

	p.recorder.CacheSize(p.cache.Len())
	p.logger.Info("seeded existing files", "dir", dir, "count", seeded)
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, probe.ErrNotRegular):
		return "not_regular"
	case errors.Is(err, lines.ErrDecode):
		return "decode"
	case errors.Is(err, probe.ErrUnavailable):
		return "unavailable"
	default:
		return "io"
	}
}
