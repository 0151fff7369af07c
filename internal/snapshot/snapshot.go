// Package snapshot records the last stable state of watched files.
package snapshot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schaermu/linewatch/internal/checksum"
	"github.com/schaermu/linewatch/internal/lines"
	"github.com/schaermu/linewatch/internal/probe"
)

// Snapshot is the state of one file at a moment it was judged stable.
// Snapshots are values; Lines must not be modified after creation.
type Snapshot struct {
	Size     uint64
	Checksum uint16
	Lines    lines.Counts
}

// ChecksumHex formats the checksum as four upper-case hex digits.
func (s Snapshot) ChecksumHex() string {
	return fmt.Sprintf("%04X", s.Checksum)
}

// Prober waits for a file to stop growing.
type Prober interface {
	Probe(ctx context.Context, path string) (probe.Result, error)
}

// Options configures a Builder.
type Options struct {
	BufferSize   int
	Encoding     lines.Encoding
	MaxLineBytes int
}

// Builder takes snapshots: it probes for stability, then reads the file
// once, feeding the same bytes to the checksum and the line counter.
type Builder struct {
	prober Prober
	opts   Options
}

// NewBuilder returns a Builder using p for stability detection.
func NewBuilder(p Prober, opts Options) *Builder {
	if opts.BufferSize < 2 {
		opts.BufferSize = checksum.DefaultBufferSize
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = lines.DefaultMaxLineBytes
	}
	return &Builder{prober: p, opts: opts}
}

// Take snapshots path. The returned probe.Result tells whether the size
// actually settled. Errors wrap probe.ErrUnavailable, probe.ErrNotRegular
// or lines.ErrDecode, or are the context's error.
func (b *Builder) Take(ctx context.Context, path string) (Snapshot, probe.Result, error) {
	res, err := b.prober.Probe(ctx, path)
	if err != nil {
		return Snapshot{}, res, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, res, fmt.Errorf("%w: %w", probe.ErrUnavailable, err)
	}
	defer func() {
		_ = f.Close()
	}()

	sum := checksum.New()
	src := io.TeeReader(bufio.NewReaderSize(f, b.opts.BufferSize), sum)

	counts, err := lines.Build(src, b.opts.Encoding, b.opts.MaxLineBytes)
	if err != nil {
		return Snapshot{}, res, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Snapshot{
		Size:     uint64(sum.Len()),
		Checksum: sum.Sum16(),
		Lines:    counts,
	}, res, nil
}
