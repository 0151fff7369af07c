// Package probe decides when a file has stopped being written to.
//
// A change notification can arrive while a writer is still appending (a
// large copy, a slow editor save). The prober samples the file size twice,
// Interval apart, and calls the file stable once both samples agree. After
// Attempts unsuccessful rounds it takes one last sample and accepts it
// anyway; Result.Stable is false in that case so callers can tell the
// snapshot may be of a half-written file.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Defaults match the monitor's out-of-the-box behaviour.
const (
	DefaultAttempts = 3
	DefaultInterval = 120 * time.Millisecond
)

var (
	// ErrUnavailable means the file vanished or could not be stat'ed.
	ErrUnavailable = errors.New("file unavailable")
	// ErrNotRegular means the path is a directory, device or other
	// non-regular entry (symlinks are followed first).
	ErrNotRegular = errors.New("not a regular file")
)

// Result describes the outcome of a probe.
type Result struct {
	Size int64
	// Stable is false when the attempt budget ran out and Size comes from
	// the best-effort final read.
	Stable bool
	// Attempts is the number of rounds that were sampled.
	Attempts int
}

// Prober samples file sizes. The zero value is not usable; use New.
type Prober struct {
	attempts int
	interval time.Duration

	stat  func(string) (os.FileInfo, error)
	sleep func(context.Context, time.Duration) error
}

// New returns a Prober. Non-positive arguments fall back to the defaults.
func New(attempts int, interval time.Duration) *Prober {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Prober{
		attempts: attempts,
		interval: interval,
		stat:     os.Stat,
		sleep:    sleepContext,
	}
}

// Attempts returns the configured attempt budget.
func (p *Prober) Attempts() int { return p.attempts }

// Interval returns the configured sampling interval.
func (p *Prober) Interval() time.Duration { return p.interval }

// Probe waits until the size of path stops changing. It returns
// ErrNotRegular before sleeping if path is not a regular file, ErrUnavailable
// if the file disappears while being sampled, and ctx.Err() if ctx is done
// during a sleep.
func (p *Prober) Probe(ctx context.Context, path string) (Result, error) {
	if _, err := p.size(path); err != nil {
		return Result{}, err
	}

	for attempt := 1; attempt <= p.attempts; attempt++ {
		before, err := p.size(path)
		if err != nil {
			return Result{Attempts: attempt}, err
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return Result{Attempts: attempt}, err
		}
		after, err := p.size(path)
		if err != nil {
			return Result{Attempts: attempt}, err
		}
		if before == after {
			return Result{Size: after, Stable: true, Attempts: attempt}, nil
		}
	}

	// Still growing: accept whatever is there now.
	size, err := p.size(path)
	if err != nil {
		return Result{Attempts: p.attempts}, err
	}
	return Result{Size: size, Stable: false, Attempts: p.attempts}, nil
}

func (p *Prober) size(path string) (int64, error) {
	info, err := p.stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	return info.Size(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
