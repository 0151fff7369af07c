package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrWatchInvalidated means the watch registration ended on its own,
	// typically because the watched directory was removed or renamed.
	ErrWatchInvalidated = errors.New("watch registration invalidated")
	// ErrSourceClosed means the source was closed by its owner.
	ErrSourceClosed = errors.New("source closed")
)

// Source delivers notifications for one directory. Events is closed when
// the source ends, Errors right after it; Err then tells why.
type Source interface {
	Events() <-chan WatchEvent
	Errors() <-chan error
	Err() error
	Close() error
}

// FSSource is a Source backed by fsnotify. It watches a single directory,
// non-recursively.
type FSSource struct {
	root      string
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger

	events chan WatchEvent
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

// NewFSSource starts watching dir, which must be an existing directory.
func NewFSSource(dir string, logger *slog.Logger) (*FSSource, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path is not a directory: %s", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}

	s := &FSSource{
		root:      root,
		fsWatcher: fsw,
		logger:    logger,
		events:    make(chan WatchEvent, 64),
		errors:    make(chan error, 8),
		done:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Root returns the absolute watched directory.
func (s *FSSource) Root() string { return s.root }

// Events returns the translated event stream.
func (s *FSSource) Events() <-chan WatchEvent { return s.events }

// Errors returns watch errors other than overflow, which arrives as an
// Overflow event instead.
func (s *FSSource) Errors() <-chan error { return s.errors }

// Err returns why the source ended, or nil while it is running.
func (s *FSSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the source and releases the fsnotify watcher.
func (s *FSSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setErr(ErrSourceClosed)
		close(s.done)
		err = s.fsWatcher.Close()
		s.wg.Wait()
	})
	return err
}

func (s *FSSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// run translates fsnotify events in arrival order.
func (s *FSSource) run() {
	defer s.wg.Done()
	defer close(s.errors)
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-s.fsWatcher.Events:
			if !ok {
				s.setErr(ErrWatchInvalidated)
				return
			}
			if filepath.Clean(ev.Name) == s.root && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				s.logger.Info("watched directory went away", "path", s.root, "op", ev.Op.String())
				s.setErr(fmt.Errorf("%w: %s %s", ErrWatchInvalidated, s.root, ev.Op))
				return
			}
			we, ok := translate(s.root, ev)
			if !ok {
				s.logger.Debug("ignoring notification", "path", ev.Name, "op", ev.Op.String())
				continue
			}
			if !s.send(we) {
				return
			}

		case err, ok := <-s.fsWatcher.Errors:
			if !ok {
				s.setErr(ErrWatchInvalidated)
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				if !s.send(WatchEvent{Kind: Overflow, Path: s.root}) {
					return
				}
				continue
			}
			select {
			case s.errors <- err:
			case <-s.done:
				return
			}
		}
	}
}

func (s *FSSource) send(ev WatchEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// translate maps an fsnotify event for a direct child of root to a
// WatchEvent. A rename away from the directory looks like a deletion from
// its point of view; chmod-only events are dropped.
func translate(root string, ev fsnotify.Event) (WatchEvent, bool) {
	path := filepath.Clean(ev.Name)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if filepath.Dir(path) != root {
		return WatchEvent{}, false
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return WatchEvent{Kind: Delete, Path: path}, true
	case ev.Has(fsnotify.Create):
		return WatchEvent{Kind: Create, Path: path}, true
	case ev.Has(fsnotify.Write):
		return WatchEvent{Kind: Modify, Path: path}, true
	default:
		return WatchEvent{}, false
	}
}
