package monitor

import (
	"context"
	"errors"
	"log/slog"
)

// Monitor is the single consumer loop: it drains a Source and feeds every
// event, in arrival order, to a Processor.
type Monitor struct {
	dir    string
	source Source
	proc   *Processor
	report *Reporter
	logger *slog.Logger
	rec    Recorder
}

// New creates a Monitor for dir. rec may be nil.
func New(dir string, source Source, proc *Processor, report *Reporter, logger *slog.Logger, rec Recorder) *Monitor {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Monitor{
		dir:    dir,
		source: source,
		proc:   proc,
		report: report,
		logger: logger,
		rec:    rec,
	}
}

// Run processes events until ctx is done or the watch registration
// becomes invalid. Both are normal terminations and return nil; the
// source is closed before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	defer func() {
		if err := m.source.Close(); err != nil {
			m.logger.Warn("failed to close watch source", "error", err)
		}
	}()

	m.logger.Info("monitor started", "dir", m.dir)
	m.report.Watching(m.dir)

	events := m.source.Events()
	errs := m.source.Errors()

	for {
		select {
		case <-ctx.Done():
			m.stop("stopped")
			return nil

		case ev, ok := <-events:
			if !ok {
				reason := m.source.Err()
				if reason == nil {
					reason = ErrWatchInvalidated
				}
				m.drainErrors(errs)
				m.logger.Info("watch registration ended", "dir", m.dir, "reason", reason)
				m.stop(reason.Error())
				return nil
			}
			if err := m.proc.Handle(ctx, ev); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					m.stop("stopped")
					return nil
				}
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.watchError(err)
		}
	}
}

func (m *Monitor) watchError(err error) {
	m.rec.WatchError()
	m.logger.Error("watch error", "dir", m.dir, "error", err)
	m.report.WatchError(err)
}

// drainErrors reports errors still queued once the event stream has ended.
func (m *Monitor) drainErrors(errs <-chan error) {
	if errs == nil {
		return
	}
	for err := range errs {
		m.watchError(err)
	}
}

func (m *Monitor) stop(reason string) {
	if err := m.report.Err(); err != nil {
		m.logger.Error("report output failed", "error", err)
	}
	m.logger.Info("monitor stopped", "dir", m.dir, "reason", reason)
	m.report.Stopped(m.dir, reason)
}
