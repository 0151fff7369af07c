// Package metrics exposes Prometheus instrumentation for the monitor and
// serves it over HTTP.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linewatch"

// Metrics implements monitor.Recorder on top of a private registry.
type Metrics struct {
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	fallbacks   prometheus.Counter
	watchErrors prometheus.Counter
	cached      prometheus.Gauge
}

// New creates and registers the monitor's collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Filesystem notifications processed, by kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Snapshots that could not be taken, by reason.",
		}, []string{"reason"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_fallbacks_total",
			Help:      "Snapshots taken after the file size failed to settle.",
		}),
		watchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_errors_total",
			Help:      "Errors reported by the notification source.",
		}),
		cached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_snapshots",
			Help:      "Files with a stable snapshot in the cache.",
		}),
	}

	m.registry.MustRegister(m.events, m.failures, m.fallbacks, m.watchErrors, m.cached)
	return m
}

// Event counts a processed notification.
func (m *Metrics) Event(kind string) { m.events.WithLabelValues(kind).Inc() }

// SnapshotFailure counts a failed snapshot.
func (m *Metrics) SnapshotFailure(reason string) { m.failures.WithLabelValues(reason).Inc() }

// ProbeFallback counts a best-effort snapshot.
func (m *Metrics) ProbeFallback() { m.fallbacks.Inc() }

// WatchError counts a notification source error.
func (m *Metrics) WatchError() { m.watchErrors.Inc() }

// CacheSize records the number of cached snapshots.
func (m *Metrics) CacheSize(n int) { m.cached.Set(float64(n)) }

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Serve runs the metrics endpoint on ln until ctx is done, then shuts the
// server down gracefully.
func (m *Metrics) Serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	server := &http.Server{
		Handler:           m.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
