package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/linewatch/internal/activation"
	"github.com/schaermu/linewatch/internal/config"
	"github.com/schaermu/linewatch/internal/metrics"
	"github.com/schaermu/linewatch/internal/monitor"
	"github.com/schaermu/linewatch/internal/probe"
	"github.com/schaermu/linewatch/internal/snapshot"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Report stream; tests swap it out.
	reportOut io.Writer = os.Stdout
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "linewatch [dir]",
	Short: "Report line-level changes to files in a directory",
	Long: `linewatch watches a directory for files being created, modified and deleted.

Once a file stops growing it records its size, a 16-bit checksum and a count of
every distinct line. Each later modification is reported as the lines that were
added or removed; each deletion reports the last known size and checksum.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("linewatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/linewatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(versionCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(args) == 1 {
		if err := cfg.SetWatchPath(args[0]); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return run(ctx, cfg, logger)
}

// run wires the monitor together and blocks until it ends.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	enc, err := cfg.TextEncoding()
	if err != nil {
		return err
	}

	source, err := monitor.NewFSSource(cfg.Watch.Path, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	builder := snapshot.NewBuilder(
		probe.New(cfg.Probe.Attempts, cfg.Probe.Interval),
		snapshot.Options{
			BufferSize:   cfg.Snapshot.BufferSize,
			Encoding:     enc,
			MaxLineBytes: cfg.Snapshot.MaxLineBytes,
		})
	report := monitor.NewReporter(reportOut, cfg.Report.TimestampFormat)
	proc := monitor.NewProcessor(snapshot.NewCache(), builder, report, logger, m)

	if cfg.Watch.SeedExisting {
		if err := proc.Seed(ctx, source.Root()); err != nil {
			_ = source.Close()
			return fmt.Errorf("failed to seed snapshots: %w", err)
		}
	}

	srv, err := startMetrics(ctx, cfg, m, logger)
	if err != nil {
		_ = source.Close()
		return err
	}

	logger.Info("watching directory",
		"dir", source.Root(),
		"probe_attempts", cfg.Probe.Attempts,
		"probe_interval", cfg.Probe.Interval,
		"encoding", enc.Name)

	runErr := monitor.New(source.Root(), source, proc, report, logger, m).Run(ctx)

	// The monitor may end on its own; take the metrics server down with it.
	srv.stop()
	return runErr
}

// startMetrics serves the metrics endpoint in the background when one is
// configured or socket-activated.
func startMetrics(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*metricsRun, error) {
	ln, activated, err := activation.Listen(cfg.Metrics.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics listener: %w", err)
	}
	if ln == nil {
		logger.Debug("metrics endpoint disabled")
		return nil, nil
	}
	if activated {
		logger.Info("using systemd socket activation for metrics", "addr", ln.Addr().String())
	}

	mctx, cancel := context.WithCancel(ctx)
	run := &metricsRun{cancel: cancel, done: make(chan error, 1), logger: logger}
	go func() {
		run.done <- m.Serve(mctx, ln, logger)
	}()
	return run, nil
}

type metricsRun struct {
	cancel context.CancelFunc
	done   chan error
	logger *slog.Logger
}

func (r *metricsRun) stop() {
	if r == nil {
		return
	}
	r.cancel()
	if err := <-r.done; err != nil {
		r.logger.Warn("metrics server stopped with error", "error", err)
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Logs go to stderr; stdout carries the report.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// An explicit --config must exist; the default location is optional.
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Debug("no home directory, using built-in defaults", "error", err)
			return config.Default(), nil
		}
		configPath = filepath.Join(home, ".config", "linewatch", "config.yaml")
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			logger.Debug("no config file, using built-in defaults", "path", configPath)
			return config.Default(), nil
		}
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"watch_path", cfg.Watch.Path,
		"seed_existing", cfg.Watch.SeedExisting,
		"probe_attempts", cfg.Probe.Attempts,
		"probe_interval", cfg.Probe.Interval,
		"encoding", cfg.Snapshot.Encoding,
		"metrics_enabled", cfg.MetricsEnabled())

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
