// Package cmd defines the mboxarc command tree: export, import, list
// and archive-stats.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zimap/mboxarc/config"
	"github.com/zimap/mboxarc/filter"
	"github.com/zimap/mboxarc/mbox"
	"github.com/zimap/mboxarc/progress"
	"github.com/zimap/mboxarc/runner"
	"github.com/zimap/mboxarc/stats"
)

var rootCmd = &cobra.Command{
	Use:           "mboxarc",
	Short:         "Archive IMAP mailboxes into versioned mbox files and restore them",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.RegisterLogFlags(rootCmd.PersistentFlags())
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// attachReporter subscribes exactly one stats consumer: the live
// progress monitor at the info level, the plain slog reporter
// otherwise.
func attachReporter(r *runner.Runner, cfg config.Config, logger *slog.Logger) {
	if cfg.LogLevel == "info" {
		progress.NewMonitor(r, cfg.LogLevel)
		return
	}
	stats.NewReporter(r, logger)
}

// applyStoreSettings publishes the archive configuration to the store.
func applyStoreSettings(cfg config.Config) {
	mbox.Configure(mbox.Settings{
		BaseFolder:     cfg.ArchiveDir,
		ExcludedChars:  cfg.ExcludedChars,
		Allow8BitNames: cfg.Allow8BitNames,
		KeepVersions:   cfg.KeepVersions,
	})
}

func newFilter(cfg config.Config) (*filter.Filter, error) {
	return filter.New(filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
	})
}

// setupLogger builds the slog logger, teeing into a timestamped file
// when a log directory is configured.
func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mboxarc-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
