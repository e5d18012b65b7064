package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/zimap/mboxarc/archive"
	"github.com/zimap/mboxarc/config"
	"github.com/zimap/mboxarc/imap"
	"github.com/zimap/mboxarc/runner"
	"github.com/zimap/mboxarc/stats"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export IMAP mailboxes into mbox archive files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateIMAP(); err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		slog.SetDefault(logger)
		logger.Info("starting export", "host", cfg.IMAPHost, "archiveDir", cfg.ArchiveDir, "dryRun", cfg.DryRun)

		return runExport(cfg, logger)
	},
}

func init() {
	config.RegisterArchiveFlags(exportCmd)
	if err := config.RegisterIMAPFlags(exportCmd); err != nil {
		panic(err)
	}
	if err := config.RegisterPipelineFlags(exportCmd); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(exportCmd)
}

func runExport(cfg config.Config, logger *slog.Logger) error {
	applyStoreSettings(cfg)

	fltr, err := newFilter(cfg)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	r, err := runner.New(cfg, stats.StageIMAP, fltr, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	attachReporter(r, cfg, logger)

	fetchOpts := imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		LegacyUTF7:         cfg.LegacyUTF7,
		Mailboxes:          cfg.Mailboxes,
	}
	if _, err := imap.NewFetcher(fetchOpts, r, logger); err != nil {
		return fmt.Errorf("imap.NewFetcher: %w", err)
	}

	writeOpts := archive.WriteOptions{
		Delimiter: cfg.Delimiter,
		Sender:    cfg.IMAPUser,
		Quoted:    cfg.Quoted,
		DryRun:    cfg.DryRun,
	}
	if _, err := archive.NewWriter(writeOpts, r, logger); err != nil {
		return fmt.Errorf("archive.NewWriter: %w", err)
	}

	return r.Start()
}
