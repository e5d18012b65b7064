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

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Upload archived messages back into IMAP mailboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateIMAP(); err != nil {
			return err
		}
		if cfg.ForeignMbox != "" && cfg.TargetMailbox == "" {
			return fmt.Errorf("--foreign-mbox requires --target-mailbox")
		}

		logger, cleanup, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		slog.SetDefault(logger)
		logger.Info("starting import", "host", cfg.IMAPHost, "archiveDir", cfg.ArchiveDir, "dryRun", cfg.DryRun)

		return runImport(cfg, logger)
	},
}

func init() {
	config.RegisterArchiveFlags(importCmd)
	if err := config.RegisterIMAPFlags(importCmd); err != nil {
		panic(err)
	}
	if err := config.RegisterPipelineFlags(importCmd); err != nil {
		panic(err)
	}
	config.RegisterImportFlags(importCmd)
	rootCmd.AddCommand(importCmd)
}

func runImport(cfg config.Config, logger *slog.Logger) error {
	applyStoreSettings(cfg)

	fltr, err := newFilter(cfg)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	r, err := runner.New(cfg, stats.StageArchive, fltr, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	attachReporter(r, cfg, logger)

	readOpts := archive.ReadOptions{
		Delimiter:   cfg.Delimiter,
		Mailboxes:   cfg.Mailboxes,
		ForeignFile: cfg.ForeignMbox,
	}
	if _, err := archive.NewReader(readOpts, r, logger); err != nil {
		return fmt.Errorf("archive.NewReader: %w", err)
	}

	uploadOpts := imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		LegacyUTF7:         cfg.LegacyUTF7,
		TargetMailbox:      cfg.TargetMailbox,
		DryRun:             cfg.DryRun,
	}
	if _, err := imap.NewUploader(uploadOpts, r, logger); err != nil {
		return fmt.Errorf("imap.NewUploader: %w", err)
	}

	return r.Start()
}
