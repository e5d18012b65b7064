package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zimap/mboxarc/config"
	"github.com/zimap/mboxarc/mbox"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the mailbox archives in the archive folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}
		applyStoreSettings(cfg)

		store := mbox.NewStore(nil)
		files, err := store.ParseFolder("", cfg.Delimiter)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			pterm.Info.Printf("No archives found in %s\n", cfg.ArchiveDir)
			return nil
		}

		rows := pterm.TableData{{"Mailbox", "Latest", "Versions", "File"}}
		for _, mf := range files {
			rows = append(rows, []string{
				mf.MailboxName,
				strconv.FormatUint(uint64(mf.Latest), 10),
				joinVersions(mf.VersionNumbers),
				mf.FileName,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	config.RegisterArchiveFlags(listCmd)
	rootCmd.AddCommand(listCmd)
}

func joinVersions(versions []uint32) string {
	parts := make([]string, 0, len(versions))
	for _, v := range versions {
		parts = append(parts, fmt.Sprintf("%d", v))
	}
	return strings.Join(parts, ", ")
}
