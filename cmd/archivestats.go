package cmd

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zimap/mboxarc/config"
	"github.com/zimap/mboxarc/filter"
	"github.com/zimap/mboxarc/mbox"
	"github.com/zimap/mboxarc/stats"
	"github.com/zimap/mboxarc/textcodec"
)

var (
	statsReportDir string
	statsTopN      int
	statsVersion   uint32
)

var archiveStatsCmd = &cobra.Command{
	Use:   "archive-stats [mailbox]",
	Short: "Analyse one mailbox archive and show header statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}
		applyStoreSettings(cfg)

		f, err := newFilter(cfg)
		if err != nil {
			return err
		}

		return runArchiveStats(cfg, args[0], f)
	},
}

func init() {
	config.RegisterArchiveFlags(archiveStatsCmd)
	config.RegisterFilterFlags(archiveStatsCmd)
	archiveStatsCmd.Flags().StringVarP(&statsReportDir, "output", "o", "", "Output directory for CSV reports (omit to skip reports)")
	archiveStatsCmd.Flags().IntVarP(&statsTopN, "top", "t", 10, "Number of top items to display in statistics")
	archiveStatsCmd.Flags().Uint32Var(&statsVersion, "version", 0, "Archive version to analyse (0 = latest)")
	rootCmd.AddCommand(archiveStatsCmd)
}

func runArchiveStats(cfg config.Config, mailbox string, f *filter.Filter) error {
	store := mbox.NewStore(nil)
	if _, err := store.ReadMailbox(mailbox, statsVersion, cfg.Delimiter); err != nil {
		return err
	}

	headersToTrack := []string{"From", "To", "Subject", "Delivered-To"}
	counter := make(map[string]map[string]int, len(headersToTrack))
	for _, h := range headersToTrack {
		counter[h] = make(map[string]int)
	}

	messageCount := 0
	skippedCount := 0
	for {
		msg, err := store.ReadMail()
		if errors.Is(err, mbox.ErrNoMessage) {
			break
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		header, body := filter.SplitRawMessage(msg.Raw)
		if !f.Allows(header, body) {
			skippedCount++
			continue
		}
		messageCount++

		fields, err := parseHeader(header)
		if err != nil {
			continue // a malformed header only skips the counters
		}
		for _, name := range headersToTrack {
			if value := fields.Get(name); value != "" {
				counter[name][textcodec.DecodeRfc2047Text(value)]++
			}
		}
	}

	total := messageCount + skippedCount
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(skippedCount) / float64(total) * 100
	}
	fmt.Printf("Mailbox %s: %d messages (skipped %d by filters, %.2f%%)\n\n", mailbox, messageCount, skippedCount, filterPercent)

	for _, header := range headersToTrack {
		fmt.Printf("Top %d %s:\n", statsTopN, header)
		stats.PrettyPrintTop(counter[header], statsTopN)
		fmt.Println()
	}

	if statsReportDir != "" {
		if err := saveCSVReports(counter, headersToTrack, statsReportDir, 1000); err != nil {
			return fmt.Errorf("save CSV reports: %w", err)
		}
		fmt.Printf("Reports saved to directory: %s\n", statsReportDir)
	}

	return nil
}

// parseHeader reads the MIME header fields from the header part of a
// raw message.
func parseHeader(header []byte) (textproto.MIMEHeader, error) {
	var buf bytes.Buffer
	buf.Grow(len(header) + 4)
	buf.Write(header)
	if len(header) > 0 && !bytes.HasSuffix(header, []byte("\n")) {
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	reader := textproto.NewReader(bufio.NewReader(&buf))
	return reader.ReadMIMEHeader()
}

func saveCSVReports(counter map[string]map[string]int, headers []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, header := range headers {
		counts := counter[header]

		filename := fmt.Sprintf("report_%s.csv", normalizeHeaderName(header))
		filePath := filepath.Join(dir, filename)

		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)

		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}

		type pair struct {
			Key   string
			Value int
		}
		var pairs []pair
		for k, v := range counts {
			pairs = append(pairs, pair{k, v})
		}
		sort.Slice(pairs, func(i, j int) bool {
			return pairs[i].Value > pairs[j].Value
		})

		for i := 0; i < limit && i < len(pairs); i++ {
			record := []string{
				pairs[i].Key,
				strconv.Itoa(pairs[i].Value),
			}
			if err := writer.Write(record); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()

		if err := writer.Error(); err != nil {
			return err
		}
	}

	return nil
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
