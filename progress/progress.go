// Package progress renders a live terminal status line for a running
// transfer, fed by the pipeline's stats events.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/zimap/mboxarc/stats"
)

// Monitor is a single stats subscriber that drives a pterm spinner and
// collects the final summary. Exactly one subscriber must drain the
// event stream, so the monitor replaces the plain stats reporter rather
// than running next to it.
type Monitor struct {
	spinner   *pterm.SpinnerPrinter
	collector *stats.Collector
	started   time.Time
	enabled   bool

	scanned     int
	transferred int
	skipped     int
	errors      int
}

// NewMonitor attaches a monitor to the event stream. The live spinner
// is only shown at the "info" log level; other levels still collect and
// print the summary.
func NewMonitor(stream stats.EventStream, logLevel string) *Monitor {
	m := &Monitor{
		collector: stats.NewCollector(),
		started:   time.Now(),
		enabled:   logLevel == "info",
	}

	if m.enabled {
		spinner, _ := pterm.DefaultSpinner.Start("Waiting for messages")
		m.spinner = spinner
	}

	stream.SubscribeStats("progress-monitor", m.consume)
	return m
}

// Summary returns the counters collected so far.
func (m *Monitor) Summary() stats.Summary {
	return m.collector.Snapshot()
}

func (m *Monitor) consume(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			m.finish(ctx.Err())
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				m.finish(nil)
				return nil
			}
			m.apply(evt)
		}
	}
}

func (m *Monitor) apply(evt stats.Event) {
	m.collector.Apply(evt)

	switch evt.Type {
	case stats.EventTypeScanned:
		m.scanned++
	case stats.EventTypeStored, stats.EventTypeUploaded, stats.EventTypeDryRunUpload:
		m.transferred++
	case stats.EventTypeDuplicate, stats.EventTypeFiltered:
		m.skipped++
	case stats.EventTypeError:
		m.errors++
		if m.enabled && evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}

	if m.enabled && m.spinner != nil {
		m.spinner.UpdateText(fmt.Sprintf("scanned %d · transferred %d · skipped %d",
			m.scanned, m.transferred, m.skipped))
	}
}

func (m *Monitor) finish(cause error) {
	summary := m.collector.Snapshot()
	duration := time.Since(m.started)

	if m.enabled && m.spinner != nil {
		if cause != nil || summary.Errors > 0 {
			m.spinner.Fail("Transfer finished with errors")
		} else {
			m.spinner.Success("Transfer complete")
		}
	}

	if m.enabled {
		pterm.Println()
		pterm.DefaultSection.Println("Summary")
		pterm.Info.Printf("Duration: %v\n", duration.Round(time.Millisecond))
		pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
		pterm.Info.Printf("Enqueued: %d\n", summary.Enqueued)
		pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
		pterm.Info.Printf("Stored: %d\n", summary.Stored)
		pterm.Info.Printf("Uploaded: %d\n", summary.Uploaded)
		pterm.Info.Printf("Dry-run: %d\n", summary.DryRunUploaded)
		pterm.Info.Printf("Duplicates (skipped): %d\n", summary.Duplicates)
		pterm.Info.Printf("Errors: %d\n", summary.Errors)
		if summary.LastError != nil {
			pterm.Error.Printf("Last error: %v\n", summary.LastError)
		}
	}
}
