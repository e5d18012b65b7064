// Package archive connects the mbox store to the pipeline: the writer
// stores delivered messages into versioned archive files, the reader
// produces messages from existing archives.
package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zimap/mboxarc/filter"
	"github.com/zimap/mboxarc/mbox"
	"github.com/zimap/mboxarc/model"
	"github.com/zimap/mboxarc/runner"
	"github.com/zimap/mboxarc/state"
	"github.com/zimap/mboxarc/stats"
)

type WriteOptions struct {
	Delimiter rune
	// Sender goes on the mbox separator line, usually the account name.
	Sender string
	Quoted bool
	DryRun bool
}

// Writer drains the delivery channel and frames each message into the
// archive file of its mailbox. Messages must arrive grouped by mailbox;
// each new mailbox name opens a fresh archive stream.
type Writer struct {
	opts    WriteOptions
	runner  *runner.Runner
	tracker state.Tracker
	store   *mbox.Store
	logger  *slog.Logger

	current string
	opened  map[string]bool
}

func NewWriter(opts WriteOptions, r *runner.Runner, logger *slog.Logger) (*Writer, error) {
	if opts.Sender == "" {
		return nil, fmt.Errorf("archive sender is empty")
	}
	tracker := r.Tracker()
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	writer := &Writer{
		opts:    opts,
		runner:  r,
		tracker: tracker,
		store:   mbox.NewStore(logger),
		logger:  logger,
		opened:  make(map[string]bool),
	}
	r.AddStage("archive-write", writer.run)
	return writer, nil
}

func (w *Writer) run(ctx context.Context) error {
	defer w.store.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-w.runner.Deliveries():
			if !ok {
				return nil
			}
			if err := w.storeMessage(msg); err != nil {
				w.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}
		}
	}
}

func (w *Writer) storeMessage(msg model.Message) error {
	if msg.Mailbox == "" {
		return fmt.Errorf("message %s has no mailbox", msg.ID)
	}

	if w.opts.DryRun {
		if err := w.mark(msg); err != nil {
			return err
		}
		w.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeDryRunUpload, MessageID: msg.ID, Mailbox: msg.Mailbox})
		if w.logger != nil {
			w.logger.Debug("dry-run store", "messageID", msg.ID, "mailbox", msg.Mailbox)
		}
		return nil
	}

	if msg.Mailbox != w.current {
		if w.opened[msg.Mailbox] {
			return fmt.Errorf("messages for mailbox %s arrived out of order", msg.Mailbox)
		}
		if _, err := w.store.WriteMailbox(msg.Mailbox, w.opts.Delimiter); err != nil {
			return fmt.Errorf("open archive for %s: %w", msg.Mailbox, err)
		}
		w.current = msg.Mailbox
		w.opened[msg.Mailbox] = true
		if w.logger != nil {
			w.logger.Info("archiving mailbox", "mailbox", msg.Mailbox)
		}
	}

	// Internal dates come with the server's UTC offset; the separator
	// line carries no zone, so normalize to UTC first.
	header, body := filter.SplitRawMessage(msg.Raw)
	if err := w.store.WriteMail(w.opts.Sender, msg.Date.UTC(), msg.Flags, header, body, w.opts.Quoted); err != nil {
		return fmt.Errorf("store message %s: %w", msg.ID, err)
	}

	if err := w.mark(msg); err != nil {
		return err
	}

	w.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeStored, MessageID: msg.ID, Mailbox: msg.Mailbox})
	return nil
}

func (w *Writer) mark(msg model.Message) error {
	return w.tracker.MarkTransferred(state.Record{
		Hash:      msg.Hash,
		Mailbox:   msg.Mailbox,
		MessageID: msg.ID,
	})
}
