package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zimap/mboxarc/mbox"
	"github.com/zimap/mboxarc/model"
	"github.com/zimap/mboxarc/runner"
)

type ReadOptions struct {
	Delimiter rune
	// Mailboxes restricts reading to the named mailboxes; empty means
	// every archive found in the base folder.
	Mailboxes []string
	// ForeignFile, when set, reads a single plain mbox file written by
	// another tool instead of scanning the archive folder.
	ForeignFile string
}

// Reader scans the archive folder and feeds every stored message into
// the pipeline source channel.
type Reader struct {
	opts   ReadOptions
	runner *runner.Runner
	store  *mbox.Store
	logger *slog.Logger
}

func NewReader(opts ReadOptions, r *runner.Runner, logger *slog.Logger) (*Reader, error) {
	reader := &Reader{
		opts:   opts,
		runner: r,
		store:  mbox.NewStore(logger),
		logger: logger,
	}
	r.AddStage("archive-read", reader.run)
	return reader, nil
}

func (r *Reader) run(ctx context.Context) error {
	defer r.runner.CloseSource()
	defer r.store.Close()

	if r.opts.ForeignFile != "" {
		return r.readForeign(ctx)
	}

	files, err := r.store.ParseFolder("", r.opts.Delimiter)
	if err != nil {
		return err
	}

	for _, mf := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.wants(mf.MailboxName) {
			continue
		}
		if err := r.readMailbox(ctx, mf.MailboxName); err != nil {
			return fmt.Errorf("archive %s: %w", mf.MailboxName, err)
		}
	}
	return nil
}

// readMailbox loads the latest archive version of one mailbox and emits
// its messages in file order.
func (r *Reader) readMailbox(ctx context.Context, name string) error {
	if _, err := r.store.ReadMailbox(name, 0, r.opts.Delimiter); err != nil {
		return err
	}

	count := 0
	for {
		offset := r.store.Offset()
		msg, err := r.store.ReadMail()
		if errors.Is(err, mbox.ErrNoMessage) {
			break
		}
		if err != nil {
			return err
		}

		count++
		out := model.Message{
			Mailbox: name,
			ID:      fmt.Sprintf("%s@%d", name, offset),
			Hash:    model.HashRaw(msg.Raw),
			Date:    msg.Date,
			Flags:   msg.Flags,
			Size:    int64(len(msg.Raw)),
			Raw:     msg.Raw,
		}
		if !r.emit(ctx, model.Envelope{Message: out}) {
			return ctx.Err()
		}
	}

	if r.logger != nil {
		r.logger.Info("read archive", "mailbox", name, "messages", count)
	}
	return nil
}

// readForeign imports a plain mbox file. The messages carry no mailbox
// name; the uploader's target override decides where they go.
func (r *Reader) readForeign(ctx context.Context) error {
	idx := 0
	return mbox.ReadForeign(r.opts.ForeignFile, func(raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx++
		msg := model.Message{
			ID:   fmt.Sprintf("%s#%d", r.opts.ForeignFile, idx),
			Hash: model.HashRaw(raw),
			Size: int64(len(raw)),
			Raw:  raw,
		}
		if !r.emit(ctx, model.Envelope{Message: msg}) {
			return ctx.Err()
		}
		return nil
	})
}

func (r *Reader) wants(name string) bool {
	if len(r.opts.Mailboxes) == 0 {
		return true
	}
	for _, m := range r.opts.Mailboxes {
		if m == name {
			return true
		}
	}
	return false
}

func (r *Reader) emit(ctx context.Context, envelope model.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case r.runner.SourceWriter() <- envelope:
		return true
	}
}
