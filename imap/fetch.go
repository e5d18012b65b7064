package imap

import (
	"context"
	"fmt"
	"log/slog"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/zimap/mboxarc/model"
	"github.com/zimap/mboxarc/runner"
	"github.com/zimap/mboxarc/textcodec"
)

// Fetcher walks the selected server mailboxes and feeds every message
// into the pipeline source channel.
type Fetcher struct {
	opts   Options
	runner *runner.Runner
	logger *slog.Logger
}

func NewFetcher(opts Options, r *runner.Runner, logger *slog.Logger) (*Fetcher, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	fetcher := &Fetcher{
		opts:   opts,
		runner: r,
		logger: logger,
	}
	r.AddStage("imap-fetch", fetcher.run)
	return fetcher, nil
}

func (f *Fetcher) run(ctx context.Context) error {
	defer f.runner.CloseSource()

	client, cleanup, err := dial(ctx, f.opts, f.logger)
	if err != nil {
		return err
	}
	defer cleanup()

	boxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return fmt.Errorf("list mailboxes: %w", err)
	}

	for _, box := range boxes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hasAttr(box.Attrs, imapv2.MailboxAttrNoSelect) {
			continue
		}
		name := f.opts.displayName(box.Mailbox)
		if !f.opts.wantsMailbox(name) {
			continue
		}
		if err := f.fetchMailbox(ctx, client, box.Mailbox, name); err != nil {
			return fmt.Errorf("mailbox %s: %w", name, err)
		}
	}
	return nil
}

// fetchMailbox selects one mailbox read-only and emits all its messages
// in mailbox order, so the consuming stage sees each mailbox as one
// contiguous run.
func (f *Fetcher) fetchMailbox(ctx context.Context, client *imapclient.Client, wire, name string) error {
	sel, err := client.Select(wire, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	if sel.NumMessages == 0 {
		if f.logger != nil {
			f.logger.Debug("mailbox is empty", "mailbox", name)
		}
		return nil
	}

	var seq imapv2.SeqSet
	seq.AddRange(1, sel.NumMessages)

	fetchOpts := &imapv2.FetchOptions{
		UID:          true,
		Flags:        true,
		InternalDate: true,
		Envelope:     true,
		BodySection:  []*imapv2.FetchItemBodySection{{}},
	}
	bufs, err := client.Fetch(seq, fetchOpts).Collect()
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	if f.logger != nil {
		f.logger.Info("fetched mailbox", "mailbox", name, "messages", len(bufs))
	}

	for _, buf := range bufs {
		raw := buf.FindBodySection(&imapv2.FetchItemBodySection{})
		id := fmt.Sprintf("%s/uid:%d", name, uint32(buf.UID))

		if len(raw) == 0 {
			f.emit(ctx, model.Envelope{Err: fmt.Errorf("message %s has no body section", id)})
			continue
		}

		if f.logger != nil && buf.Envelope != nil {
			f.logger.Debug("fetched message",
				"id", id,
				"subject", textcodec.DecodeRfc2047Text(buf.Envelope.Subject),
				"date", buf.InternalDate)
		}

		msg := model.Message{
			Mailbox: name,
			ID:      id,
			Hash:    model.HashRaw(raw),
			Date:    buf.InternalDate,
			Flags:   joinFlags(buf.Flags),
			Size:    int64(len(raw)),
			Raw:     raw,
		}
		if !f.emit(ctx, model.Envelope{Message: msg}) {
			return ctx.Err()
		}
	}
	return nil
}

func (f *Fetcher) emit(ctx context.Context, envelope model.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case f.runner.SourceWriter() <- envelope:
		return true
	}
}

func hasAttr(attrs []imapv2.MailboxAttr, want imapv2.MailboxAttr) bool {
	for _, attr := range attrs {
		if attr == want {
			return true
		}
	}
	return false
}
