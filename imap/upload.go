package imap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/zimap/mboxarc/model"
	"github.com/zimap/mboxarc/runner"
	"github.com/zimap/mboxarc/state"
	"github.com/zimap/mboxarc/stats"
)

var ErrMissingMessageID = errors.New("message id is empty")

// Uploader drains the delivery channel and appends each message into
// its server mailbox, restoring the internal date and flags the archive
// preserved.
type Uploader struct {
	opts       Options
	runner     *runner.Runner
	tracker    state.Tracker
	deliveries <-chan model.Message
	logger     *slog.Logger

	ensured map[string]bool
}

func NewUploader(opts Options, r *runner.Runner, logger *slog.Logger) (*Uploader, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	tracker := r.Tracker()
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	uploader := &Uploader{
		opts:       opts,
		runner:     r,
		tracker:    tracker,
		deliveries: r.Deliveries(),
		logger:     logger,
		ensured:    make(map[string]bool),
	}
	r.AddStage("imap-upload", uploader.run)
	return uploader, nil
}

func (u *Uploader) run(ctx context.Context) error {
	var (
		client  *imapclient.Client
		cleanup func()
	)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-u.deliveries:
			if !ok {
				return nil
			}
			if msg.ID == "" {
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, Err: ErrMissingMessageID})
				continue
			}
			if msg.Hash == "" {
				err := fmt.Errorf("message %s missing hash", msg.ID)
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}

			target := u.target(msg)

			if u.opts.DryRun {
				if err := u.mark(msg, target); err != nil {
					u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
					return err
				}
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeDryRunUpload, MessageID: msg.ID, Mailbox: target})
				if u.logger != nil {
					u.logger.Debug("dry-run upload", "messageID", msg.ID, "target", target, "hash", msg.Hash)
				}
				continue
			}

			if client == nil {
				var err error
				client, cleanup, err = dial(ctx, u.opts, u.logger)
				if err != nil {
					u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
					return err
				}
			}

			if err := u.ensureMailbox(client, target); err != nil {
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}

			if err := u.appendMessage(client, target, msg); err != nil {
				err = fmt.Errorf("upload message %s: %w", msg.ID, err)
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}

			if err := u.mark(msg, target); err != nil {
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}

			u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeUploaded, MessageID: msg.ID, Mailbox: target})
			if u.logger != nil {
				u.logger.Debug("uploaded message", "messageID", msg.ID, "target", target, "hash", msg.Hash)
			}
		}
	}
}

// target picks the Unicode mailbox name the message goes into.
func (u *Uploader) target(msg model.Message) string {
	if u.opts.TargetMailbox != "" {
		return u.opts.TargetMailbox
	}
	if msg.Mailbox != "" {
		return msg.Mailbox
	}
	return "INBOX"
}

func (u *Uploader) mark(msg model.Message, target string) error {
	return u.tracker.MarkTransferred(state.Record{
		Hash:      msg.Hash,
		Mailbox:   target,
		MessageID: msg.ID,
	})
}

func (u *Uploader) appendMessage(client *imapclient.Client, target string, msg model.Message) error {
	size := int64(len(msg.Raw))

	opts := &imapv2.AppendOptions{Flags: parseFlags(msg.Flags)}
	if !msg.Date.IsZero() {
		opts.Time = msg.Date
	}

	cmd := client.Append(u.opts.wireName(target), size, opts)

	remaining := msg.Raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}

	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}

	return nil
}

// ensureMailbox creates the target mailbox once per run; an
// already-exists response is not an error.
func (u *Uploader) ensureMailbox(client *imapclient.Client, target string) error {
	if u.ensured[target] {
		return nil
	}

	cmd := client.Create(u.opts.wireName(target), nil)
	if err := cmd.Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			if u.logger != nil {
				u.logger.Debug("imap mailbox already exists", "mailbox", target)
			}
			u.ensured[target] = true
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", target, err)
	}

	if u.logger != nil {
		u.logger.Info("imap mailbox created", "mailbox", target)
	}
	u.ensured[target] = true
	return nil
}
