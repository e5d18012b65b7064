// Package runner wires the pipeline stages together: a producer stage
// feeds envelopes in, the bridge filters and deduplicates them, and a
// consumer stage drains the delivery channel. The same runner drives
// both transfer directions.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zimap/mboxarc/config"
	"github.com/zimap/mboxarc/filter"
	"github.com/zimap/mboxarc/model"
	"github.com/zimap/mboxarc/state"
	"github.com/zimap/mboxarc/stats"
)

var ErrMessageIDMissing = errors.New("message missing id")

type StageFunc func(context.Context) error

type Runner struct {
	cfg    config.Config
	source stats.Stage
	fltr   *filter.Filter
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	envelopes  chan model.Envelope
	deliveries chan model.Message
	events     chan stats.Event

	tracker *state.FileTracker

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSourceOnce     sync.Once
	closeDeliveriesOnce sync.Once
	closeEventsOnce     sync.Once
	since               time.Time
}

// New builds a runner for one transfer. source tags the producing stage
// in emitted events; fltr may be nil when no filtering is wanted.
func New(cfg config.Config, source stats.Stage, fltr *filter.Filter, logger *slog.Logger) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())

	tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("state tracker: %w", err)
	}

	r := &Runner{
		cfg:        cfg,
		source:     source,
		fltr:       fltr,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		envelopes:  make(chan model.Envelope, 32),
		deliveries: make(chan model.Message, 32),
		events:     make(chan stats.Event, 128),
		tracker:    tracker,
	}

	r.AddStage("bridge", r.bridge)
	return r, nil
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

// SourceWriter is the channel the producer stage feeds.
func (r *Runner) SourceWriter() chan<- model.Envelope {
	return r.envelopes
}

// CloseSource signals that the producer stage is done.
func (r *Runner) CloseSource() {
	r.closeSourceOnce.Do(func() {
		close(r.envelopes)
	})
}

// Deliveries is the channel the consumer stage drains.
func (r *Runner) Deliveries() <-chan model.Message {
	return r.deliveries
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, r.events); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

func (r *Runner) Start() error {
	r.since = time.Now()

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	err := r.err
	if closeErr := r.tracker.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// bridge moves envelopes from the producer to the consumer, dropping
// filtered messages and duplicates already recorded in the state file.
func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeDeliveries()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.envelopes:
			if !ok {
				return nil
			}

			if envelope.Err != nil {
				r.EmitEvent(stats.Event{Stage: r.source, Type: stats.EventTypeError, Err: envelope.Err})
				r.fail(fmt.Errorf("source envelope: %w", envelope.Err))
				continue
			}

			msg := envelope.Message
			r.EmitEvent(stats.Event{Stage: r.source, Type: stats.EventTypeScanned, MessageID: msg.ID, Mailbox: msg.Mailbox})

			if msg.ID == "" {
				r.EmitEvent(stats.Event{Stage: r.source, Type: stats.EventTypeError, Err: ErrMessageIDMissing})
				r.fail(ErrMessageIDMissing)
				continue
			}

			if r.fltr != nil {
				header, body := filter.SplitRawMessage(msg.Raw)
				if !r.fltr.Allows(header, body) {
					r.EmitEvent(stats.Event{Stage: r.source, Type: stats.EventTypeFiltered, MessageID: msg.ID, Mailbox: msg.Mailbox})
					continue
				}
			}

			if msg.Hash != "" && r.tracker.AlreadyTransferred(msg.Hash) {
				r.EmitEvent(stats.Event{Stage: r.source, Type: stats.EventTypeDuplicate, MessageID: msg.ID, Mailbox: msg.Mailbox})
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.deliveries <- msg:
				r.EmitEvent(stats.Event{Stage: r.source, Type: stats.EventTypeEnqueued, MessageID: msg.ID, Mailbox: msg.Mailbox})
			}
		}
	}
}

func (r *Runner) closeDeliveries() {
	r.closeDeliveriesOnce.Do(func() {
		close(r.deliveries)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
