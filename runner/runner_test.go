package runner

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/zimap/mboxarc/config"
	"github.com/zimap/mboxarc/filter"
	"github.com/zimap/mboxarc/model"
	"github.com/zimap/mboxarc/state"
	"github.com/zimap/mboxarc/stats"
)

func newTestRunner(t *testing.T, fltr *filter.Filter) *Runner {
	t.Helper()
	cfg := config.Config{StateDir: t.TempDir(), DryRun: true, LogLevel: "error"}
	r, err := New(cfg, stats.StageArchive, fltr, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// drain collects everything the bridge lets through.
func drain(r *Runner, into *[]model.Message) {
	r.AddStage("drain", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-r.Deliveries():
				if !ok {
					return nil
				}
				*into = append(*into, msg)
			}
		}
	})
}

func produce(r *Runner, envelopes ...model.Envelope) {
	r.AddStage("produce", func(ctx context.Context) error {
		defer r.CloseSource()
		for _, envelope := range envelopes {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.SourceWriter() <- envelope:
			}
		}
		return nil
	})
}

func TestBridgePassesMessages(t *testing.T) {
	r := newTestRunner(t, nil)

	var got []model.Message
	drain(r, &got)
	produce(r,
		model.Envelope{Message: model.Message{ID: "a", Hash: "h1", Raw: []byte("x")}},
		model.Envelope{Message: model.Message{ID: "b", Hash: "h2", Raw: []byte("y")}},
	)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("delivered = %+v", got)
	}
}

func TestBridgeSkipsDuplicates(t *testing.T) {
	r := newTestRunner(t, nil)

	// Mark the hash before the producer starts; both envelopes carry it.
	if err := r.Tracker().MarkTransferred(state.Record{Hash: "same", MessageID: "pre"}); err != nil {
		t.Fatal(err)
	}

	var got []model.Message
	drain(r, &got)
	produce(r,
		model.Envelope{Message: model.Message{ID: "a", Hash: "same"}},
		model.Envelope{Message: model.Message{ID: "b", Hash: "same"}},
	)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("delivered = %+v, want none", got)
	}
}

func TestBridgeAppliesFilter(t *testing.T) {
	fltr, err := filter.New(filter.Options{ExcludeHeader: []string{"spam"}})
	if err != nil {
		t.Fatal(err)
	}
	r := newTestRunner(t, fltr)

	var got []model.Message
	drain(r, &got)
	produce(r,
		model.Envelope{Message: model.Message{ID: "keep", Hash: "h1", Raw: []byte("Subject: hi\r\n\r\nbody")}},
		model.Envelope{Message: model.Message{ID: "drop", Hash: "h2", Raw: []byte("Subject: spam\r\n\r\nbody")}},
	)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(got) != 1 || got[0].ID != "keep" {
		t.Errorf("delivered = %+v, want only keep", got)
	}
}

func TestBridgeFailsOnEnvelopeError(t *testing.T) {
	r := newTestRunner(t, nil)

	var got []model.Message
	drain(r, &got)
	produce(r, model.Envelope{Err: errors.New("boom")})

	if err := r.Start(); err == nil {
		t.Fatal("Start succeeded despite envelope error")
	}
}

func TestBridgeFailsOnMissingID(t *testing.T) {
	r := newTestRunner(t, nil)

	var got []model.Message
	drain(r, &got)
	produce(r, model.Envelope{Message: model.Message{Hash: "h1"}})

	if err := r.Start(); !errors.Is(err, ErrMessageIDMissing) {
		t.Fatalf("Start err = %v, want ErrMessageIDMissing", err)
	}
}
