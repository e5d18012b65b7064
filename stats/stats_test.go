package stats

import (
	"context"
	"errors"
	"testing"
)

func TestCollectorApply(t *testing.T) {
	c := NewCollector()
	failed := errors.New("append failed")

	events := []Event{
		{Stage: StageIMAP, Type: EventTypeScanned},
		{Stage: StageIMAP, Type: EventTypeScanned},
		{Stage: StageIMAP, Type: EventTypeEnqueued},
		{Stage: StageIMAP, Type: EventTypeFiltered},
		{Stage: StageArchive, Type: EventTypeStored},
		{Stage: StageIMAP, Type: EventTypeUploaded},
		{Stage: StageIMAP, Type: EventTypeDryRunUpload},
		{Stage: StageIMAP, Type: EventTypeDuplicate},
		{Stage: StageIMAP, Type: EventTypeError, Err: failed},
	}
	for _, evt := range events {
		c.Apply(evt)
	}

	got := c.Snapshot()
	want := Summary{
		Scanned:        2,
		Enqueued:       1,
		Filtered:       1,
		Stored:         1,
		Uploaded:       1,
		DryRunUploaded: 1,
		Duplicates:     1,
		Errors:         1,
		LastError:      failed,
	}
	if got != want {
		t.Errorf("Snapshot = %+v, want %+v", got, want)
	}
}

func TestCollectorRunStopsOnClose(t *testing.T) {
	c := NewCollector()
	events := make(chan Event, 2)
	events <- Event{Type: EventTypeScanned}
	events <- Event{Type: EventTypeStored}
	close(events)

	c.Run(context.Background(), events)

	got := c.Snapshot()
	if got.Scanned != 1 || got.Stored != 1 {
		t.Errorf("Snapshot = %+v", got)
	}
}

func TestSummaryLogAttrs(t *testing.T) {
	s := Summary{Scanned: 3}
	attrs := s.LogAttrs()
	if len(attrs)%2 != 0 {
		t.Fatalf("LogAttrs returned odd-length slice: %v", attrs)
	}

	s.LastError = errors.New("boom")
	attrs = s.LogAttrs()
	if attrs[len(attrs)-2] != "lastError" || attrs[len(attrs)-1] != "boom" {
		t.Errorf("LogAttrs tail = %v", attrs[len(attrs)-2:])
	}
}
