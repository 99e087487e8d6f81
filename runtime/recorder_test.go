package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/policy"
	"github.com/pithecene-io/stitcher/types"
)

func TestRecorder_SequencesEvents(t *testing.T) {
	sink := policy.NewStubSink()
	collector := metrics.NewCollector("strict", "fs", "tajima", "job-1")
	rec := NewRecorder("job-1", policy.NewStrictPolicy(sink), 16, nil, collector)

	rec.Observe(types.JobEventStarted, map[string]any{"file": "a.dst"})
	rec.Observe(types.JobEventStitch, nil)
	rec.Observe(types.JobEventTrim, nil)
	rec.Observe(types.JobEventCompleted, map[string]any{"stitches": int64(1)})
	rec.Observe(types.JobEventCanceled, nil)
	rec.Close()

	if err := rec.Run(t.Context()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	events := sink.Events()
	if len(events) != 4 {
		t.Fatalf("persisted %d events, want 4 (duplicate terminal ignored)", len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
		if ev.JobID != "job-1" || ev.ContractVersion != types.ContractVersion || ev.EventID == "" {
			t.Errorf("events[%d] envelope = %+v", i, ev)
		}
	}

	terminal, ok := rec.TerminalEvent()
	if !ok || terminal.Type != types.JobEventCompleted {
		t.Errorf("TerminalEvent() = %v, %v; want job_completed", terminal, ok)
	}
	if rec.Ingested() != 4 {
		t.Errorf("Ingested() = %d, want 4", rec.Ingested())
	}
	if got := collector.Snapshot().EventsEmitted; got != 5 {
		t.Errorf("EventsEmitted = %d, want 5", got)
	}
}

func TestRecorder_OverflowNeverBlocks(t *testing.T) {
	collector := metrics.NewCollector("strict", "fs", "tajima", "job-1")
	rec := NewRecorder("job-1", policy.NewNoopPolicy(), 2, nil, collector)

	for range 5 {
		rec.Observe(types.JobEventStitch, nil)
	}
	rec.Close()

	if err := rec.Run(t.Context()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Overflow() != 3 {
		t.Errorf("Overflow() = %d, want 3", rec.Overflow())
	}
	if rec.Ingested() != 2 {
		t.Errorf("Ingested() = %d, want 2", rec.Ingested())
	}
	if got := collector.Snapshot().EventsOverflow; got != 3 {
		t.Errorf("EventsOverflow = %d, want 3", got)
	}
}

func TestRecorder_PolicyFailure(t *testing.T) {
	sink := policy.NewStubSink()
	sink.SetError(errors.New("disk full"))
	rec := NewRecorder("job-1", policy.NewStrictPolicy(sink), 4, nil, nil)

	rec.Observe(types.JobEventStarted, nil)
	rec.Close()

	err := rec.Run(t.Context())
	if !IsPolicyError(err) {
		t.Fatalf("Run() error = %v, want policy error", err)
	}
	if IsCanceledError(err) {
		t.Error("policy error must not classify as canceled")
	}
}

func TestRecorder_Canceled(t *testing.T) {
	rec := NewRecorder("job-1", policy.NewNoopPolicy(), 4, nil, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := rec.Run(ctx)
	if !IsCanceledError(err) {
		t.Fatalf("Run() error = %v, want canceled error", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got %v", err)
	}
}
