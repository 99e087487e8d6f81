package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/stitcher/types"
)

func TestNewJobCompletedEvent(t *testing.T) {
	r := types.JobReport{
		JobID:         "job-7",
		File:          "logo.pes",
		Design:        types.Design{Name: "logo", Format: "brother"},
		Outcome:       types.OutcomeCanceled,
		Truncated:     true,
		Executed:      types.Counters{Stitches: 120, ThreadChanges: 2},
		TriggerErrors: 1,
		Duration:      1500 * time.Millisecond,
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	ev := NewJobCompletedEvent(r, "datasets/stitcher/report.json", at)

	if ev.EventType != EventTypeJobCompleted || ev.ContractVersion != types.ContractVersion {
		t.Errorf("header = %q %q", ev.EventType, ev.ContractVersion)
	}
	if ev.Outcome != "canceled" || !ev.Truncated {
		t.Errorf("outcome = %q truncated = %v", ev.Outcome, ev.Truncated)
	}
	if ev.Stitches != 120 || ev.ThreadChanges != 2 || ev.TriggerErrors != 1 {
		t.Errorf("counters = %+v", ev)
	}
	if ev.Format != "brother" || ev.Design != "logo" {
		t.Errorf("design = %q %q", ev.Format, ev.Design)
	}
	if ev.Timestamp != "2026-03-01T11:00:00Z" {
		t.Errorf("timestamp = %q", ev.Timestamp)
	}
	if ev.DurationMs != 1500 {
		t.Errorf("duration_ms = %d", ev.DurationMs)
	}
}

func TestRetry(t *testing.T) {
	prev := BackoffBase
	BackoffBase = time.Millisecond
	t.Cleanup(func() { BackoffBase = prev })

	errBoom := errors.New("boom")
	errFatal := errors.New("fatal")
	permanent := func(err error) bool { return errors.Is(err, errFatal) }

	tests := []struct {
		name      string
		retries   int
		failures  int
		failWith  error
		wantErr   bool
		wantCalls int
	}{
		{"first try", 3, 0, errBoom, false, 1},
		{"recovers", 3, 2, errBoom, false, 3},
		{"exhausted", 2, 10, errBoom, true, 3},
		{"no retries", 0, 10, errBoom, true, 1},
		{"permanent", 5, 10, errFatal, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(t.Context(), "test", tt.retries, permanent, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, tt.failWith) {
				t.Errorf("err = %v, want wrapping %v", err, tt.failWith)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	calls := 0
	err := Retry(ctx, "test", 3, nil, func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
