package types //nolint:revive // types is a valid package name

import (
	"testing"
	"time"
)

func TestCounters_AddAndTotal(t *testing.T) {
	var c Counters
	for _, st := range []StitchType{StitchNormal, StitchNormal, StitchJump, StitchTrim, StitchStop, StitchSequinEject} {
		c.Add(st)
	}

	want := Counters{Stitches: 2, Jumps: 1, Trims: 1, ThreadChanges: 1, SequinEjects: 1}
	if c != want {
		t.Errorf("counters = %+v, want %+v", c, want)
	}
	if c.Total() != 6 {
		t.Errorf("Total() = %d, want 6", c.Total())
	}
}

func TestCounters_Covers(t *testing.T) {
	programmed := Counters{Stitches: 5, Jumps: 2}
	executed := Counters{Stitches: 5, Jumps: 1}

	if !programmed.Covers(executed) {
		t.Error("programmed should cover executed")
	}
	if executed.Covers(programmed) {
		t.Error("executed should not cover programmed")
	}
}

func TestJobMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    JobMeta
		wantErr bool
	}{
		{name: "empty job_id", meta: JobMeta{File: "a.dst"}, wantErr: true},
		{name: "empty file", meta: JobMeta{JobID: "job-1"}, wantErr: true},
		{name: "valid", meta: JobMeta{JobID: "job-1", File: "a.dst"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobReport_RPM(t *testing.T) {
	r := JobReport{TriggerInterval: 100 * time.Millisecond}
	if got := r.RPM(); got != 600 {
		t.Errorf("RPM() = %v, want 600", got)
	}

	r.TriggerInterval = 0
	if got := r.RPM(); got != 0 {
		t.Errorf("RPM() with no interval = %v, want 0", got)
	}
}

func TestJobEventType_IsTerminal(t *testing.T) {
	tests := []struct {
		eventType JobEventType
		want      bool
	}{
		{JobEventCompleted, true},
		{JobEventCanceled, true},
		{JobEventStarted, false},
		{JobEventStitch, false},
		{JobEventThreadChange, false},
		{JobEventTriggerError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := tt.eventType.IsTerminal(); got != tt.want {
				t.Errorf("JobEventType(%q).IsTerminal() = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestStitchType_String(t *testing.T) {
	if StitchSequinEject.String() != "sequin_eject" {
		t.Errorf("unexpected name %q", StitchSequinEject.String())
	}
	if StitchType(42).String() != "stitch_type(42)" {
		t.Errorf("unexpected name %q", StitchType(42).String())
	}
}

func TestJobEventType_IsDroppable(t *testing.T) {
	droppable := map[JobEventType]bool{
		JobEventStitch:       true,
		JobEventJump:         true,
		JobEventTrim:         false,
		JobEventThreadChange: false,
		JobEventStarted:      false,
		JobEventCompleted:    false,
	}
	for et, want := range droppable {
		if got := et.IsDroppable(); got != want {
			t.Errorf("JobEventType(%q).IsDroppable() = %v, want %v", et, got, want)
		}
	}
}
