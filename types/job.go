package types

import (
	"errors"
	"time"
)

// JobMeta identifies one streamed embroidery job.
type JobMeta struct {
	// JobID is the unique job identifier (a UUID when generated by the CLI).
	JobID string
	// File is the path of the design file being streamed.
	File string
	// Format is the codec that accepted the file. Empty until opened.
	Format string
}

// Validate checks that the job can be logged and persisted.
func (m *JobMeta) Validate() error {
	if m.JobID == "" {
		return errors.New("job_id must be non-empty")
	}
	if m.File == "" {
		return errors.New("file must be non-empty")
	}
	return nil
}

// Counters tallies stitches by type. A JobContext keeps two sets:
// programmed (decoded and queued) and executed (realized as motion).
type Counters struct {
	Stitches      int64 `json:"stitches" yaml:"stitches" msgpack:"stitches"`
	Jumps         int64 `json:"jumps" yaml:"jumps" msgpack:"jumps"`
	Trims         int64 `json:"trims" yaml:"trims" msgpack:"trims"`
	ThreadChanges int64 `json:"thread_changes" yaml:"thread_changes" msgpack:"thread_changes"`
	SequinEjects  int64 `json:"sequin_ejects" yaml:"sequin_ejects" msgpack:"sequin_ejects"`
}

// Add increments the counter for t.
func (c *Counters) Add(t StitchType) {
	switch t {
	case StitchNormal:
		c.Stitches++
	case StitchJump:
		c.Jumps++
	case StitchTrim:
		c.Trims++
	case StitchStop:
		c.ThreadChanges++
	case StitchSequinEject:
		c.SequinEjects++
	}
}

// Total returns the sum of all counters.
func (c Counters) Total() int64 {
	return c.Stitches + c.Jumps + c.Trims + c.ThreadChanges + c.SequinEjects
}

// Covers reports whether every counter in c is >= the matching counter in o.
func (c Counters) Covers(o Counters) bool {
	return c.Stitches >= o.Stitches &&
		c.Jumps >= o.Jumps &&
		c.Trims >= o.Trims &&
		c.ThreadChanges >= o.ThreadChanges &&
		c.SequinEjects >= o.SequinEjects
}

// MachineState mirrors the controller state reported by the machine.
type MachineState uint8

// Machine states.
const (
	MachineIdle MachineState = iota
	MachineCycle
	MachineHold
)

// String returns the lower-case state name.
func (s MachineState) String() string {
	switch s {
	case MachineIdle:
		return "idle"
	case MachineCycle:
		return "cycle"
	case MachineHold:
		return "hold"
	default:
		return "unknown"
	}
}

// JobState is the job lifecycle state.
type JobState string

// Job lifecycle states.
const (
	JobIdle      JobState = "idle"
	JobStreaming JobState = "streaming"
	JobPaused    JobState = "paused"
	JobCompleted JobState = "completed"
)

// OutcomeStatus is the final status of a job.
type OutcomeStatus string

// Outcome statuses.
const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeCanceled  OutcomeStatus = "canceled"
)

// JobReport is a point-in-time snapshot of a job.
type JobReport struct {
	JobID      string        `json:"job_id" yaml:"job_id"`
	File       string        `json:"file" yaml:"file"`
	Design     Design        `json:"design" yaml:"design"`
	State      JobState      `json:"state" yaml:"state"`
	Outcome    OutcomeStatus `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Programmed Counters      `json:"programmed" yaml:"programmed"`
	Executed   Counters      `json:"executed" yaml:"executed"`
	// Triggers is the number of needle sensor pulses seen.
	Triggers int64 `json:"triggers" yaml:"triggers"`
	// TriggerErrors counts pulses that arrived while the machine was moving.
	TriggerErrors int64 `json:"trigger_errors" yaml:"trigger_errors"`
	// TriggerInterval is the last measured time between pulses.
	TriggerInterval time.Duration `json:"trigger_interval" yaml:"trigger_interval"`
	// MinTriggerInterval is the shortest interval observed this job.
	MinTriggerInterval time.Duration `json:"min_trigger_interval" yaml:"min_trigger_interval"`
	// StitchInterval is the longest trigger-to-idle time observed.
	StitchInterval time.Duration `json:"stitch_interval" yaml:"stitch_interval"`
	// Truncated is set when the file ended in the middle of a record.
	Truncated bool          `json:"truncated" yaml:"truncated"`
	Position  Position      `json:"position" yaml:"position"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// RPM derives the needle speed from the last trigger interval.
// Returns 0 before two pulses have been seen.
func (r *JobReport) RPM() float64 {
	if r.TriggerInterval <= 0 {
		return 0
	}
	return float64(time.Minute) / float64(r.TriggerInterval)
}
