package runtime

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/stitcher/codec"
	"github.com/pithecene-io/stitcher/types"
)

// Process exit codes of `stitcher run`.
const (
	ExitCodeCompleted   = 0 // job_completed recorded
	ExitCodeFailed      = 1 // canceled, decode error or policy failure
	ExitCodeUnsupported = 2 // file matched no decoder
)

// Outcome is the final classification of a job run.
type Outcome struct {
	Status  types.OutcomeStatus `json:"status" yaml:"status"`
	Message string              `json:"message" yaml:"message"`
	// ExitCode is the process exit code for this outcome.
	ExitCode int `json:"exit_code" yaml:"exit_code"`
}

// DetermineOutcome classifies a finished job.
// Checked in order:
//  1. policy failure: telemetry could not be persisted
//  2. job outcome canceled
//  3. decoder read error that ended the stream early
//  4. completed
//
// A truncated final record is not an error; the report carries the flag.
func DetermineOutcome(report types.JobReport, readErr, recErr, flushErr error) *Outcome {
	switch {
	case IsPolicyError(recErr):
		return &Outcome{
			Status:   types.OutcomeCanceled,
			Message:  fmt.Sprintf("policy failure: %v", recErr),
			ExitCode: ExitCodeFailed,
		}
	case flushErr != nil:
		return &Outcome{
			Status:   report.Outcome,
			Message:  fmt.Sprintf("policy flush failed: %v", flushErr),
			ExitCode: ExitCodeFailed,
		}
	case report.Outcome == types.OutcomeCanceled:
		return &Outcome{
			Status:   types.OutcomeCanceled,
			Message:  "job canceled",
			ExitCode: ExitCodeFailed,
		}
	case readErr != nil:
		return &Outcome{
			Status:   types.OutcomeCompleted,
			Message:  fmt.Sprintf("stream ended on read error: %v", readErr),
			ExitCode: ExitCodeFailed,
		}
	default:
		msg := "job completed"
		if report.Truncated {
			msg = "job completed (truncated pattern)"
		}
		return &Outcome{
			Status:   types.OutcomeCompleted,
			Message:  msg,
			ExitCode: ExitCodeCompleted,
		}
	}
}

// ExitCodeForOpenError maps a file open failure to a process exit code.
func ExitCodeForOpenError(err error) int {
	if errors.Is(err, codec.ErrUnsupportedFormat) {
		return ExitCodeUnsupported
	}
	return ExitCodeFailed
}
