package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/types"
)

// RunSummary is the structured JSON summary written by `run --summary`
// and stored as the report.json sidecar.
type RunSummary struct {
	JobID      string              `json:"job_id"`
	File       string              `json:"file"`
	Outcome    types.OutcomeStatus `json:"outcome"`
	Message    string              `json:"message"`
	ExitCode   int                 `json:"exit_code"`
	DurationMs int64               `json:"duration_ms"`
	EventCount int64               `json:"event_count"`

	Report   types.JobReport   `json:"report"`
	Policy   *SummaryPolicy    `json:"policy"`
	Dispatch *SummaryDispatch  `json:"dispatch"`
	Metrics  *metrics.Snapshot `json:"metrics"`

	Terminal map[string]any `json:"terminal,omitempty"`
}

// SummaryPolicy holds policy stats in the summary.
type SummaryPolicy struct {
	Name            string `json:"name"`
	EventsReceived  int64  `json:"events_received"`
	EventsPersisted int64  `json:"events_persisted"`
	EventsDropped   int64  `json:"events_dropped"`
	FlushCount      int64  `json:"flush_count"`
}

// SummaryDispatch holds thread event stats in the summary.
type SummaryDispatch struct {
	Trims         int64 `json:"trims"`
	ThreadChanges int64 `json:"thread_changes"`
	Dropped       int64 `json:"dropped"`
	Failed        int64 `json:"failed"`
}

// BuildRunSummary composes a RunSummary from a RunResult and metrics snapshot.
func BuildRunSummary(result *RunResult, snap metrics.Snapshot, policyName string) *RunSummary {
	s := &RunSummary{
		JobID:      result.Meta.JobID,
		File:       result.Meta.File,
		Outcome:    result.Outcome.Status,
		Message:    result.Outcome.Message,
		ExitCode:   result.Outcome.ExitCode,
		DurationMs: result.Duration.Milliseconds(),
		EventCount: result.EventCount,
		Report:     result.Report,
		Policy: &SummaryPolicy{
			Name:            policyName,
			EventsReceived:  result.PolicyStats.TotalEvents,
			EventsPersisted: result.PolicyStats.EventsPersisted,
			EventsDropped:   result.PolicyStats.EventsDropped,
			FlushCount:      result.PolicyStats.FlushCount,
		},
		Dispatch: &SummaryDispatch{
			Trims:         result.Trims,
			ThreadChanges: result.ThreadChanges,
			Dropped:       snap.DispatchDropped,
			Failed:        snap.DispatchFailed,
		},
		Metrics: &snap,
	}
	if result.Terminal != nil {
		s.Terminal = result.Terminal.Payload
	}
	return s
}

// MarshalRunSummary returns the indented JSON encoding of s.
func MarshalRunSummary(s *RunSummary) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteRunSummary writes the summary as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunSummary(s *RunSummary, path string) error {
	if path == "" {
		return errors.New("summary path must not be empty")
	}
	if path == "-" {
		if err := writeRunSummaryTo(s, os.Stderr); err != nil {
			return fmt.Errorf("failed to write summary to stderr: %w", err)
		}
		return nil
	}

	data, err := MarshalRunSummary(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary to %s: %w", path, err)
	}
	return nil
}

// writeRunSummaryTo writes summary JSON to any writer.
func writeRunSummaryTo(s *RunSummary, w io.Writer) error {
	data, err := MarshalRunSummary(s)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
