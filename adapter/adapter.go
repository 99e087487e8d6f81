// Package adapter defines the boundary for job-completion notifications.
//
// Adapters publish a JobCompletedEvent to a downstream system when a job
// finishes. The runtime owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/stitcher/types"
)

// EventTypeJobCompleted is the event_type of every published notification.
const EventTypeJobCompleted = "job_completed"

// JobCompletedEvent is the payload published when a job finishes.
type JobCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "job_completed"
	JobID           string `json:"job_id"`
	File            string `json:"file"`
	Format          string `json:"format"`
	Design          string `json:"design,omitempty"`
	Outcome         string `json:"outcome"` // completed or canceled
	Truncated       bool   `json:"truncated"`
	Stitches        int64  `json:"stitches"`
	ThreadChanges   int64  `json:"thread_changes"`
	TriggerErrors   int64  `json:"trigger_errors"`
	StoragePath     string `json:"storage_path,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// NewJobCompletedEvent builds the notification for a finished job.
func NewJobCompletedEvent(r types.JobReport, storagePath string, at time.Time) *JobCompletedEvent {
	return &JobCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeJobCompleted,
		JobID:           r.JobID,
		File:            r.File,
		Format:          r.Design.Format,
		Design:          r.Design.Name,
		Outcome:         string(r.Outcome),
		Truncated:       r.Truncated,
		Stitches:        r.Executed.Stitches,
		ThreadChanges:   r.Executed.ThreadChanges,
		TriggerErrors:   r.TriggerErrors,
		StoragePath:     storagePath,
		Timestamp:       at.UTC().Format(time.RFC3339),
		DurationMs:      r.Duration.Milliseconds(),
	}
}

// Adapter publishes job completion events to a downstream system.
type Adapter interface {
	// Publish sends a job completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *JobCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BackoffBase is the delay before the first retry; each retry doubles it.
var BackoffBase = 500 * time.Millisecond

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when fn returns an error for which permanent
// reports true, or when ctx is done.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BackoffBase
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
