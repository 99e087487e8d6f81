// Package lode persists job telemetry and job reports to a Lode dataset.
//
// Records are Hive-partitioned by day/job_id/event_type. Telemetry events,
// the final job report and the job metrics snapshot share one dataset and
// are told apart by record_kind.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/policy"
	"github.com/pithecene-io/stitcher/types"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "stitcher"

// DeriveDay computes the partition day from job start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds Lode sink configuration.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Day is the partition key derived from job start time (YYYY-MM-DD UTC).
	Day string
	// JobID is the partition key for the job identifier.
	JobID string
	// Machine names the controller that ran the job (informational).
	Machine string
}

// Client abstracts the Lode storage client.
type Client interface {
	// WriteEvents writes a batch of telemetry events.
	// Must preserve ordering within the batch.
	WriteEvents(ctx context.Context, events []*types.JobEvent) error

	// WriteReport writes the final job report with its metrics snapshot.
	WriteReport(ctx context.Context, report types.JobReport, snap metrics.Snapshot, completedAt time.Time) error

	// Close releases client resources.
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a new Lode sink.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteEvents implements policy.Sink.
func (s *Sink) WriteEvents(ctx context.Context, events []*types.JobEvent) error {
	return s.client.WriteEvents(ctx, events)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ policy.Sink = (*Sink)(nil)

// StubClient is a test client that accepts writes without persisting.
type StubClient struct {
	mu      sync.Mutex
	Events  []*types.JobEvent
	Reports []types.JobReport
	Closed  bool
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteEvents implements Client.
func (c *StubClient) WriteEvents(_ context.Context, events []*types.JobEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, events...)
	return nil
}

// WriteReport implements Client.
func (c *StubClient) WriteReport(_ context.Context, report types.JobReport, _ metrics.Snapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reports = append(c.Reports, report)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)
