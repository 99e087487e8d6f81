// Package metrics provides per-job metrics collection.
//
// The Collector accumulates counters during a single job. It is a leaf package
// with no internal dependencies. Ingestion policy metrics are absorbed from
// policy.Stats at job completion rather than recorded live, avoiding double-counting.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all job metrics.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Job lifecycle
	JobsStarted   int64 `json:"jobs_started_total" yaml:"jobs_started_total"`
	JobsCompleted int64 `json:"jobs_completed_total" yaml:"jobs_completed_total"`
	JobsCanceled  int64 `json:"jobs_canceled_total" yaml:"jobs_canceled_total"`

	// Telemetry recorder
	EventsEmitted  int64 `json:"events_emitted_total" yaml:"events_emitted_total"`
	EventsOverflow int64 `json:"events_overflow_total" yaml:"events_overflow_total"`

	// Ingestion (absorbed from policy.Stats at job completion)
	EventsReceived  int64            `json:"events_received_total" yaml:"events_received_total"`
	EventsPersisted int64            `json:"events_persisted_total" yaml:"events_persisted_total"`
	EventsDropped   int64            `json:"events_dropped_total" yaml:"events_dropped_total"`
	DroppedByType   map[string]int64 `json:"dropped_by_type,omitempty" yaml:"dropped_by_type,omitempty"`

	// Foreground dispatch
	DispatchDropped int64 `json:"dispatch_dropped_total" yaml:"dispatch_dropped_total"`
	DispatchFailed  int64 `json:"dispatch_failed_total" yaml:"dispatch_failed_total"`

	// Lode / Storage
	LodeWriteSuccess int64 `json:"lode_write_success_total" yaml:"lode_write_success_total"`
	LodeWriteFailure int64 `json:"lode_write_failure_total" yaml:"lode_write_failure_total"`

	// Completion adapters
	AdapterPublishSuccess int64 `json:"adapter_publish_success_total" yaml:"adapter_publish_success_total"`
	AdapterPublishFailure int64 `json:"adapter_publish_failure_total" yaml:"adapter_publish_failure_total"`

	// Dimensions (informational, set at construction)
	Policy         string `json:"policy" yaml:"policy"`
	StorageBackend string `json:"storage_backend" yaml:"storage_backend"`
	Format         string `json:"format" yaml:"format"`
	JobID          string `json:"job_id" yaml:"job_id"`
}

// Collector accumulates metrics during a single job.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	jobsStarted   int64
	jobsCompleted int64
	jobsCanceled  int64

	eventsEmitted  int64
	eventsOverflow int64

	dispatchDropped int64
	dispatchFailed  int64

	lodeWriteSuccess int64
	lodeWriteFailure int64

	adapterPublishSuccess int64
	adapterPublishFailure int64

	// Set once via AbsorbPolicyStats
	eventsReceived  int64
	eventsPersisted int64
	eventsDropped   int64
	droppedByType   map[string]int64

	// Dimensions
	policy         string
	storageBackend string
	format         string
	jobID          string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, storageBackend, format, jobID string) *Collector {
	return &Collector{
		droppedByType:  make(map[string]int64),
		policy:         policy,
		storageBackend: storageBackend,
		format:         format,
		jobID:          jobID,
	}
}

// inc applies fn under the lock. No-op on a nil collector.
func (c *Collector) inc(fn func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// --- Job lifecycle ---

// IncJobStarted records a job start.
func (c *Collector) IncJobStarted() { c.inc(func() { c.jobsStarted++ }) }

// IncJobCompleted records a job that ran to the end of the pattern.
func (c *Collector) IncJobCompleted() { c.inc(func() { c.jobsCompleted++ }) }

// IncJobCanceled records a canceled job.
func (c *Collector) IncJobCanceled() { c.inc(func() { c.jobsCanceled++ }) }

// --- Telemetry ---

// IncEventsEmitted records an event handed to the ingestion policy.
func (c *Collector) IncEventsEmitted() { c.inc(func() { c.eventsEmitted++ }) }

// IncEventsOverflow records an event lost because the recorder was full.
func (c *Collector) IncEventsOverflow() { c.inc(func() { c.eventsOverflow++ }) }

// --- Lode / Storage ---
// Lode counters are per-call, not per-record.

// IncLodeWriteSuccess records a successful Lode write operation.
func (c *Collector) IncLodeWriteSuccess() { c.inc(func() { c.lodeWriteSuccess++ }) }

// IncLodeWriteFailure records a failed Lode write operation.
func (c *Collector) IncLodeWriteFailure() { c.inc(func() { c.lodeWriteFailure++ }) }

// --- Adapters ---

// IncAdapterPublishSuccess records a delivered completion notification.
func (c *Collector) IncAdapterPublishSuccess() { c.inc(func() { c.adapterPublishSuccess++ }) }

// IncAdapterPublishFailure records a notification that exhausted its retries.
func (c *Collector) IncAdapterPublishFailure() { c.inc(func() { c.adapterPublishFailure++ }) }

// SetDispatch records the final dispatch queue counters.
func (c *Collector) SetDispatch(dropped, failed int64) {
	c.inc(func() {
		c.dispatchDropped = dropped
		c.dispatchFailed = failed
	})
}

// AbsorbPolicyStats copies ingestion counters from policy.Stats into the collector.
// Called once after job completion with the final policy stats snapshot.
// droppedByType keys are string-typed event types to keep this package a leaf.
func (c *Collector) AbsorbPolicyStats(totalEvents, persisted, dropped int64, droppedByType map[string]int64) {
	c.inc(func() {
		c.eventsReceived = totalEvents
		c.eventsPersisted = persisted
		c.eventsDropped = dropped
		c.droppedByType = maps.Clone(droppedByType)
		if c.droppedByType == nil {
			c.droppedByType = make(map[string]int64)
		}
	})
}

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		JobsStarted:   c.jobsStarted,
		JobsCompleted: c.jobsCompleted,
		JobsCanceled:  c.jobsCanceled,

		EventsEmitted:  c.eventsEmitted,
		EventsOverflow: c.eventsOverflow,

		EventsReceived:  c.eventsReceived,
		EventsPersisted: c.eventsPersisted,
		EventsDropped:   c.eventsDropped,
		DroppedByType:   maps.Clone(c.droppedByType),

		DispatchDropped: c.dispatchDropped,
		DispatchFailed:  c.dispatchFailed,

		LodeWriteSuccess: c.lodeWriteSuccess,
		LodeWriteFailure: c.lodeWriteFailure,

		AdapterPublishSuccess: c.adapterPublishSuccess,
		AdapterPublishFailure: c.adapterPublishFailure,

		Policy:         c.policy,
		StorageBackend: c.storageBackend,
		Format:         c.format,
		JobID:          c.jobID,
	}
}
