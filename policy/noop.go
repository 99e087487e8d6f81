package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/stitcher/types"
)

// NoopPolicy accepts all events but persists none.
//
// Stats keep droppable semantics: droppable events count as dropped,
// everything else counts as persisted.
type NoopPolicy struct {
	mu    sync.Mutex
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// IngestEvent accepts the event but does not persist it.
func (p *NoopPolicy) IngestEvent(_ context.Context, event *types.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalEventsLocked()
	if IsDroppable(event.Type) {
		p.stats.incEventsDroppedLocked(event.Type)
	} else {
		p.stats.incEventsPersistedLocked(1)
	}
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.incFlushLocked()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(0)
}

var _ Policy = (*NoopPolicy)(nil)
