package lode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/types"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "job_id", "event_type"}

// ErrJobMismatch is returned when an event does not belong to the client's job.
var ErrJobMismatch = errors.New("event job_id does not match client job")

// LodeClient is a Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys day/job_id/event_type.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteEvents writes a batch of telemetry events as one snapshot.
// Every event must carry the client's job ID.
func (c *LodeClient) WriteEvents(ctx context.Context, events []*types.JobEvent) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]any, 0, len(events))
	for _, e := range events {
		if c.config.JobID != "" && e.JobID != c.config.JobID {
			return fmt.Errorf("%w: %s", ErrJobMismatch, e.JobID)
		}
		records = append(records, toEventRecordMap(e, c.config))
	}

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset+"/events")
	}
	return nil
}

// WriteReport writes the job report and its metrics snapshot as one snapshot.
func (c *LodeClient) WriteReport(ctx context.Context, report types.JobReport, snap metrics.Snapshot, completedAt time.Time) error {
	cfg := c.config
	if cfg.JobID == "" {
		cfg.JobID = report.JobID
	}
	records := []any{
		toReportRecordMap(report, cfg, completedAt),
		toMetricsRecordMap(snap, cfg, completedAt),
	}
	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset+"/report")
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

var _ Client = (*LodeClient)(nil)
