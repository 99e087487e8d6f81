package lode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// Query errors.
var (
	// ErrNoReportFound is returned when no report record matches the query.
	ErrNoReportFound = errors.New("no job report found")
	// ErrNoMetricsFound is returned when no metrics record matches the query.
	ErrNoMetricsFound = errors.New("no job metrics found")
)

// NewReadDataset creates a Lode Dataset for reading.
// Uses the same codec and layout as the write path.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return newDataset(dataset, factory)
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 creates a read Dataset with S3 storage.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := s3Factory(ctx, s3cfg)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return NewReadDataset(dataset, factory)
}

// QueryLatestReport finds the most recent report record.
// Filters by jobID if non-empty.
func QueryLatestReport(ctx context.Context, ds lode.Dataset, jobID string) (*ReportRecord, error) {
	record, err := latestRecord(ctx, ds, partitionReport, RecordKindReport, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNoReportFound
	}
	return decodeReportRecord(record)
}

// QueryLatestMetrics finds the most recent metrics record.
// Filters by jobID if non-empty.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, jobID string) (map[string]any, error) {
	record, err := latestRecord(ctx, ds, partitionMetrics, RecordKindMetrics, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNoMetricsFound
	}
	return record, nil
}

// latestRecord returns the newest record of kind stored under the
// event_type partition, or nil if there is none.
func latestRecord(ctx context.Context, ds lode.Dataset, partition, kind, jobID string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "stitcher/snapshots")
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]

		if !snapshotMatchesFilter(snap, "event_type", partition) {
			continue
		}
		if !snapshotMatchesFilter(snap, "job_id", jobID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("stitcher/snapshot/%s", snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != kind {
				continue
			}
			if jobID != "" && toString(record["job_id"]) != jobID {
				continue
			}
			return record, nil
		}
	}

	return nil, nil
}

// QueryJobEvents reads every telemetry event stored for jobID, in seq order
// within each snapshot and snapshot order across them.
func QueryJobEvents(ctx context.Context, ds lode.Dataset, jobID string) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "stitcher/snapshots")
	}

	var out []map[string]any
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "job_id", jobID) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("stitcher/snapshot/%s", snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindEvent {
				continue
			}
			if toString(record["job_id"]) != jobID {
				continue
			}
			out = append(out, record)
		}
	}
	return out, nil
}

// decodeReportRecord converts a raw record map back into a ReportRecord.
func decodeReportRecord(record map[string]any) (*ReportRecord, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode report record: %w", err)
	}
	var rr ReportRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("decode report record: %w", err)
	}
	return &rr, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment. This avoids substring false positives
// (e.g. job_id=job-1 matching job_id=job-10).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
