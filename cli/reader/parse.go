package reader

import (
	"errors"
	"sort"

	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/types"
)

// ParseMetricsRecord converts a stored metrics record to a MetricsRecord.
func ParseMetricsRecord(record map[string]any) (*MetricsRecord, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := metrics.Snapshot{
		// Job lifecycle
		JobsStarted:   toInt64(record["jobs_started_total"]),
		JobsCompleted: toInt64(record["jobs_completed_total"]),
		JobsCanceled:  toInt64(record["jobs_canceled_total"]),

		// Telemetry recorder
		EventsEmitted:  toInt64(record["events_emitted_total"]),
		EventsOverflow: toInt64(record["events_overflow_total"]),

		// Ingestion
		EventsReceived:  toInt64(record["events_received_total"]),
		EventsPersisted: toInt64(record["events_persisted_total"]),
		EventsDropped:   toInt64(record["events_dropped_total"]),

		DispatchDropped: toInt64(record["dispatch_dropped_total"]),
		DispatchFailed:  toInt64(record["dispatch_failed_total"]),

		LodeWriteSuccess: toInt64(record["lode_write_success_total"]),
		LodeWriteFailure: toInt64(record["lode_write_failure_total"]),

		AdapterPublishSuccess: toInt64(record["adapter_publish_success_total"]),
		AdapterPublishFailure: toInt64(record["adapter_publish_failure_total"]),

		Policy:         toString(record["policy"]),
		StorageBackend: toString(record["storage_backend"]),
		Format:         toString(record["format"]),
		JobID:          toString(record["job_id"]),
	}
	if dbt, ok := record["dropped_by_type"]; ok && dbt != nil {
		snap.DroppedByType = parseDroppedByType(dbt)
	}

	rec := &MetricsRecord{
		JobID:       snap.JobID,
		Day:         toString(record["day"]),
		CompletedAt: toString(record["completed_at"]),
		Metrics:     snap,
	}

	// The write path always populates these.
	if rec.CompletedAt == "" {
		return nil, errors.New("metrics record missing required field: completed_at")
	}
	if rec.JobID == "" {
		return nil, errors.New("metrics record missing required field: job_id")
	}
	if snap.Policy == "" {
		return nil, errors.New("metrics record missing required field: policy")
	}
	if snap.StorageBackend == "" {
		return nil, errors.New("metrics record missing required field: storage_backend")
	}

	return rec, nil
}

// ParseEventRecords converts stored event records to JobEvents ordered by seq.
// Records without an event_id are skipped.
func ParseEventRecords(records []map[string]any) []*types.JobEvent {
	events := make([]*types.JobEvent, 0, len(records))
	for _, r := range records {
		id := toString(r["event_id"])
		if id == "" {
			continue
		}
		ev := &types.JobEvent{
			ContractVersion: toString(r["contract_version"]),
			EventID:         id,
			JobID:           toString(r["job_id"]),
			Seq:             toInt64(r["seq"]),
			Type:            types.JobEventType(toString(r["type"])),
			Ts:              toString(r["ts"]),
		}
		if p, ok := r["payload"].(map[string]any); ok {
			ev.Payload = p
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case uint32:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// parseDroppedByType converts dropped_by_type from Lode record format.
// Handles both map[string]int64 (direct) and map[string]any (JSON round-trip).
func parseDroppedByType(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
