package lode

import (
	"time"

	"github.com/pithecene-io/stitcher/metrics"
	"github.com/pithecene-io/stitcher/types"
)

// RecordKind discriminator values.
const (
	RecordKindEvent   = "event"
	RecordKindReport  = "report"
	RecordKindMetrics = "metrics"
)

// Partition values for non-event records.
const (
	partitionReport  = "report"
	partitionMetrics = "metrics"
)

// ReportRecord is the storage format for a finished job.
type ReportRecord struct {
	RecordKind  string          `json:"record_kind"`
	JobID       string          `json:"job_id"`
	Day         string          `json:"day"`
	Machine     string          `json:"machine,omitempty"`
	CompletedAt string          `json:"completed_at"`
	Report      types.JobReport `json:"report"`
}

// toEventRecordMap converts a JobEvent to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toEventRecordMap(e *types.JobEvent, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":      RecordKindEvent,
		"contract_version": e.ContractVersion,
		"event_id":         e.EventID,
		"job_id":           e.JobID,
		"seq":              e.Seq,
		"type":             string(e.Type),
		"event_type":       string(e.Type), // partition key
		"ts":               e.Ts,
		"payload":          e.Payload,
		"day":              cfg.Day,
	}
}

// toReportRecordMap converts a finished job report to a map for storage.
// The report itself is nested so it can be decoded back into types.JobReport.
func toReportRecordMap(r types.JobReport, cfg Config, completedAt time.Time) map[string]any {
	m := map[string]any{
		"record_kind":  RecordKindReport,
		"job_id":       r.JobID,
		"event_type":   partitionReport,
		"day":          cfg.Day,
		"completed_at": completedAt.UTC().Format(time.RFC3339Nano),
		"report":       r,
	}
	if cfg.Machine != "" {
		m["machine"] = cfg.Machine
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot to a map for storage.
func toMetricsRecordMap(s metrics.Snapshot, cfg Config, completedAt time.Time) map[string]any {
	return map[string]any{
		"record_kind":                   RecordKindMetrics,
		"job_id":                        cfg.JobID,
		"event_type":                    partitionMetrics,
		"day":                           cfg.Day,
		"completed_at":                  completedAt.UTC().Format(time.RFC3339Nano),
		"jobs_started_total":            s.JobsStarted,
		"jobs_completed_total":          s.JobsCompleted,
		"jobs_canceled_total":           s.JobsCanceled,
		"events_emitted_total":          s.EventsEmitted,
		"events_overflow_total":         s.EventsOverflow,
		"events_received_total":         s.EventsReceived,
		"events_persisted_total":        s.EventsPersisted,
		"events_dropped_total":          s.EventsDropped,
		"dropped_by_type":               s.DroppedByType,
		"dispatch_dropped_total":        s.DispatchDropped,
		"dispatch_failed_total":         s.DispatchFailed,
		"lode_write_success_total":      s.LodeWriteSuccess,
		"lode_write_failure_total":      s.LodeWriteFailure,
		"adapter_publish_success_total": s.AdapterPublishSuccess,
		"adapter_publish_failure_total": s.AdapterPublishFailure,
		"policy":                        s.Policy,
		"storage_backend":               s.StorageBackend,
		"format":                        s.Format,
	}
}
