// Package reader decodes stored Lode records back into typed values
// for the read-only CLI commands.
//
// Records come back from storage as map[string]any. Numeric fields may be
// int64 (in-memory stores) or float64 (JSON round-trips); both are accepted.
package reader

import "github.com/pithecene-io/stitcher/metrics"

// MetricsRecord is a stored per-job metrics snapshot.
type MetricsRecord struct {
	JobID       string           `json:"job_id"`
	Day         string           `json:"day"`
	CompletedAt string           `json:"completed_at"`
	Metrics     metrics.Snapshot `json:"metrics"`
}
