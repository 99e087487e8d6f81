package types

// ContractVersion is the telemetry contract version.
const ContractVersion = "0.3.0"

// JobEventType is the telemetry event discriminator.
type JobEventType string

// Job event types.
const (
	JobEventStarted      JobEventType = "job_started"
	JobEventStitch       JobEventType = "stitch"
	JobEventJump         JobEventType = "jump"
	JobEventTrim         JobEventType = "trim"
	JobEventThreadChange JobEventType = "thread_change"
	JobEventSequinEject  JobEventType = "sequin_eject"
	JobEventTriggerError JobEventType = "trigger_error"
	JobEventCompleted    JobEventType = "job_completed"
	JobEventCanceled     JobEventType = "job_canceled"
)

// IsTerminal returns true if this event type ends a job.
func (e JobEventType) IsTerminal() bool {
	return e == JobEventCompleted || e == JobEventCanceled
}

// EventTypeForStitch maps a dispatched stitch type to its telemetry type.
func EventTypeForStitch(t StitchType) JobEventType {
	switch t {
	case StitchJump:
		return JobEventJump
	case StitchTrim:
		return JobEventTrim
	case StitchStop:
		return JobEventThreadChange
	case StitchSequinEject:
		return JobEventSequinEject
	default:
		return JobEventStitch
	}
}

// JobEvent is the telemetry envelope.
// msgpack tags define the frame wire format; json tags the storage format.
type JobEvent struct {
	// ContractVersion is the semantic version of the telemetry contract.
	ContractVersion string `msgpack:"contract_version" json:"contract_version"`
	// EventID is unique within the job.
	EventID string `msgpack:"event_id" json:"event_id"`
	// JobID is the job this event belongs to.
	JobID string `msgpack:"job_id" json:"job_id"`
	// Seq is monotonic within the job, starting at 1.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Type is the event type discriminator.
	Type JobEventType `msgpack:"type" json:"type"`
	// Ts is the event timestamp in RFC 3339 UTC.
	Ts string `msgpack:"ts" json:"ts"`
	// Payload is the type-specific payload.
	Payload map[string]any `msgpack:"payload" json:"payload"`
}

// IsDroppable returns true if the event may be dropped under backpressure.
// Only high-volume motion events are droppable.
func (e JobEventType) IsDroppable() bool {
	return e == JobEventStitch || e == JobEventJump
}
