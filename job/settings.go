package job

import (
	"fmt"
	"time"

	"github.com/pithecene-io/stitcher/queue"
)

// Default machine settings.
const (
	DefaultFeedrate        = 4000.0 // mm/min
	DefaultZTravel         = 10.0   // mm
	DefaultTriggerDebounce = 15 * time.Millisecond
	DefaultMinPlannerSlots = 3
)

// Settings configures a job. Zero durations disable the matching feature.
type Settings struct {
	// Feedrate is the cutting speed for Normal stitches in mm/min.
	Feedrate float64
	// ZTravel is the needle stroke in mm when the needle is driven by a
	// stepper instead of a motor with a position sensor.
	ZTravel float64
	// SyncMode gates each stitch on a needle sensor pulse.
	SyncMode bool
	// TriggerPort is the input port of the needle sensor.
	TriggerPort int
	// StopDelay is how long after the last needle pulse the motor is
	// switched off once a non-stitching move is reached.
	StopDelay time.Duration
	// LookaheadStop schedules the motor stop while the last Normal stitch
	// before a non-Normal one is still running.
	LookaheadStop bool
	// JumpSettle holds the queue after a jump until the machine has been
	// idle for this long.
	JumpSettle time.Duration
	// JumpOutput raises JumpOutputPort ahead of and during jumps instead
	// of the look-ahead motor stop.
	JumpOutput     bool
	JumpOutputPort int
	// CycleOutputPort mirrors the machine Cycle state. Negative disables it.
	CycleOutputPort int
	// TriggerDebounce rejects sensor pulses closer than this to the previous one.
	TriggerDebounce time.Duration
	// QueueSize is the stitch queue slot count (power of two).
	QueueSize int
	// MinPlannerSlots is the free planner capacity required to dispatch.
	MinPlannerSlots int
}

// DefaultSettings returns the stock settings.
func DefaultSettings() Settings {
	return Settings{
		Feedrate:        DefaultFeedrate,
		ZTravel:         DefaultZTravel,
		LookaheadStop:   true,
		TriggerDebounce: DefaultTriggerDebounce,
		QueueSize:       queue.DefaultSize,
		MinPlannerSlots: DefaultMinPlannerSlots,
	}
}

// Validate checks the settings for values the job cannot run with.
func (s Settings) Validate() error {
	if s.Feedrate <= 0 {
		return fmt.Errorf("feedrate must be positive, got %v", s.Feedrate)
	}
	if s.ZTravel < 0 {
		return fmt.Errorf("z_travel must not be negative, got %v", s.ZTravel)
	}
	if s.QueueSize < 2 || s.QueueSize&(s.QueueSize-1) != 0 {
		return fmt.Errorf("queue_size must be a power of two >= 2, got %d", s.QueueSize)
	}
	if s.MinPlannerSlots < 1 {
		return fmt.Errorf("min_planner_slots must be >= 1, got %d", s.MinPlannerSlots)
	}
	if s.StopDelay < 0 || s.JumpSettle < 0 || s.TriggerDebounce < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
