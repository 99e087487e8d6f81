package job

import (
	"context"
	"time"

	"github.com/pithecene-io/stitcher/types"
)

// Planner queues motion blocks. Targets are absolute machine positions.
type Planner interface {
	// Line queues a feed move to target at feed mm/min.
	Line(target types.Position, feed float64) error
	// Rapid queues a rapid move to target.
	Rapid(target types.Position) error
	// FreeSlots returns the number of free block slots.
	FreeSlots() int
	// Idle reports whether no block is queued or executing.
	Idle() bool
	// Position returns the machine position after all queued blocks.
	Position() types.Position
	// Synchronize blocks until every queued block has executed.
	Synchronize(ctx context.Context) error
}

// Machine is the controller state surface.
type Machine interface {
	State() types.MachineState
	FeedHold()
	CycleStart()
}

// Spindle switches the needle motor.
type Spindle interface {
	SetNeedle(on bool)
}

// Outputs drives digital output ports.
type Outputs interface {
	SetOutput(port int, on bool)
}

// Sensor delivers needle position pulses.
type Sensor interface {
	// Claim registers fn for pulses on port. It fails if the port cannot
	// be used as an interrupt input.
	Claim(port int, fn func()) error
}

// Dispatcher runs thread events outside the tick.
// Both methods must return without blocking.
type Dispatcher interface {
	ThreadTrim()
	ThreadChange(color types.ThreadColor, thread string)
}

// Observer receives job events. Observe is called from the tick and from
// the sensor callback and must not block.
type Observer interface {
	Observe(t types.JobEventType, payload map[string]any)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t types.JobEventType, payload map[string]any)

// Observe implements Observer.
func (f ObserverFunc) Observe(t types.JobEventType, payload map[string]any) {
	f(t, payload)
}

// Clock returns the current time.
type Clock func() time.Time
