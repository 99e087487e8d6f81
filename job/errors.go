package job

import "errors"

var (
	// ErrTriggerTiming is recorded when a needle pulse arrives while the
	// machine is still moving. It is counted, never returned to the sensor.
	ErrTriggerTiming = errors.New("needle trigger while machine in motion")
	// ErrQueueFull is returned by Refill when no slot is free. Retry later.
	ErrQueueFull = errors.New("stitch queue full")
	// ErrNoSensor is logged once when sync mode cannot claim the trigger
	// port. The job falls back to stepper needle strokes.
	ErrNoSensor = errors.New("needle sensor not available")
	// ErrNotArmed is returned when an operation needs an open file.
	ErrNotArmed = errors.New("job not armed")
	// ErrAlreadyArmed is returned by Arm on a context that already has a file.
	ErrAlreadyArmed = errors.New("job already armed")
)
