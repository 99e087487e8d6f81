// Package motion simulates the machine side of a job: a motion planner
// with a bounded block buffer, the controller state, the needle motor,
// digital outputs and the needle position sensor.
//
// Sim executes blocks in real time (scaled by Speedup) on its own
// goroutine, so a job can be streamed and observed without hardware.
package motion

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/pithecene-io/stitcher/log"
	"github.com/pithecene-io/stitcher/types"
)

// Simulation defaults.
const (
	DefaultBlockBuffer = 16
	DefaultRapidRate   = 12000.0 // mm/min
	DefaultNeedleRPM   = 600.0
)

var (
	// ErrPlannerFull is returned when a block is queued with no free slot.
	ErrPlannerFull = errors.New("planner block buffer full")
	// ErrPortUnavailable is returned by Claim for ports without interrupt support.
	ErrPortUnavailable = errors.New("port has no interrupt capability")
)

// Config configures a Sim.
type Config struct {
	// BlockBuffer is the planner capacity in blocks.
	BlockBuffer int
	// RapidRate is the rapid traverse speed in mm/min.
	RapidRate float64
	// NeedleRPM is the needle motor speed; one sensor pulse per revolution.
	NeedleRPM float64
	// Speedup divides every simulated duration. 0 means real time.
	Speedup float64
	// InterruptPorts lists the input ports a sensor can be claimed on.
	InterruptPorts []int
	Logger         *log.Logger
}

// Block is one queued motion.
type Block struct {
	Rapid  bool
	Target types.Position
	Feed   float64
}

// Stats summarizes executed motion.
type Stats struct {
	Blocks      int64
	Distance    float64
	Pulses      int64
	NeedleOn    bool
	Position    types.Position
	State       types.MachineState
	QueuedSlots int
}

// Sim is a simulated planner, machine, spindle, output bank and sensor.
// All methods are safe for concurrent use.
type Sim struct {
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	blocks    []Block
	executing bool
	hold      bool
	state     types.MachineState
	planned   types.Position
	current   types.Position
	drained   chan struct{}
	observers []func(types.MachineState)
	needleOn  bool
	outputs   map[int]bool
	sensorFn  func()
	stats     Stats

	wake chan struct{}
}

// NewSim creates a simulator. Call Run to start executing blocks.
func NewSim(cfg Config) *Sim {
	if cfg.BlockBuffer <= 0 {
		cfg.BlockBuffer = DefaultBlockBuffer
	}
	if cfg.RapidRate <= 0 {
		cfg.RapidRate = DefaultRapidRate
	}
	if cfg.NeedleRPM <= 0 {
		cfg.NeedleRPM = DefaultNeedleRPM
	}
	if cfg.Speedup <= 0 {
		cfg.Speedup = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	drained := make(chan struct{})
	close(drained)
	return &Sim{
		cfg:     cfg,
		logger:  cfg.Logger,
		drained: drained,
		outputs: make(map[int]bool),
		wake:    make(chan struct{}, 1),
	}
}

// OnStateChange registers fn for machine state changes. fn is called
// from the simulator goroutine without locks held.
func (s *Sim) OnStateChange(fn func(types.MachineState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// --- planner ---

// Line queues a feed move.
func (s *Sim) Line(target types.Position, feed float64) error {
	return s.queue(Block{Target: target, Feed: feed})
}

// Rapid queues a rapid move.
func (s *Sim) Rapid(target types.Position) error {
	return s.queue(Block{Rapid: true, Target: target})
}

func (s *Sim) queue(b Block) error {
	s.mu.Lock()
	if s.freeLocked() == 0 {
		s.mu.Unlock()
		return ErrPlannerFull
	}
	if s.idleLocked() {
		s.drained = make(chan struct{})
	}
	s.blocks = append(s.blocks, b)
	s.planned = b.Target
	s.mu.Unlock()

	s.signal()
	return nil
}

// FreeSlots returns the free block capacity. The executing block holds a slot.
func (s *Sim) FreeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freeLocked()
}

func (s *Sim) freeLocked() int {
	used := len(s.blocks)
	if s.executing {
		used++
	}
	return s.cfg.BlockBuffer - used
}

// Idle reports whether no block is queued or executing.
func (s *Sim) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleLocked()
}

func (s *Sim) idleLocked() bool {
	return len(s.blocks) == 0 && !s.executing
}

// Position returns the position after all queued blocks.
func (s *Sim) Position() types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planned
}

// Synchronize blocks until all queued blocks have executed.
func (s *Sim) Synchronize(ctx context.Context) error {
	s.mu.Lock()
	drained := s.drained
	s.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- machine ---

// State returns the controller state.
func (s *Sim) State() types.MachineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FeedHold stops taking new blocks and enters Hold.
func (s *Sim) FeedHold() {
	s.mu.Lock()
	s.hold = true
	s.mu.Unlock()
	s.setState(types.MachineHold)
}

// CycleStart leaves Hold and resumes execution.
func (s *Sim) CycleStart() {
	s.mu.Lock()
	s.hold = false
	next := types.MachineIdle
	if !s.idleLocked() {
		next = types.MachineCycle
	}
	s.mu.Unlock()

	s.setState(next)
	s.signal()
}

func (s *Sim) setState(state types.MachineState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

// --- spindle, outputs, sensor ---

// SetNeedle switches the needle motor.
func (s *Sim) SetNeedle(on bool) {
	s.mu.Lock()
	s.needleOn = on
	s.mu.Unlock()
}

// SetOutput drives a digital output.
func (s *Sim) SetOutput(port int, on bool) {
	s.mu.Lock()
	s.outputs[port] = on
	s.mu.Unlock()
}

// Output returns the level of a digital output.
func (s *Sim) Output(port int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[port]
}

// Claim registers fn for needle pulses on port.
func (s *Sim) Claim(port int, fn func()) error {
	if !slices.Contains(s.cfg.InterruptPorts, port) {
		return ErrPortUnavailable
	}
	s.mu.Lock()
	s.sensorFn = fn
	s.mu.Unlock()
	return nil
}

// Stats returns executed motion totals.
func (s *Sim) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.NeedleOn = s.needleOn
	st.Position = s.current
	st.State = s.state
	st.QueuedSlots = s.cfg.BlockBuffer - s.freeLocked()
	return st
}

// --- execution ---

// Run executes blocks and generates needle pulses until ctx is done.
func (s *Sim) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runNeedle(ctx)
	}()
	defer wg.Wait()

	for {
		b, ok := s.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		s.setState(types.MachineCycle)
		if err := s.sleep(ctx, s.duration(b)); err != nil {
			return err
		}
		s.complete(b)
	}
}

// next pops the next block unless held.
func (s *Sim) next() (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold || len(s.blocks) == 0 {
		return Block{}, false
	}
	b := s.blocks[0]
	s.blocks = s.blocks[1:]
	s.executing = true
	return b, true
}

func (s *Sim) complete(b Block) {
	s.mu.Lock()
	s.stats.Blocks++
	s.stats.Distance += distance(s.current, b.Target)
	s.current = b.Target
	s.executing = false
	idle := s.idleLocked()
	hold := s.hold
	if idle {
		close(s.drained)
	}
	s.mu.Unlock()

	switch {
	case hold:
		s.setState(types.MachineHold)
	case idle:
		s.setState(types.MachineIdle)
	}
}

func (s *Sim) duration(b Block) time.Duration {
	rate := b.Feed
	if b.Rapid || rate <= 0 {
		rate = s.cfg.RapidRate
	}
	seconds := distance(s.currentPosition(), b.Target) / (rate / 60)
	return time.Duration(seconds / s.cfg.Speedup * float64(time.Second))
}

func (s *Sim) currentPosition() types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// runNeedle emits one sensor pulse per needle revolution while the
// motor is on.
func (s *Sim) runNeedle(ctx context.Context) {
	period := time.Duration(float64(time.Minute) / s.cfg.NeedleRPM / s.cfg.Speedup)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			fn := s.sensorFn
			on := s.needleOn
			if on && fn != nil {
				s.stats.Pulses++
			}
			s.mu.Unlock()
			if on && fn != nil {
				fn()
			}
		}
	}
}

func (s *Sim) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sim) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func distance(a, b types.Position) float64 {
	dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
