package job

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/stitcher/codec"
	"github.com/pithecene-io/stitcher/types"
)

type move struct {
	rapid  bool
	target types.Position
}

type fakePlanner struct {
	moves []move
	free  int
	idle  bool
}

func (p *fakePlanner) Line(target types.Position, _ float64) error {
	p.moves = append(p.moves, move{target: target})
	return nil
}

func (p *fakePlanner) Rapid(target types.Position) error {
	p.moves = append(p.moves, move{rapid: true, target: target})
	return nil
}

func (p *fakePlanner) FreeSlots() int                    { return p.free }
func (p *fakePlanner) Idle() bool                        { return p.idle }
func (p *fakePlanner) Position() types.Position          { return types.Position{} }
func (p *fakePlanner) Synchronize(context.Context) error { return nil }

// fakeMachine reports state changes back to the job like a controller.
type fakeMachine struct {
	state  types.MachineState
	job    *Context
	holds  int
	starts int
}

func (m *fakeMachine) State() types.MachineState { return m.state }

func (m *fakeMachine) set(s types.MachineState) {
	m.state = s
	if m.job != nil {
		m.job.OnStateChange(s)
	}
}

func (m *fakeMachine) FeedHold() {
	m.holds++
	m.set(types.MachineHold)
}

func (m *fakeMachine) CycleStart() {
	m.starts++
	m.set(types.MachineIdle)
}

type fakeSpindle struct {
	history []bool
}

func (s *fakeSpindle) SetNeedle(on bool) { s.history = append(s.history, on) }

func (s *fakeSpindle) on() bool {
	return len(s.history) > 0 && s.history[len(s.history)-1]
}

type fakeOutputs struct {
	mu    sync.Mutex
	ports map[int]bool
}

func (o *fakeOutputs) SetOutput(port int, on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ports == nil {
		o.ports = make(map[int]bool)
	}
	o.ports[port] = on
}

func (o *fakeOutputs) get(port int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[port]
}

type fakeSensor struct {
	err error
	fn  func()
}

func (s *fakeSensor) Claim(_ int, fn func()) error {
	if s.err != nil {
		return s.err
	}
	s.fn = fn
	return nil
}

type fakeDispatcher struct {
	trims   int
	changes []string
}

func (d *fakeDispatcher) ThreadTrim() { d.trims++ }

func (d *fakeDispatcher) ThreadChange(_ types.ThreadColor, thread string) {
	d.changes = append(d.changes, thread)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingObserver struct {
	mu     sync.Mutex
	events []types.JobEventType
}

func (o *recordingObserver) Observe(t types.JobEventType, _ map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, t)
}

func (o *recordingObserver) count(t types.JobEventType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.events {
		if e == t {
			n++
		}
	}
	return n
}

// sliceDecoder replays a fixed stitch list, then returns end.
type sliceDecoder struct {
	stitches []types.Stitch
	end      error
}

func (d *sliceDecoder) Design() types.Design {
	return types.Design{Name: "fixture", Format: "test", Stitches: uint32(len(d.stitches))}
}

func (d *sliceDecoder) Next() (types.Stitch, error) {
	if len(d.stitches) == 0 {
		if d.end != nil {
			return types.Stitch{}, d.end
		}
		return types.Stitch{}, io.EOF
	}
	s := d.stitches[0]
	d.stitches = d.stitches[1:]
	return s, nil
}

func (d *sliceDecoder) ThreadName(c types.ThreadColor) string {
	return codec.PECThreadName(c)
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error {
	c.n++
	return nil
}

var errNoInterrupt = errors.New("port has no interrupt capability")

// harness wires a Context to fakes.
type harness struct {
	t          *testing.T
	ctx        *Context
	dec        codec.Decoder
	planner    *fakePlanner
	machine    *fakeMachine
	spindle    *fakeSpindle
	outputs    *fakeOutputs
	sensor     *fakeSensor
	dispatcher *fakeDispatcher
	clock      *fakeClock
	observer   *recordingObserver
	file       *closeCounter
	reports    []types.JobReport
}

func newHarness(t *testing.T, settings Settings, stitches ...types.Stitch) *harness {
	t.Helper()
	return newHarnessWithDecoder(t, settings, &sliceDecoder{stitches: stitches})
}

func newHarnessWithDecoder(t *testing.T, settings Settings, dec codec.Decoder) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		dec:        dec,
		planner:    &fakePlanner{free: 16, idle: true},
		machine:    &fakeMachine{},
		spindle:    &fakeSpindle{},
		outputs:    &fakeOutputs{},
		sensor:     &fakeSensor{},
		dispatcher: &fakeDispatcher{},
		clock:      &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		observer:   &recordingObserver{},
		file:       &closeCounter{},
	}

	jc, err := New(settings, Deps{
		Planner:    h.planner,
		Machine:    h.machine,
		Needle:     NewNeedle(h.spindle),
		Outputs:    h.outputs,
		Sensor:     h.sensor,
		Dispatcher: h.dispatcher,
		Observer:   h.observer,
		Clock:      h.clock.Now,
		OnDone:     func(r types.JobReport) { h.reports = append(h.reports, r) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.ctx = jc
	h.machine.job = jc
	return h
}

func (h *harness) arm() {
	h.t.Helper()
	if err := h.ctx.Arm(types.JobMeta{JobID: "job-1", File: "fixture.pes"}, h.dec, h.file); err != nil {
		h.t.Fatalf("Arm() error = %v", err)
	}
}

// fill refills until the queue is full or the decoder is exhausted.
func (h *harness) fill() {
	h.t.Helper()
	for {
		err := h.ctx.Refill()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrQueueFull) || errors.Is(err, io.EOF) {
			return
		}
		h.t.Fatalf("Refill() error = %v", err)
	}
}
