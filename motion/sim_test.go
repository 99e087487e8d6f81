package motion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/stitcher/types"
)

func startSim(t *testing.T, cfg Config) (*Sim, context.Context) {
	t.Helper()
	if cfg.Speedup == 0 {
		cfg.Speedup = 1000
	}
	sim := NewSim(cfg)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sim, ctx
}

type stateLog struct {
	mu     sync.Mutex
	states []types.MachineState
}

func (l *stateLog) record(s types.MachineState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) snapshot() []types.MachineState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.MachineState(nil), l.states...)
}

func TestSim_PlannerCapacity(t *testing.T) {
	sim := NewSim(Config{BlockBuffer: 3})

	for i := range 3 {
		if err := sim.Line(types.Position{X: float64(i)}, 1000); err != nil {
			t.Fatalf("Line() %d error = %v", i, err)
		}
	}
	if sim.FreeSlots() != 0 {
		t.Errorf("FreeSlots() = %d, want 0", sim.FreeSlots())
	}
	if err := sim.Rapid(types.Position{X: 9}); !errors.Is(err, ErrPlannerFull) {
		t.Errorf("Rapid() on full buffer error = %v, want ErrPlannerFull", err)
	}
	if got := sim.Position(); got.X != 2 {
		t.Errorf("Position() = %+v, want the last queued target", got)
	}
	if sim.Idle() {
		t.Error("Idle() with queued blocks should be false")
	}
}

func TestSim_ExecutesAndSynchronizes(t *testing.T) {
	sim, ctx := startSim(t, Config{})
	states := &stateLog{}
	sim.OnStateChange(states.record)

	if err := sim.Line(types.Position{X: 3, Y: 4}, 6000); err != nil {
		t.Fatal(err)
	}
	if err := sim.Rapid(types.Position{X: 3, Y: 4, Z: -2}); err != nil {
		t.Fatal(err)
	}

	if err := sim.Synchronize(ctx); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if !sim.Idle() {
		t.Error("Idle() after Synchronize should be true")
	}

	st := sim.Stats()
	if st.Blocks != 2 || st.Distance != 7 {
		t.Errorf("Blocks/Distance = %d/%v, want 2/7", st.Blocks, st.Distance)
	}
	if st.Position != (types.Position{X: 3, Y: 4, Z: -2}) {
		t.Errorf("Position = %+v", st.Position)
	}

	got := states.snapshot()
	if len(got) < 2 || got[0] != types.MachineCycle || got[len(got)-1] != types.MachineIdle {
		t.Errorf("states = %v, want cycle ... idle", got)
	}
}

func TestSim_HoldStopsExecution(t *testing.T) {
	sim, ctx := startSim(t, Config{})

	sim.FeedHold()
	if sim.State() != types.MachineHold {
		t.Fatalf("State() = %v, want hold", sim.State())
	}

	if err := sim.Line(types.Position{X: 1}, 6000); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if sim.Idle() {
		t.Fatal("block executed while held")
	}

	sim.CycleStart()
	if err := sim.Synchronize(ctx); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if sim.State() != types.MachineIdle {
		t.Errorf("State() = %v, want idle", sim.State())
	}
}

func TestSim_SynchronizeCanceled(t *testing.T) {
	sim := NewSim(Config{})
	if err := sim.Line(types.Position{X: 1}, 100); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := sim.Synchronize(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Synchronize() error = %v, want context.Canceled", err)
	}
}

func TestSim_SensorPulses(t *testing.T) {
	sim, _ := startSim(t, Config{InterruptPorts: []int{2}, NeedleRPM: 6000, Speedup: 10})

	if err := sim.Claim(1, func() {}); !errors.Is(err, ErrPortUnavailable) {
		t.Errorf("Claim(1) error = %v, want ErrPortUnavailable", err)
	}

	var pulses atomic.Int64
	if err := sim.Claim(2, func() { pulses.Add(1) }); err != nil {
		t.Fatalf("Claim(2) error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if pulses.Load() != 0 {
		t.Fatal("pulses while the needle is off")
	}

	sim.SetNeedle(true)
	deadline := time.Now().Add(2 * time.Second)
	for pulses.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pulses.Load() < 3 {
		t.Errorf("pulses = %d, want at least 3", pulses.Load())
	}
}

func TestSim_Outputs(t *testing.T) {
	sim := NewSim(Config{})
	sim.SetOutput(4, true)
	if !sim.Output(4) || sim.Output(5) {
		t.Error("output levels not tracked per port")
	}
}
