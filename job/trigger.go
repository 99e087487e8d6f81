package job

import (
	"sync/atomic"
	"time"

	"github.com/pithecene-io/stitcher/types"
)

// Trigger records a needle sensor pulse. Called from the sensor
// goroutine; it only touches atomics.
func (c *Context) Trigger() {
	now := c.since()
	last := c.lastTrigger.Load()

	if c.await.Load()&awaitTrigger != 0 && time.Duration(now-last) > c.settings.TriggerDebounce {
		interval := now - last
		c.triggerInterval.Store(interval)
		storeMin(&c.minTriggerInterval, interval)

		if c.machine() == types.MachineCycle {
			errs := c.triggerErrors.Add(1)
			c.observe(types.JobEventTriggerError, map[string]any{
				"interval_ms": time.Duration(interval).Milliseconds(),
				"errors":      errs,
			})
			c.logger.Warn(ErrTriggerTiming.Error(), map[string]any{
				"interval_ms": time.Duration(interval).Milliseconds(),
				"errors":      errs,
			})
			return
		}

		c.await.And(^awaitTrigger)
	}

	c.triggers.Add(1)
	c.lastTrigger.Store(now)
}

// OnStateChange mirrors a machine state change into the job. Leaving
// Hold resumes a job paused by a thread event.
func (c *Context) OnStateChange(state types.MachineState) {
	if state == types.MachineIdle && c.stitching.Load() {
		if c.first.Load() {
			c.first.Store(false)
		} else {
			storeMax(&c.stitchInterval, c.since()-c.lastTrigger.Load())
		}
	}

	if c.deps.Outputs != nil && c.settings.CycleOutputPort >= 0 {
		c.deps.Outputs.SetOutput(c.settings.CycleOutputPort, state == types.MachineCycle)
	}

	if prev := types.MachineState(c.machineState.Swap(uint32(state))); prev == types.MachineHold && state != types.MachineHold {
		c.await.And(^awaitPaused)
	}
}

func storeMin(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if cur != 0 && cur <= n {
			return
		}
		if v.CompareAndSwap(cur, n) {
			return
		}
	}
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if cur >= n {
			return
		}
		if v.CompareAndSwap(cur, n) {
			return
		}
	}
}
