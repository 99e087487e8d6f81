package job

import (
	"time"

	"github.com/pithecene-io/stitcher/types"
)

// Tick advances the job by at most one stitch. It never blocks and never
// performs file I/O; call it once per scheduling opportunity from the
// foreground goroutine.
func (c *Context) Tick() {
	if !c.armed.Load() || c.completed.Load() {
		return
	}
	if c.cancelRequested.Load() {
		c.finish(types.OutcomeCanceled)
		return
	}

	now := time.Duration(c.since())

	if c.spindleStop > 0 && now-time.Duration(c.lastTrigger.Load()) >= c.spindleStop {
		c.deps.Needle.Off()
		c.spindleStop = 0
	}

	c.releaseJumpSettle(now)

	if c.await.Load() != 0 {
		return
	}

	if c.queue.Empty() {
		// Enqueued is set only after the last push, so an empty queue
		// here means every decoded stitch has been dispatched.
		if c.enqueued.Load() {
			c.finish(types.OutcomeCompleted)
		}
		return
	}

	if c.deps.Planner.FreeSlots() < c.settings.MinPlannerSlots {
		return
	}

	next, _ := c.queue.Peek()
	// Let non-stitching moves finish before stitching starts.
	if !c.stitching.Load() && next.Type == types.StitchNormal && c.machine() != types.MachineIdle {
		return
	}

	s, _ := c.queue.Pop()
	wasStitching := c.stitching.Load()
	if wasStitching {
		c.lookahead()
	}

	stitching := s.Type == types.StitchNormal
	c.stitching.Store(stitching)
	if stitching && !wasStitching {
		c.setJumpOutput(false)
	}
	if !stitching && c.settings.StopDelay == 0 {
		c.deps.Needle.Off()
		c.spindleStop = 0
	}

	c.dispatch(s)
}

// lookahead inspects the stitch after the one being dispatched while
// stitching. When stitching is about to end the needle is stopped early, or the jump
// output raised, to avoid overshoot.
func (c *Context) lookahead() {
	next, ok := c.queue.Peek()
	if !ok || next.Type == types.StitchNormal {
		return
	}
	switch {
	case c.settings.JumpOutput:
		c.setJumpOutput(true)
	case c.settings.LookaheadStop && c.settings.StopDelay > 0:
		c.spindleStop = c.settings.StopDelay
	}
}

func (c *Context) dispatch(s types.Stitch) {
	pos := *c.position.Load()
	pos.X += s.Target.X
	pos.Y += s.Target.Y

	payload := map[string]any{
		"type": s.Type.String(),
		"x":    pos.X,
		"y":    pos.Y,
	}

	switch s.Type {
	case types.StitchNormal:
		c.first.Store(c.deps.Needle.On())
		c.line(pos)
		if c.syncMode {
			c.await.Or(awaitTrigger)
		} else {
			stroke := pos
			stroke.Z -= c.settings.ZTravel
			c.line(stroke)
			c.line(pos)
		}

	case types.StitchJump:
		c.setJumpOutput(true)
		c.rapid(pos)
		if c.settings.JumpSettle > 0 {
			c.settling = false
			c.await.Or(awaitJumpSettle)
		}

	case types.StitchTrim:
		c.await.Or(awaitPaused)
		c.rapid(pos)
		c.spindleStop = c.settings.StopDelay
		c.deps.Dispatcher.ThreadTrim()

	case types.StitchStop:
		// Thread changes move the hoop by hand; no motion is queued.
		c.await.Or(awaitPaused)
		c.color = s.Color
		thread := c.dec.ThreadName(s.Color)
		payload["color"] = int(s.Color)
		payload["thread"] = thread
		c.spindleStop = c.settings.StopDelay
		c.deps.Dispatcher.ThreadChange(s.Color, thread)

	case types.StitchSequinEject:
		// No sequin hardware; counted only.
	}

	c.position.Store(&pos)
	c.executed.add(s.Type)
	c.observe(types.EventTypeForStitch(s.Type), payload)
}

// releaseJumpSettle clears the jump settle hold once the machine has
// been idle for the configured settle time.
func (c *Context) releaseJumpSettle(now time.Duration) {
	if c.await.Load()&awaitJumpSettle == 0 {
		return
	}
	if c.machine() != types.MachineIdle || !c.deps.Planner.Idle() {
		c.settling = false
		return
	}
	if !c.settling {
		c.settling = true
		c.settleSince = now
	}
	if now-c.settleSince >= c.settings.JumpSettle {
		c.settling = false
		c.await.And(^awaitJumpSettle)
	}
}

func (c *Context) line(target types.Position) {
	if err := c.deps.Planner.Line(target, c.settings.Feedrate); err != nil {
		c.logger.Warn("planner rejected line", map[string]any{"error": err.Error()})
	}
}

func (c *Context) rapid(target types.Position) {
	if err := c.deps.Planner.Rapid(target); err != nil {
		c.logger.Warn("planner rejected rapid", map[string]any{"error": err.Error()})
	}
}

func (c *Context) machine() types.MachineState {
	return types.MachineState(c.machineState.Load())
}
