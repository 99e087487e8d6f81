package job

import (
	"sync/atomic"

	"github.com/pithecene-io/stitcher/types"
)

// counters is the lock-free form of types.Counters.
type counters struct {
	stitches      atomic.Int64
	jumps         atomic.Int64
	trims         atomic.Int64
	threadChanges atomic.Int64
	sequinEjects  atomic.Int64
}

func (c *counters) add(t types.StitchType) {
	switch t {
	case types.StitchNormal:
		c.stitches.Add(1)
	case types.StitchJump:
		c.jumps.Add(1)
	case types.StitchTrim:
		c.trims.Add(1)
	case types.StitchStop:
		c.threadChanges.Add(1)
	case types.StitchSequinEject:
		c.sequinEjects.Add(1)
	}
}

func (c *counters) load() types.Counters {
	return types.Counters{
		Stitches:      c.stitches.Load(),
		Jumps:         c.jumps.Load(),
		Trims:         c.trims.Load(),
		ThreadChanges: c.threadChanges.Load(),
		SequinEjects:  c.sequinEjects.Load(),
	}
}
