package job

import "sync/atomic"

// Needle tracks the needle motor state in front of a Spindle.
// It is shared between the tick and the thread event dispatcher.
type Needle struct {
	spindle Spindle
	on      atomic.Bool
}

// NewNeedle wraps spindle. A nil spindle only tracks state.
func NewNeedle(spindle Spindle) *Needle {
	return &Needle{spindle: spindle}
}

// On switches the motor on. Returns true if it was off.
func (n *Needle) On() bool {
	if !n.on.CompareAndSwap(false, true) {
		return false
	}
	if n.spindle != nil {
		n.spindle.SetNeedle(true)
	}
	return true
}

// Off switches the motor off if it is on.
func (n *Needle) Off() {
	if !n.on.CompareAndSwap(true, false) {
		return
	}
	if n.spindle != nil {
		n.spindle.SetNeedle(false)
	}
}

// IsOn reports the motor state.
func (n *Needle) IsOn() bool {
	return n.on.Load()
}
