package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pithecene-io/stitcher/types"
)

// NeedleStopper switches the needle motor off.
type NeedleStopper interface {
	Off()
}

// Synchronizer waits for queued motion to complete.
type Synchronizer interface {
	Synchronize(ctx context.Context) error
}

// HoldReleaser holds and releases the machine.
type HoldReleaser interface {
	FeedHold()
	CycleStart()
}

// Sequencer turns thread events into foreground tasks that stop the
// needle, drain the motion buffer, hold the machine, notify and release.
type Sequencer struct {
	queue    *Queue
	needle   NeedleStopper
	planner  Synchronizer
	machine  HoldReleaser
	notifier Notifier

	trims   atomic.Int64
	changes atomic.Int64
}

// NewSequencer creates a Sequencer scheduling onto q.
func NewSequencer(q *Queue, needle NeedleStopper, planner Synchronizer, machine HoldReleaser, notifier Notifier) *Sequencer {
	return &Sequencer{
		queue:    q,
		needle:   needle,
		planner:  planner,
		machine:  machine,
		notifier: notifier,
	}
}

// ThreadTrim schedules a trim event.
func (s *Sequencer) ThreadTrim() {
	s.schedule(Event{Kind: EventTrim})
}

// ThreadChange schedules a thread change event.
func (s *Sequencer) ThreadChange(color types.ThreadColor, thread string) {
	s.schedule(Event{Kind: EventThreadChange, Color: color, Thread: thread})
}

// Handled returns the number of completed trim and thread change events.
func (s *Sequencer) Handled() (trims, changes int64) {
	return s.trims.Load(), s.changes.Load()
}

func (s *Sequencer) schedule(ev Event) {
	s.queue.Schedule(Task{
		Name: ev.Kind.String(),
		Run: func(ctx context.Context) error {
			return s.run(ctx, ev)
		},
	})
}

func (s *Sequencer) run(ctx context.Context, ev Event) error {
	s.needle.Off()

	if err := s.planner.Synchronize(ctx); err != nil {
		return fmt.Errorf("synchronize before %s: %w", ev.Kind, err)
	}

	s.machine.FeedHold()
	err := s.notifier.Notify(ctx, ev)
	s.machine.CycleStart()
	if err != nil {
		return fmt.Errorf("notify %s: %w", ev.Kind, err)
	}

	if ev.Kind == EventTrim {
		s.trims.Add(1)
	} else {
		s.changes.Add(1)
	}
	return nil
}
