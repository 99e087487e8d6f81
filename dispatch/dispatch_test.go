package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// recorder logs every collaborator call in order.
type recorder struct {
	calls   []string
	syncErr error
}

func (r *recorder) Off()        { r.calls = append(r.calls, "needle_off") }
func (r *recorder) FeedHold()   { r.calls = append(r.calls, "hold") }
func (r *recorder) CycleStart() { r.calls = append(r.calls, "release") }

func (r *recorder) Synchronize(context.Context) error {
	r.calls = append(r.calls, "drain")
	return r.syncErr
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.calls = append(r.calls, "notify:"+ev.Message())
	return nil
}

func newSequencer(r *recorder) (*Sequencer, *Queue) {
	q := NewQueue(4, nil)
	return NewSequencer(q, r, r, r, r), q
}

func TestSequencer_Order(t *testing.T) {
	tests := []struct {
		name     string
		schedule func(s *Sequencer)
		want     string
	}{
		{
			name:     "trim",
			schedule: func(s *Sequencer) { s.ThreadTrim() },
			want:     "needle_off,drain,hold,notify:trim,release",
		},
		{
			name:     "thread change",
			schedule: func(s *Sequencer) { s.ThreadChange(5, "Red") },
			want:     "needle_off,drain,hold,notify:Red,release",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			s, q := newSequencer(r)

			tt.schedule(s)
			if len(r.calls) != 0 {
				t.Fatalf("scheduling ran work inline: %v", r.calls)
			}

			if n := q.RunPending(t.Context()); n != 1 {
				t.Fatalf("RunPending() = %d, want 1", n)
			}
			if got := strings.Join(r.calls, ","); got != tt.want {
				t.Errorf("calls = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSequencer_RunsOnce(t *testing.T) {
	r := &recorder{}
	s, q := newSequencer(r)
	s.ThreadChange(1, "Prussian Blue")

	q.RunPending(t.Context())
	q.RunPending(t.Context())

	if trims, changes := s.Handled(); trims != 0 || changes != 1 {
		t.Errorf("Handled() = %d, %d; want 0, 1", trims, changes)
	}
	if q.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", q.Pending())
	}
}

func TestSequencer_DrainFailureSkipsHold(t *testing.T) {
	r := &recorder{syncErr: context.Canceled}
	s, q := newSequencer(r)
	s.ThreadTrim()
	q.RunPending(t.Context())

	if got := strings.Join(r.calls, ","); got != "needle_off,drain" {
		t.Errorf("calls = %s", got)
	}
	if q.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", q.Failed())
	}
}

func TestQueue_FullAndPanic(t *testing.T) {
	q := NewQueue(1, nil)
	ran := 0

	if !q.Schedule(Task{Name: "boom", Run: func(context.Context) error { panic("bad task") }}) {
		t.Fatal("first Schedule should succeed")
	}
	if q.Schedule(Task{Name: "extra", Run: func(context.Context) error { ran++; return nil }}) {
		t.Fatal("Schedule on a full queue should fail")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}

	q.RunPending(t.Context())
	if q.Failed() != 1 || ran != 0 {
		t.Errorf("Failed() = %d, ran = %d", q.Failed(), ran)
	}
}

func TestQueue_TasksScheduledWhileRunningWait(t *testing.T) {
	q := NewQueue(4, nil)
	second := false
	q.Schedule(Task{Name: "first", Run: func(context.Context) error {
		q.Schedule(Task{Name: "second", Run: func(context.Context) error {
			second = true
			return nil
		}})
		return nil
	}})

	if n := q.RunPending(t.Context()); n != 1 {
		t.Fatalf("RunPending() = %d, want 1", n)
	}
	if second {
		t.Fatal("task scheduled during RunPending ran in the same pass")
	}
	q.RunPending(t.Context())
	if !second {
		t.Error("second task never ran")
	}
}

func TestPromptNotifier(t *testing.T) {
	var out bytes.Buffer
	n := NewPromptNotifier(strings.NewReader("\n"), &out)

	if err := n.Notify(t.Context(), Event{Kind: EventThreadChange, Color: 20, Thread: "Black"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if !strings.Contains(out.String(), "Black") {
		t.Errorf("prompt = %q, want thread name", out.String())
	}
}

func TestPromptNotifier_Canceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	n := NewPromptNotifier(pr, io.Discard)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := n.Notify(ctx, Event{Kind: EventTrim})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Notify() error = %v, want context.Canceled", err)
	}
}
