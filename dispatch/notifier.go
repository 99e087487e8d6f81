package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/pithecene-io/stitcher/log"
	"github.com/pithecene-io/stitcher/types"
)

// EventKind identifies a thread event.
type EventKind int

const (
	// EventTrim asks the operator to cut the thread.
	EventTrim EventKind = iota
	// EventThreadChange asks the operator to change the thread.
	EventThreadChange
)

// String returns the event name.
func (k EventKind) String() string {
	if k == EventTrim {
		return "trim"
	}
	return "thread_change"
}

// Event is a thread event presented to the operator while the machine
// is held.
type Event struct {
	Kind   EventKind
	Color  types.ThreadColor
	Thread string
}

// Message returns the operator-facing text.
func (e Event) Message() string {
	if e.Kind == EventTrim {
		return "trim"
	}
	return e.Thread
}

// Notifier is told about each thread event. Notify may block; the
// machine stays held until it returns.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// LogNotifier reports thread events to the log and returns at once.
type LogNotifier struct {
	Logger *log.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	fields := map[string]any{"event": ev.Kind.String()}
	if ev.Kind == EventThreadChange {
		fields["color"] = int(ev.Color)
	}
	n.Logger.Info(ev.Message(), fields)
	return nil
}

// PromptNotifier asks the operator to confirm each event on a terminal.
type PromptNotifier struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPromptNotifier creates a notifier reading confirmations from in.
func NewPromptNotifier(in io.Reader, out io.Writer) *PromptNotifier {
	return &PromptNotifier{in: bufio.NewReader(in), out: out}
}

// Notify prints the event and waits for a line on the input.
func (n *PromptNotifier) Notify(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventTrim:
		_, _ = fmt.Fprint(n.out, "Trim thread, then press Enter to continue... ")
	default:
		_, _ = fmt.Fprintf(n.out, "Change thread to %s (T%d), then press Enter to continue... ", ev.Thread, ev.Color)
	}

	done := make(chan error, 1)
	go func() {
		_, err := n.in.ReadString('\n')
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && err != io.EOF {
			return fmt.Errorf("read confirmation: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
