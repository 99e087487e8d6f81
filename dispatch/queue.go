// Package dispatch runs thread trim and thread change events outside the
// job tick. Events are queued as run-once tasks and executed by the
// foreground loop between ticks, where they may block until the motion
// buffer has drained.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pithecene-io/stitcher/log"
)

// DefaultQueueSize is the task capacity used by NewQueue when size <= 0.
const DefaultQueueSize = 16

// Task is a deferred unit of foreground work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue holds run-once tasks. Schedule is safe from any goroutine and
// never blocks; RunPending runs on the foreground goroutine only.
type Queue struct {
	tasks   chan Task
	logger  *log.Logger
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewQueue creates a task queue.
func NewQueue(size int, logger *log.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Queue{
		tasks:  make(chan Task, size),
		logger: logger,
	}
}

// Schedule queues t. Returns false if the queue is full.
func (q *Queue) Schedule(t Task) bool {
	select {
	case q.tasks <- t:
		return true
	default:
		q.dropped.Add(1)
		q.logger.Error("task queue full, task dropped", map[string]any{"task": t.Name})
		return false
	}
}

// RunPending runs the tasks queued at the time of the call and returns
// how many ran. Tasks scheduled while running wait for the next call.
func (q *Queue) RunPending(ctx context.Context) int {
	n := len(q.tasks)
	for i := range n {
		select {
		case t := <-q.tasks:
			q.run(ctx, t)
		default:
			return i
		}
	}
	return n
}

// Pending returns the number of queued tasks.
func (q *Queue) Pending() int {
	return len(q.tasks)
}

// Dropped returns the number of tasks rejected by Schedule.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Failed returns the number of tasks that returned an error or panicked.
func (q *Queue) Failed() int64 {
	return q.failed.Load()
}

func (q *Queue) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.logger.Error("task panicked", map[string]any{
				"task":  t.Name,
				"panic": fmt.Sprint(r),
			})
		}
	}()

	if err := t.Run(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Warn("task failed", map[string]any{
			"task":  t.Name,
			"error": err.Error(),
		})
	}
}
