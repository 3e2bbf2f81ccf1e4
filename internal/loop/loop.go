// Package loop provides the single logical thread that client-side surface
// state runs on. Transport completions and inbound notifications are posted
// here, so lifecycle code never runs two steps interleaved.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Do when the loop has exited.
var ErrStopped = errors.New("loop: stopped")

// Scheduler accepts continuations for serialized execution.
type Scheduler interface {
	Post(task func())
}

// Inline runs each task immediately on the posting goroutine. Tests use it
// with a transport mock that responds synchronously.
type Inline struct{}

func (Inline) Post(task func()) { task() }

// Loop is an unbounded FIFO of tasks executed one at a time by Run.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	stopped bool
}

// New creates an idle loop. Call Run to start executing tasks.
func New() *Loop {
	l := &Loop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post enqueues task. It never blocks. Tasks posted after the loop stopped
// are dropped.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.tasks = append(l.tasks, task)
	l.cond.Signal()
}

// Run executes tasks until ctx is cancelled. Tasks still queued at that
// point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.stopped = true
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()

	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.tasks = nil
			l.mu.Unlock()
			return ctx.Err()
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		task()
	}
}

// Do posts task and waits for it to finish. It must not be called from a
// task running on the same loop.
func (l *Loop) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.tasks = append(l.tasks, func() {
		defer close(done)
		task()
	})
	l.cond.Signal()
	l.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
