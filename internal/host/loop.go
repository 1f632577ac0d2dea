// Package host models the page's single interaction thread: a cooperative
// task queue on which every tree mutation, event and engine batch runs.
//
// Work never runs in parallel. A long job stays responsive by posting its
// next step as a fresh task, so tasks queued by the page in the meantime
// (input events, mutation deliveries, timers) run in between.
package host

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Run after Close
var ErrClosed = errors.New("host loop closed")

// Loop is a FIFO task queue drained by exactly one goroutine at a time,
// either a Run call or a Drain/Settle call from a synchronous host.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	timers  map[*time.Timer]struct{}
	wake    chan struct{}
	closed  bool
	ran     uint64
	panicFn func(any)
}

// NewLoop creates an empty, open loop
func NewLoop() *Loop {
	return &Loop{
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
	}
}

// OnPanic installs a handler for panics escaping a task. Without one the
// panic propagates and takes the loop goroutine down with it.
func (l *Loop) OnPanic(fn func(any)) {
	l.mu.Lock()
	l.panicFn = fn
	l.mu.Unlock()
}

// Post queues fn to run after every task already queued. It is safe to call
// from any goroutine and reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
	return true
}

// PostAfter queues fn once d has elapsed. The returned cancel func stops the
// timer and reports whether fn was still pending.
func (l *Loop) PostAfter(d time.Duration, fn func()) (cancel func() bool) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return func() bool { return false }
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		_, pending := l.timers[t]
		delete(l.timers, t)
		if pending && !l.closed {
			l.tasks = append(l.tasks, fn)
		}
		l.mu.Unlock()
		l.signal()
	})
	l.timers[t] = struct{}{}
	l.mu.Unlock()

	return func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, pending := l.timers[t]; !pending {
			return false
		}
		delete(l.timers, t)
		t.Stop()
		return true
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	l.ran++
	return fn, true
}

func (l *Loop) run(fn func()) {
	l.mu.Lock()
	handler := l.panicFn
	l.mu.Unlock()
	if handler != nil {
		defer func() {
			if r := recover(); r != nil {
				handler(r)
			}
		}()
	}
	fn()
}

// Drain runs queued tasks, including ones they post, until the queue is
// empty. Pending timers are not waited for. Returns the number of tasks run.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn, ok := l.next()
		if !ok {
			return n
		}
		l.run(fn)
		n++
	}
}

// Settle drains the queue and keeps waiting for pending timers to fire
// until nothing is queued or pending, or timeout elapses. It reports whether
// the loop went idle.
func (l *Loop) Settle(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		l.Drain()
		if l.Idle() {
			return true
		}
		select {
		case <-l.wake:
		case <-deadline.C:
			return false
		}
	}
}

// Run executes tasks as they arrive until ctx is done or the loop is closed
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Idle reports whether no task is queued and no timer is pending
func (l *Loop) Idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) == 0 && len(l.timers) == 0
}

// Pending returns the number of queued tasks
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Ran returns the number of tasks executed so far
func (l *Loop) Ran() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ran
}

// Close stops every pending timer, drops queued tasks and rejects new ones
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	for t := range l.timers {
		t.Stop()
	}
	l.timers = make(map[*time.Timer]struct{})
	l.tasks = nil
	l.mu.Unlock()
	l.signal()
}
