package feed

import (
	"context"
	"sync"

	"forkChan/errs"
)

// ErrClosed is returned for work handed to a closed Loop or Coordinator.
var ErrClosed = errs.Errorf(errs.EUNAVAILABLE, "The feed has been closed.")

// Loop runs functions one at a time, in the order they were posted, on a
// goroutine of its own. Its queue is unbounded, so posting never blocks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake    chan struct{}
	stopped chan struct{}
}

// NewLoop starts a Loop.
func NewLoop() *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues fn. It reports false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
	return true
}

// Call queues fn and waits until it has run.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.Unavailable(ctx.Err())
	case <-l.stopped:
		// The queue is drained before the loop stops.
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close runs what is already queued, refuses new work and waits for the
// loop goroutine to exit. It must not be called from the loop itself.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
	<-l.stopped
}

// Stopped is closed once the loop goroutine has exited.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		batch, closed := l.queue, l.closed
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) == 0 {
			if closed {
				return
			}
			<-l.wake
		}
	}
}
