// Package uiloop provides the single goroutine that owns UI-visible state.
// Other goroutines never touch that state directly; they post closures to the
// loop, which runs them one at a time in posting order.
package uiloop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Call after the loop has been closed.
var ErrClosed = errors.New("ui loop closed")

// Dispatcher runs functions on the UI-affine goroutine.
type Dispatcher interface {
	// Post queues fn and returns immediately. fn is never run inline, even
	// when Post is called from the loop itself. Inline is the exception: it
	// has no loop and runs fn before returning.
	Post(fn func())
}

// Loop is a mailbox served by one goroutine. The queue is unbounded so that
// workers posting results never block on a busy UI.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New starts a loop.
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues fn to run on the loop. Posts after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be called
// from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}

	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		// the loop may have drained fn before stopping
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, runs what is already queued and waits for the
// loop goroutine to exit.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.quit)
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.wake:
			l.drain()
		case <-l.quit:
			l.drain()
			return
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}

// Inline is a Dispatcher that runs functions on the caller's goroutine. It is
// for single-goroutine programs, such as the CLI, that have no UI to protect.
type Inline struct{}

// Post runs fn immediately.
func (Inline) Post(fn func()) { fn() }
