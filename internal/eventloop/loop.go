// Package eventloop provides the single serialized execution context the peripheral
// core runs on. Every dispatcher entry point and every emission continuation is a
// closure posted to one Loop, so core state needs no locking.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/ghsd/internal/groutine"
)

// ErrStopped is returned by Call when the loop is not running.
var ErrStopped = errors.New("event loop stopped")

// Scheduler posts work onto a serialized execution context.
type Scheduler interface {
	// Post enqueues fn to run after everything already queued.
	Post(fn func())
	// PostDelayed enqueues fn once d has elapsed.
	PostDelayed(d time.Duration, fn func()) Task
}

// Task is a pending delayed continuation.
type Task interface {
	// Cancel prevents the continuation from running. Called on the loop goroutine
	// it guarantees fn never runs, even if the timer already fired.
	// Returns false if the task had already been cancelled.
	Cancel() bool
}

// Loop runs posted closures one at a time on a dedicated, pprof-labelled goroutine.
// The queue is unbounded; Post never blocks.
type Loop struct {
	name   string
	logger *logrus.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	started atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc
}

// New creates a stopped loop.
func New(name string, logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the loop goroutine. The loop runs until ctx is cancelled or Stop is called.
// A loop can be started once.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("event loop %q was already started", l.name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.running.Store(true)

	groutine.Go(ctx, l.name, l.run)
	return nil
}

// Stop terminates the loop and waits for the goroutine to exit. Queued work is discarded.
func (l *Loop) Stop() {
	if !l.started.Load() {
		return
	}
	l.cancel()
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post enqueues fn.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// PostDelayed enqueues fn after d.
func (l *Loop) PostDelayed(d time.Duration, fn func()) Task {
	t := &delayedTask{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Call runs fn on the loop and waits for it to finish.
// Must not be called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	if !l.running.Load() {
		return ErrStopped
	}

	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run(ctx context.Context) {
	defer func() {
		l.running.Store(false)
		close(l.done)
	}()

	l.logger.WithField("loop", groutine.Name(ctx)).Debug("Event loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.WithField("loop", l.name).Debug("Event loop stopped")
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.execute(fn)

			if ctx.Err() != nil {
				return
			}
		}
	}
}

// execute runs fn and logs a recovered panic.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(logrus.Fields{
				"loop":  l.name,
				"panic": r,
			}).Error("Recovered panic on event loop")
		}
	}()
	fn()
}

type delayedTask struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

func (t *delayedTask) Cancel() bool {
	if t.cancelled.Swap(true) {
		return false
	}
	t.timer.Stop()
	return true
}
