package testutils

import (
	"sort"
	"time"

	"github.com/srg/ghsd/internal/eventloop"
)

// ManualScheduler is a deterministic eventloop.Scheduler driven by the test.
// Posted work runs on RunPending; delayed work runs when Advance moves the virtual
// clock past its due time. Everything runs on the calling goroutine.
type ManualScheduler struct {
	Epoch time.Time

	elapsed time.Duration
	queue   []func()
	timers  []*manualTask
	seq     int
}

type manualTask struct {
	due       time.Duration
	seq       int
	fn        func()
	cancelled bool
	fired     bool
}

func (t *manualTask) Cancel() bool {
	if t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

var _ eventloop.Scheduler = (*ManualScheduler)(nil)

// NewManualScheduler creates a scheduler whose virtual clock starts at epoch.
func NewManualScheduler(epoch time.Time) *ManualScheduler {
	return &ManualScheduler{Epoch: epoch}
}

// Now returns the virtual wall clock.
func (s *ManualScheduler) Now() time.Time {
	return s.Epoch.Add(s.elapsed)
}

// Post enqueues fn until the next RunPending.
func (s *ManualScheduler) Post(fn func()) {
	s.queue = append(s.queue, fn)
}

// PostDelayed registers fn to run once the virtual clock has advanced by d.
func (s *ManualScheduler) PostDelayed(d time.Duration, fn func()) eventloop.Task {
	s.seq++
	t := &manualTask{due: s.elapsed + d, seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// RunPending runs posted work, including work posted while running, until the queue is empty.
func (s *ManualScheduler) RunPending() {
	for len(s.queue) > 0 {
		fn := s.queue[0]
		s.queue = s.queue[1:]
		fn()
	}
}

// Advance moves the virtual clock forward by d, firing due timers in due order.
func (s *ManualScheduler) Advance(d time.Duration) {
	target := s.elapsed + d
	for {
		s.RunPending()
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.elapsed = next.due
		next.fired = true
		next.fn()
	}
	s.elapsed = target
	s.RunPending()
}

// PendingTimers returns the number of timers that are neither fired nor cancelled.
func (s *ManualScheduler) PendingTimers() int {
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.cancelled {
			n++
		}
	}
	return n
}

func (s *ManualScheduler) nextDue(limit time.Duration) *manualTask {
	var live []*manualTask
	for _, t := range s.timers {
		if !t.fired && !t.cancelled {
			live = append(live, t)
		}
	}
	s.timers = live

	sort.Slice(live, func(i, j int) bool {
		if live[i].due == live[j].due {
			return live[i].seq < live[j].seq
		}
		return live[i].due < live[j].due
	})
	if len(live) == 0 || live[0].due > limit {
		return nil
	}
	return live[0]
}
