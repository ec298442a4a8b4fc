package ghs

import (
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// MaxFeedSize bounds the feed buffer to guard against accidental misconfiguration.
const MaxFeedSize uint32 = 64 * 1024

// Feed publishes emitted observations to local consumers without ever blocking the
// emitter. When consumers fall behind, the oldest observations are overwritten.
type Feed struct {
	buffer      mpmc.RichOverlappedRingBuffer[Observation]
	signal      chan struct{}
	published   atomic.Int64
	overwritten atomic.Int64
}

// NewFeed creates a feed holding up to size observations (rounded up by the buffer).
func NewFeed(size uint32) (*Feed, error) {
	if size == 0 {
		return nil, fmt.Errorf("feed size must be greater than 0")
	}
	if size > MaxFeedSize {
		return nil, fmt.Errorf("feed size %d exceeds maximum %d", size, MaxFeedSize)
	}
	return &Feed{
		buffer: mpmc.NewOverlappedRingBuffer[Observation](size),
		signal: make(chan struct{}, 1),
	}, nil
}

// Publish stores obs, dropping the oldest entry when full.
func (f *Feed) Publish(obs Observation) error {
	overwrites, err := f.buffer.EnqueueM(obs)
	if err != nil {
		return fmt.Errorf("unexpected feed enqueue error: %w", err)
	}
	f.published.Add(1)
	f.overwritten.Add(int64(overwrites))

	select {
	case f.signal <- struct{}{}:
	default:
	}
	return nil
}

// Ready is signalled after Publish; consumers then Drain.
func (f *Feed) Ready() <-chan struct{} {
	return f.signal
}

// Drain removes and returns every buffered observation, oldest first.
func (f *Feed) Drain() []Observation {
	var out []Observation
	for !f.buffer.IsEmpty() {
		obs, err := f.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, obs)
	}
	return out
}

// Published returns the number of observations published so far.
func (f *Feed) Published() int64 {
	return f.published.Load()
}

// Overwritten returns the number of observations lost to overflow.
func (f *Feed) Overwritten() int64 {
	return f.overwritten.Load()
}
