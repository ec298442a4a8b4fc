package ghs

import (
	"math/rand"
	"sync"
	"time"
)

// ValueSource produces the value of the next observation.
type ValueSource interface {
	Next() (float32, error)
}

// ValueSourceFunc adapts a function to ValueSource.
type ValueSourceFunc func() (float32, error)

func (f ValueSourceFunc) Next() (float32, error) {
	return f()
}

// SimulatedSpO2 yields oxygen saturation values uniformly distributed in [95, 97] percent.
type SimulatedSpO2 struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulatedSpO2 creates a simulated source. A zero seed uses the current time.
func NewSimulatedSpO2(seed int64) *SimulatedSpO2 {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedSpO2{rnd: rand.New(rand.NewSource(seed))}
}

func (s *SimulatedSpO2) Next() (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return 95 + s.rnd.Float32()*2, nil
}
