package ghs

import (
	"fmt"

	"github.com/srg/ghsd/internal/gatt"
)

// Role marks the position of a segment within one observation.
type Role byte

const (
	RoleMiddle Role = 0
	RoleFirst  Role = 1
	RoleLast   Role = 2
	RoleSingle Role = RoleFirst | RoleLast
)

func (r Role) String() string {
	switch r {
	case RoleMiddle:
		return "MIDDLE"
	case RoleFirst:
		return "FIRST"
	case RoleLast:
		return "LAST"
	case RoleSingle:
		return "SINGLE"
	default:
		return fmt.Sprintf("Role(%d)", byte(r))
	}
}

// counterModulus is the range of the 6-bit rolling segment counter.
const counterModulus = 64

// Header builds a segment header byte: counter in the upper six bits, role in the lower two.
func Header(counter uint8, role Role) byte {
	return (counter%counterModulus)<<2 | byte(role)&0x03
}

// ParseHeader splits a segment header byte.
func ParseHeader(h byte) (counter uint8, role Role) {
	return h >> 2, Role(h & 0x03)
}

// Segmenter splits encoded observations into notification frames. It owns the rolling
// counter shared by every observation sent on one characteristic.
type Segmenter struct {
	counter uint8
	floor   int
}

// NewSegmenter creates a segmenter that never uses a payload size below floor.
// A non-positive floor means gatt.DefaultPayloadSize.
func NewSegmenter(floor int) *Segmenter {
	if floor <= 1 {
		floor = gatt.DefaultPayloadSize
	}
	return &Segmenter{floor: floor}
}

// Counter returns the counter value the next segment will carry.
func (s *Segmenter) Counter() uint8 {
	return s.counter
}

// Segment splits data into frames of at most maxPayload bytes, each prefixed with a header.
// Sizes below the floor are clamped to it. The counter advances once per frame.
func (s *Segmenter) Segment(data []byte, maxPayload int) [][]byte {
	if maxPayload < s.floor {
		maxPayload = s.floor
	}
	capacity := maxPayload - 1

	if len(data) <= capacity {
		return [][]byte{s.frame(RoleSingle, data)}
	}

	count := (len(data) + capacity - 1) / capacity
	frames := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * capacity
		end := min(start+capacity, len(data))

		role := RoleMiddle
		switch i {
		case 0:
			role = RoleFirst
		case count - 1:
			role = RoleLast
		}
		frames = append(frames, s.frame(role, data[start:end]))
	}
	return frames
}

func (s *Segmenter) frame(role Role, chunk []byte) []byte {
	f := make([]byte, 0, len(chunk)+1)
	f = append(f, Header(s.counter, role))
	f = append(f, chunk...)
	s.counter = (s.counter + 1) % counterModulus
	return f
}
