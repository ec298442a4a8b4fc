package ghs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
)

// LuaEntryPoint is the global function a value script must define.
const LuaEntryPoint = "next_value"

// ErrSourceClosed is returned by a closed LuaSource.
var ErrSourceClosed = errors.New("value source closed")

// LuaSource produces observation values by calling next_value() in a Lua script.
// The script runs once at construction, so it can keep state in globals between calls:
//
//	local t = 0
//	function next_value()
//	    t = t + 1
//	    return 96 + math.sin(t / 10)
//	end
type LuaSource struct {
	mu     sync.Mutex
	state  *lua.State
	logger *logrus.Logger
}

// NewLuaSource loads script into a fresh Lua state with the standard libraries.
func NewLuaSource(script string, logger *logrus.Logger) (*LuaSource, error) {
	if logger == nil {
		logger = logrus.New()
	}

	L := lua.NewState()
	L.OpenLibs()

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load value script: %w", err)
	}

	L.GetGlobal(LuaEntryPoint)
	defined := L.IsFunction(-1)
	L.Pop(1)
	if !defined {
		L.Close()
		return nil, fmt.Errorf("value script must define function %s()", LuaEntryPoint)
	}

	logger.WithField("entry_point", LuaEntryPoint).Debug("Loaded Lua value script")
	return &LuaSource{state: L, logger: logger}, nil
}

// Next calls next_value() and converts its numeric result.
func (s *LuaSource) Next() (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return 0, ErrSourceClosed
	}

	L := s.state
	L.GetGlobal(LuaEntryPoint)
	if err := L.Call(0, 1); err != nil {
		return 0, fmt.Errorf("%s() failed: %w", LuaEntryPoint, err)
	}
	defer L.Pop(1)

	if !L.IsNumber(-1) {
		return 0, fmt.Errorf("%s() must return a number", LuaEntryPoint)
	}
	return float32(L.ToNumber(-1)), nil
}

// Close releases the Lua state.
func (s *LuaSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != nil {
		s.state.Close()
		s.state = nil
	}
}
