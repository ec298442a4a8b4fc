package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/platform/goble"
)

// Command-level errors
var (
	// ErrInvalidHex indicates a command argument that is not a hex byte string.
	ErrInvalidHex = errors.New("invalid hex input")
)

// FormatUserError turns known failures into a short actionable message.
// Unknown errors are returned verbatim.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, goble.ErrPermissionDenied):
		if runtime.GOOS == "linux" {
			return "insufficient permissions for Bluetooth; run as root or grant CAP_NET_ADMIN and CAP_NET_RAW"
		}
		return "insufficient permissions for Bluetooth; allow Bluetooth access for this terminal"
	case errors.Is(err, goble.ErrBluetoothUnavailable):
		return fmt.Sprintf("no usable Bluetooth adapter: %v", err)
	case errors.Is(err, gatt.ErrOutOfRange):
		return fmt.Sprintf("value out of range: %v", err)
	default:
		return err.Error()
	}
}
