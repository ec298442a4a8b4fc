package gatt

import "fmt"

// Status is the ATT-level result code returned to a requesting client.
type Status byte

const (
	StatusSuccess                  Status = 0x00
	StatusRequestNotSupported      Status = 0x06
	StatusInvalidOffset            Status = 0x07
	StatusUnlikely                 Status = 0x0E
	StatusValueNotAllowed          Status = 0x13
	StatusCCCDImproperlyConfigured Status = 0xFD
	StatusOutOfRange               Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidOffset:
		return "invalid offset"
	case StatusRequestNotSupported:
		return "request not supported"
	case StatusUnlikely:
		return "unlikely error"
	case StatusValueNotAllowed:
		return "value not allowed"
	case StatusCCCDImproperlyConfigured:
		return "CCCD improperly configured"
	case StatusOutOfRange:
		return "out of range"
	default:
		return fmt.Sprintf("status 0x%02X", byte(s))
	}
}
