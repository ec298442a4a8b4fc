// Package uds implements the consent procedure of the User Data Service control point.
package uds

import (
	"encoding/binary"

	"github.com/srg/ghsd/internal/gatt"
)

// Attribute UUIDs of the User Data Service.
var (
	ServiceUUID      = gatt.UUID16(0x181C)
	ControlPointUUID = gatt.UUID16(0x2A9F)
)

// OpConsent is the User Control Point "Consent" op code.
const OpConsent byte = 0x02

// consentRequestSize is op code u8 | user index u8 | consent code u16.
const consentRequestSize = 4

// DefaultUsers is the registered user table used when none is configured.
func DefaultUsers() map[uint8]uint16 {
	return map[uint8]uint16{1: 8, 2: 16}
}

// Consent checks consent requests against a static table of registered users.
// It keeps no per-client state: every request is judged on its own.
type Consent struct {
	users map[uint8]uint16
}

// NewConsent creates a checker over users (user index → consent code).
func NewConsent(users map[uint8]uint16) *Consent {
	table := make(map[uint8]uint16, len(users))
	for idx, code := range users {
		table[idx] = code
	}
	return &Consent{users: table}
}

// Check validates a control point value.
// Unknown op codes and malformed lengths are Unsupported; an unknown user or wrong code is NotAllowed.
func (c *Consent) Check(data []byte) error {
	if len(data) == 0 || data[0] != OpConsent {
		return gatt.Errorf(gatt.KindUnsupported, "unsupported control point request")
	}
	if len(data) != consentRequestSize {
		return gatt.Errorf(gatt.KindUnsupported, "consent request must be %d bytes, got %d", consentRequestSize, len(data))
	}

	userIndex := data[1]
	code := binary.LittleEndian.Uint16(data[2:4])

	registered, ok := c.users[userIndex]
	if !ok {
		return gatt.Errorf(gatt.KindNotAllowed, "user %d is not registered", userIndex)
	}
	if registered != code {
		return gatt.Errorf(gatt.KindNotAllowed, "consent code mismatch for user %d", userIndex)
	}
	return nil
}

// Apply returns the status of a control point write.
func (c *Consent) Apply(data []byte) gatt.Status {
	return gatt.StatusOf(c.Check(data))
}

// ConsentRequest builds a consent control point value.
func ConsentRequest(userIndex uint8, code uint16) []byte {
	return binary.LittleEndian.AppendUint16([]byte{OpConsent, userIndex}, code)
}
