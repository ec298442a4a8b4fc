package gatt

import (
	"encoding/binary"
	"fmt"
)

// ClientConfig represents the Client Characteristic Configuration descriptor (0x2902)
type ClientConfig struct {
	Notifications bool // Notifications enabled
	Indications   bool // Indications enabled
}

// Enabled reports whether either notifications or indications are on.
func (c ClientConfig) Enabled() bool {
	return c.Notifications || c.Indications
}

// Bytes returns the 2-byte descriptor value.
func (c ClientConfig) Bytes() []byte {
	var v uint16
	if c.Notifications {
		v |= 0x0001
	}
	if c.Indications {
		v |= 0x0002
	}
	return binary.LittleEndian.AppendUint16(nil, v)
}

// ParseClientConfig parses the Client Characteristic Configuration descriptor value.
// The descriptor is 2 bytes: bit 0 = Notifications, bit 1 = Indications.
func ParseClientConfig(data []byte) (ClientConfig, error) {
	if len(data) != 2 {
		return ClientConfig{}, fmt.Errorf("invalid length for client config: expected 2, got %d", len(data))
	}
	value := binary.LittleEndian.Uint16(data)
	return ClientConfig{
		Notifications: (value & 0x0001) != 0,
		Indications:   (value & 0x0002) != 0,
	}, nil
}
