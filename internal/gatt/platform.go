package gatt

// ClientID is the stable identity of a connected central (usually its address).
type ClientID string

// DefaultPayloadSize is the protocol minimum for the per-notification payload size.
// It is used when no subscriber is connected and as the floor for reported sizes.
const DefaultPayloadSize = 23

// Platform is the BLE peripheral stack the core drives. Implementations own the
// connections, the attribute table, and the notification transport.
//
// Connection queries reflect the state after the event being dispatched: a client
// reported through OnClientDisconnected is no longer listed by ConnectedClients.
type Platform interface {
	// SendNotification delivers data to a single client as a notification or
	// indication of char, depending on the characteristic properties.
	SendNotification(data []byte, client ClientID, char *Characteristic) error
	// PayloadSize returns the current notification payload size negotiated with client.
	PayloadSize(client ClientID) int
	// ConnectedClients lists currently connected clients.
	ConnectedClients() []ClientID
	// SubscribedClients lists clients that enabled notifications or indications on char.
	SubscribedClients(char *Characteristic) []ClientID
	// IsBonded reports whether client holds a bond with this peripheral.
	IsBonded(client ClientID) bool
}

// PayloadFloorer is implemented by platforms whose smallest notification payload
// differs from DefaultPayloadSize.
type PayloadFloorer interface {
	PayloadFloor() int
}

// PayloadFloor returns the payload floor of p.
func PayloadFloor(p Platform) int {
	if f, ok := p.(PayloadFloorer); ok && f.PayloadFloor() > 1 {
		return f.PayloadFloor()
	}
	return DefaultPayloadSize
}

// Advertisement is what the core asks the platform to advertise.
// The platform builds the actual payload.
type Advertisement struct {
	Name         string
	ServiceUUIDs []UUID
	// ServiceData is keyed by the 16-bit service UUID it belongs to.
	ServiceData map[UUID][]byte
}
