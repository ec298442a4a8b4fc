package gatt

// ServiceHandler is the mandatory interface of every registered service.
// A handler opts into events by also implementing any of the capability interfaces
// below; the dispatcher discovers them by type assertion.
type ServiceHandler interface {
	Service() *Service
}

// CharacteristicReader serves characteristic reads.
type CharacteristicReader interface {
	ReadCharacteristic(client ClientID, char *Characteristic) ([]byte, error)
}

// CharacteristicWriter serves characteristic writes.
type CharacteristicWriter interface {
	WriteCharacteristic(client ClientID, char *Characteristic, value []byte) error
}

// CharacteristicWriteObserver is told when an accepted characteristic write has been acknowledged.
type CharacteristicWriteObserver interface {
	CharacteristicWriteCompleted(client ClientID, char *Characteristic, value []byte)
}

// DescriptorReader serves descriptor reads.
type DescriptorReader interface {
	ReadDescriptor(client ClientID, desc *Descriptor) ([]byte, error)
}

// DescriptorWriter serves descriptor writes.
type DescriptorWriter interface {
	WriteDescriptor(client ClientID, desc *Descriptor, value []byte) error
}

// DescriptorWriteObserver is told when an accepted descriptor write has been acknowledged.
type DescriptorWriteObserver interface {
	DescriptorWriteCompleted(client ClientID, desc *Descriptor, value []byte)
}

// NotificationSubscriber tracks notification/indication subscriptions.
type NotificationSubscriber interface {
	NotificationsEnabled(client ClientID, char *Characteristic)
	NotificationsDisabled(client ClientID, char *Characteristic)
}

// SubscriptionReporter reports whether a service still counts client as subscribed to char.
// The dispatcher keeps a client's configuration descriptor value across a disconnect only
// while the owning service reports the subscription as retained.
type SubscriptionReporter interface {
	Subscribed(client ClientID, char *Characteristic) bool
}

// NotificationObserver is told about the delivery result of a notification.
type NotificationObserver interface {
	NotificationSent(client ClientID, char *Characteristic, status Status)
}

// ConnectionObserver receives connection lifecycle events.
type ConnectionObserver interface {
	ClientConnected(client ClientID)
	ClientDisconnected(client ClientID)
}
