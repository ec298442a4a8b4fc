package gatt

import (
	"errors"

	"github.com/sirupsen/logrus"
)

type cccdKey struct {
	client ClientID
	char   *Characteristic
}

// Dispatcher routes attribute events from the platform to the owning service handler.
//
// Request events (reads and writes) always produce a status: an unknown target or a
// handler lacking the needed capability yields StatusRequestNotSupported. Fire-and-forget
// events (subscriptions, completions, delivery reports) are dropped when unresolved.
// Connection events are broadcast to every handler in registration order.
//
// A Dispatcher is not safe for concurrent use; platforms serialize calls onto one goroutine.
type Dispatcher struct {
	registry *Registry
	logger   *logrus.Logger
	cccd     map[cccdKey]ClientConfig
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		cccd:     make(map[cccdKey]ClientConfig),
	}
}

// Registry returns the registry the dispatcher routes over.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// ----------------------------------------------------------------------------
// Connection events
// ----------------------------------------------------------------------------

// OnClientConnected broadcasts a connect event to all services.
func (d *Dispatcher) OnClientConnected(client ClientID) {
	d.logger.WithField("client", client).Info("Client connected")
	for _, h := range d.registry.Handlers() {
		if o, ok := h.(ConnectionObserver); ok {
			o.ClientConnected(client)
		}
	}
}

// OnClientDisconnected broadcasts a disconnect event to all services, then forgets the
// configuration descriptor values of every subscription the services did not retain.
func (d *Dispatcher) OnClientDisconnected(client ClientID) {
	d.logger.WithField("client", client).Info("Client disconnected")
	for _, h := range d.registry.Handlers() {
		if o, ok := h.(ConnectionObserver); ok {
			o.ClientDisconnected(client)
		}
	}
	d.forgetClientConfigs(client)
}

func (d *Dispatcher) forgetClientConfigs(client ClientID) {
	for key := range d.cccd {
		if key.client != client {
			continue
		}
		if h, err := d.registry.resolve(key.char); err == nil {
			if r, ok := h.(SubscriptionReporter); ok && r.Subscribed(client, key.char) {
				continue
			}
		}
		delete(d.cccd, key)
		d.logger.WithFields(logrus.Fields{
			"client":         client,
			"characteristic": key.char.UUID,
		}).Debug("Dropped client configuration of disconnected client")
	}
}

// ----------------------------------------------------------------------------
// Characteristic events
// ----------------------------------------------------------------------------

// OnCharacteristicRead serves a read request starting at offset.
func (d *Dispatcher) OnCharacteristicRead(client ClientID, char *Characteristic, offset int) ([]byte, Status) {
	h, err := d.registry.resolve(char)
	if err != nil {
		return nil, d.unresolved("read", client, char, err)
	}
	r, ok := h.(CharacteristicReader)
	if !ok {
		return nil, d.unsupported("read", client, char)
	}

	value, err := r.ReadCharacteristic(client, char)
	if err != nil {
		return nil, d.failed("read", client, char, err)
	}
	return d.slice(value, offset)
}

// OnCharacteristicWrite serves a write request and returns the status for the response.
func (d *Dispatcher) OnCharacteristicWrite(client ClientID, char *Characteristic, value []byte) Status {
	h, err := d.registry.resolve(char)
	if err != nil {
		return d.unresolved("write", client, char, err)
	}
	w, ok := h.(CharacteristicWriter)
	if !ok {
		return d.unsupported("write", client, char)
	}

	if err := w.WriteCharacteristic(client, char, value); err != nil {
		return d.failed("write", client, char, err)
	}
	return StatusSuccess
}

// OnCharacteristicWriteCompleted notifies the owning service that an accepted write was acknowledged.
func (d *Dispatcher) OnCharacteristicWriteCompleted(client ClientID, char *Characteristic, value []byte) {
	h, err := d.registry.resolve(char)
	if err != nil {
		d.dropped("write completed", client, char, err)
		return
	}
	if o, ok := h.(CharacteristicWriteObserver); ok {
		o.CharacteristicWriteCompleted(client, char, value)
	}
}

// ----------------------------------------------------------------------------
// Descriptor events
// ----------------------------------------------------------------------------

// OnDescriptorRead serves a descriptor read request starting at offset.
// Client Characteristic Configuration reads are answered from the last value the client wrote.
func (d *Dispatcher) OnDescriptorRead(client ClientID, desc *Descriptor, offset int) ([]byte, Status) {
	char := owner(desc)
	h, err := d.registry.resolve(char)
	if err != nil {
		return nil, d.unresolved("descriptor read", client, char, err)
	}

	if desc.UUID == ClientConfigUUID {
		return d.slice(d.cccd[cccdKey{client, char}].Bytes(), offset)
	}

	r, ok := h.(DescriptorReader)
	if !ok {
		return nil, d.unsupported("descriptor read", client, char)
	}
	value, err := r.ReadDescriptor(client, desc)
	if err != nil {
		return nil, d.failed("descriptor read", client, char, err)
	}
	return d.slice(value, offset)
}

// OnDescriptorWrite serves a descriptor write request.
// Client Characteristic Configuration writes are translated into subscription events.
func (d *Dispatcher) OnDescriptorWrite(client ClientID, desc *Descriptor, value []byte) Status {
	char := owner(desc)
	h, err := d.registry.resolve(char)
	if err != nil {
		return d.unresolved("descriptor write", client, char, err)
	}

	if desc.UUID == ClientConfigUUID {
		return d.writeClientConfig(client, char, value)
	}

	w, ok := h.(DescriptorWriter)
	if !ok {
		return d.unsupported("descriptor write", client, char)
	}
	if err := w.WriteDescriptor(client, desc, value); err != nil {
		return d.failed("descriptor write", client, char, err)
	}
	return StatusSuccess
}

// OnDescriptorWriteCompleted notifies the owning service that an accepted descriptor write was acknowledged.
func (d *Dispatcher) OnDescriptorWriteCompleted(client ClientID, desc *Descriptor, value []byte) {
	char := owner(desc)
	h, err := d.registry.resolve(char)
	if err != nil {
		d.dropped("descriptor write completed", client, char, err)
		return
	}
	if o, ok := h.(DescriptorWriteObserver); ok {
		o.DescriptorWriteCompleted(client, desc, value)
	}
}

func (d *Dispatcher) writeClientConfig(client ClientID, char *Characteristic, value []byte) Status {
	cfg, err := ParseClientConfig(value)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"client":         client,
			"characteristic": char.UUID,
			"error":          err,
		}).Debug("Rejected client configuration write")
		return StatusCCCDImproperlyConfigured
	}
	if (cfg.Notifications && !char.Properties.Has(PropNotify)) || (cfg.Indications && !char.Properties.Has(PropIndicate)) {
		return StatusCCCDImproperlyConfigured
	}

	key := cccdKey{client, char}
	previous := d.cccd[key]
	if cfg.Enabled() {
		d.cccd[key] = cfg
	} else {
		delete(d.cccd, key)
	}

	switch {
	case cfg.Enabled() && !previous.Enabled():
		d.OnNotificationsEnabled(client, char)
	case !cfg.Enabled() && previous.Enabled():
		d.OnNotificationsDisabled(client, char)
	}
	return StatusSuccess
}

// ----------------------------------------------------------------------------
// Subscription and delivery events
// ----------------------------------------------------------------------------

// OnNotificationsEnabled reports that client subscribed to char.
func (d *Dispatcher) OnNotificationsEnabled(client ClientID, char *Characteristic) {
	h, err := d.registry.resolve(char)
	if err != nil {
		d.dropped("notifications enabled", client, char, err)
		return
	}
	d.logger.WithFields(logrus.Fields{"client": client, "characteristic": char.UUID}).Debug("Notifications enabled")
	if s, ok := h.(NotificationSubscriber); ok {
		s.NotificationsEnabled(client, char)
	}
}

// OnNotificationsDisabled reports that client unsubscribed from char.
func (d *Dispatcher) OnNotificationsDisabled(client ClientID, char *Characteristic) {
	h, err := d.registry.resolve(char)
	if err != nil {
		d.dropped("notifications disabled", client, char, err)
		return
	}
	d.logger.WithFields(logrus.Fields{"client": client, "characteristic": char.UUID}).Debug("Notifications disabled")
	if s, ok := h.(NotificationSubscriber); ok {
		s.NotificationsDisabled(client, char)
	}
}

// OnNotificationSent reports the delivery result of a notification.
func (d *Dispatcher) OnNotificationSent(client ClientID, char *Characteristic, status Status) {
	h, err := d.registry.resolve(char)
	if err != nil {
		d.dropped("notification sent", client, char, err)
		return
	}
	if o, ok := h.(NotificationObserver); ok {
		o.NotificationSent(client, char, status)
	}
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func owner(desc *Descriptor) *Characteristic {
	if desc == nil {
		return nil
	}
	return desc.Characteristic()
}

func (d *Dispatcher) slice(value []byte, offset int) ([]byte, Status) {
	if offset < 0 || offset > len(value) {
		return nil, StatusInvalidOffset
	}
	return value[offset:], StatusSuccess
}

func (d *Dispatcher) unresolved(op string, client ClientID, char *Characteristic, err error) Status {
	if errors.Is(err, ErrInternal) {
		d.logger.WithFields(logrus.Fields{
			"op":     op,
			"client": client,
			"error":  err,
		}).Error("Dispatcher lost track of a registered service")
		return StatusUnlikely
	}
	d.logger.WithFields(logrus.Fields{
		"op":     op,
		"client": client,
		"error":  err,
	}).Debug("Request for unknown attribute")
	return StatusRequestNotSupported
}

func (d *Dispatcher) unsupported(op string, client ClientID, char *Characteristic) Status {
	d.logger.WithFields(logrus.Fields{
		"op":             op,
		"client":         client,
		"characteristic": char.UUID,
	}).Debug("Service does not support operation")
	return StatusRequestNotSupported
}

func (d *Dispatcher) failed(op string, client ClientID, char *Characteristic, err error) Status {
	status := StatusOf(err)
	entry := d.logger.WithFields(logrus.Fields{
		"op":             op,
		"client":         client,
		"characteristic": char.UUID,
		"status":         status,
		"error":          err,
	})
	if errors.Is(err, ErrInternal) {
		entry.Error("Service handler failed")
	} else {
		entry.Debug("Service handler rejected request")
	}
	return status
}

func (d *Dispatcher) dropped(event string, client ClientID, char *Characteristic, err error) {
	entry := d.logger.WithFields(logrus.Fields{
		"event":  event,
		"client": client,
		"error":  err,
	})
	if errors.Is(err, ErrInternal) {
		entry.Error("Dispatcher lost track of a registered service")
		return
	}
	entry.Debug("Dropping event for unknown attribute")
}
