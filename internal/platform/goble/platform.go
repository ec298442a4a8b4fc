// Package goble runs the peripheral on top of github.com/go-ble/ble.
//
// go-ble invokes attribute handlers on its own goroutines. Every handler is
// marshalled onto the event loop before it reaches the dispatcher, so the core
// never sees concurrent calls.
package goble

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/ghsd/internal/eventloop"
	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/groutine"
)

const (
	// attHeaderSize is subtracted from the ATT MTU to get the notification payload size.
	attHeaderSize = 3

	// minPayloadFloor is the smallest notification payload go-ble may report (ATT MTU 23).
	minPayloadFloor = 20

	// DefaultRequestTimeout bounds how long a go-ble handler waits for the event loop.
	DefaultRequestTimeout = 5 * time.Second
)

// ErrNoNotifier is returned when go-ble holds no notifier for a client and characteristic.
// go-ble keeps no subscription across links, so a retained client hits it until it subscribes again.
var ErrNoNotifier = fmt.Errorf("%w: no notifier on this link", gatt.ErrNotSubscribed)

// DeviceFactory creates the local ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

// peer is the part of ble.Conn the platform relies on.
type peer interface {
	RemoteAddr() ble.Addr
	TxMTU() int
}

// notifier is the part of ble.Notifier the platform relies on.
type notifier interface {
	Write(b []byte) (int, error)
	Cap() int
}

type client struct {
	id        gatt.ClientID
	peer      peer
	notifiers *hashmap.Map[string, notifier]
}

// Options configures a Platform.
type Options struct {
	// BondedClients lists addresses treated as bonded. go-ble does not expose bond state.
	BondedClients  []string
	RequestTimeout time.Duration
}

// Platform implements gatt.Platform over go-ble.
type Platform struct {
	loop       *eventloop.Loop
	dispatcher *gatt.Dispatcher
	clients    *hashmap.Map[gatt.ClientID, *client]
	bonded     map[gatt.ClientID]struct{}
	timeout    time.Duration
	logger     *logrus.Logger
}

// New creates a Platform whose handlers run on loop.
func New(loop *eventloop.Loop, opts Options, logger *logrus.Logger) *Platform {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	bonded := make(map[gatt.ClientID]struct{}, len(opts.BondedClients))
	for _, addr := range opts.BondedClients {
		bonded[clientID(ble.NewAddr(addr))] = struct{}{}
	}

	return &Platform{
		loop:    loop,
		clients: hashmap.New[gatt.ClientID, *client](),
		bonded:  bonded,
		timeout: opts.RequestTimeout,
		logger:  logger,
	}
}

// Serve publishes the registered services, advertises, and blocks until ctx is done.
func (p *Platform) Serve(ctx context.Context, dispatcher *gatt.Dispatcher, adv gatt.Advertisement, advertise bool) error {
	p.dispatcher = dispatcher

	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	defer func() {
		if err := dev.Stop(); err != nil {
			p.logger.WithError(err).Debug("Failed to stop BLE device")
		}
	}()

	for _, svc := range dispatcher.Registry().Services() {
		bs, err := p.buildService(svc)
		if err != nil {
			return err
		}
		if err := dev.AddService(bs); err != nil {
			return fmt.Errorf("failed to add service %s: %w", svc.UUID, err)
		}
		p.logger.WithFields(logrus.Fields{
			"service":         svc.UUID,
			"name":            svc.Name,
			"characteristics": len(svc.Characteristics()),
		}).Info("Service added")
	}

	if !advertise {
		<-ctx.Done()
		return ctx.Err()
	}

	uuids := make([]ble.UUID, 0, len(adv.ServiceUUIDs))
	for _, u := range adv.ServiceUUIDs {
		bu, err := toBLEUUID(u)
		if err != nil {
			return err
		}
		uuids = append(uuids, bu)
	}

	p.logger.WithFields(logrus.Fields{
		"name":     adv.Name,
		"services": adv.ServiceUUIDs,
	}).Info("Advertising")

	err = dev.AdvertiseNameAndServices(ctx, adv.Name, uuids...)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("advertising failed: %w", err)
	}
	<-ctx.Done()
	return ctx.Err()
}

// ----------------------------------------------------------------------------
// gatt.Platform
// ----------------------------------------------------------------------------

// SendNotification writes data to the notifier client registered for char.
func (p *Platform) SendNotification(data []byte, id gatt.ClientID, char *gatt.Characteristic) error {
	c, ok := p.clients.Get(id)
	if !ok {
		return fmt.Errorf("client %s is not connected", id)
	}
	n, ok := c.notifiers.Get(charKey(char))
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrNoNotifier, id, char.UUID)
	}
	if len(data) > n.Cap() {
		return fmt.Errorf("notification of %d bytes exceeds capacity %d", len(data), n.Cap())
	}

	_, err := n.Write(data)
	status := gatt.StatusSuccess
	if err != nil {
		status = gatt.StatusUnlikely
	}
	if p.dispatcher != nil {
		p.loop.Post(func() { p.dispatcher.OnNotificationSent(id, char, status) })
	}
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", id, err)
	}
	return nil
}

// PayloadSize returns the ATT MTU of client minus the ATT header.
func (p *Platform) PayloadSize(id gatt.ClientID) int {
	c, ok := p.clients.Get(id)
	if !ok {
		return gatt.DefaultPayloadSize
	}
	return c.peer.TxMTU() - attHeaderSize
}

// PayloadFloor implements gatt.PayloadFloorer.
func (p *Platform) PayloadFloor() int {
	return minPayloadFloor
}

// ConnectedClients returns connected clients sorted by address.
func (p *Platform) ConnectedClients() []gatt.ClientID {
	var ids []gatt.ClientID
	p.clients.Range(func(id gatt.ClientID, _ *client) bool {
		ids = append(ids, id)
		return true
	})
	sortIDs(ids)
	return ids
}

// SubscribedClients returns clients holding a notifier for char, sorted by address.
func (p *Platform) SubscribedClients(char *gatt.Characteristic) []gatt.ClientID {
	var ids []gatt.ClientID
	p.clients.Range(func(id gatt.ClientID, c *client) bool {
		if _, ok := c.notifiers.Get(charKey(char)); ok {
			ids = append(ids, id)
		}
		return true
	})
	sortIDs(ids)
	return ids
}

// IsBonded reports whether id was configured as bonded.
func (p *Platform) IsBonded(id gatt.ClientID) bool {
	_, ok := p.bonded[id]
	return ok
}

// ----------------------------------------------------------------------------
// Connection tracking (event loop only)
// ----------------------------------------------------------------------------

// attach returns the client for pr, reporting a connection the first time it is seen.
func (p *Platform) attach(pr peer) *client {
	id := clientID(pr.RemoteAddr())
	c, loaded := p.clients.GetOrInsert(id, &client{
		id:        id,
		peer:      pr,
		notifiers: hashmap.New[string, notifier](),
	})
	if loaded {
		if c.peer == pr {
			return c
		}
		// same address on a new link before the old one was reported gone
		p.detach(c)
		return p.attach(pr)
	}

	p.logger.WithFields(logrus.Fields{
		"client": id,
		"mtu":    pr.TxMTU(),
		"bonded": p.IsBonded(id),
	}).Info("Client connected")
	p.watch(c)
	p.dispatcher.OnClientConnected(id)
	return c
}

func (p *Platform) watch(c *client) {
	d, ok := c.peer.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		return
	}
	groutine.Go(context.Background(), "ghsd-link-"+string(c.id), func(context.Context) {
		<-d.Disconnected()
		p.loop.Post(func() { p.detach(c) })
	})
}

func (p *Platform) detach(c *client) {
	if current, ok := p.clients.Get(c.id); !ok || current != c {
		return
	}
	p.clients.Del(c.id)
	p.logger.WithField("client", c.id).Info("Client disconnected")
	p.dispatcher.OnClientDisconnected(c.id)
}

// connected reports whether the link behind c is still up.
func connected(c *client) bool {
	d, ok := c.peer.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		return true
	}
	select {
	case <-d.Disconnected():
		return false
	default:
		return true
	}
}

// charKey identifies char within the attribute table.
func charKey(char *gatt.Characteristic) string {
	return string(char.Service().UUID) + "/" + string(char.UUID)
}

func clientID(addr ble.Addr) gatt.ClientID {
	return gatt.ClientID(addr.String())
}

func sortIDs(ids []gatt.ClientID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
