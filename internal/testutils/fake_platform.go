package testutils

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/ghsd/internal/gatt"
)

// Notification is one frame recorded by FakePlatform.
type Notification struct {
	Client gatt.ClientID
	Char   *gatt.Characteristic
	Data   []byte
}

// FakeClient is the platform-side state of a simulated central.
type FakeClient struct {
	PayloadSize int
	Bonded      bool
	Connected   bool
}

// FakePlatform is an in-memory gatt.Platform. Clients, payload sizes and platform-side
// subscriptions are set up by the test; every SendNotification is recorded.
type FakePlatform struct {
	mu            sync.Mutex
	clients       *orderedmap.OrderedMap[gatt.ClientID, *FakeClient]
	subscriptions map[*gatt.Characteristic]*orderedmap.OrderedMap[gatt.ClientID, struct{}]
	sent          []Notification
	floor         int

	// SendErr, when set, fails every SendNotification.
	SendErr error
}

var _ gatt.Platform = (*FakePlatform)(nil)

// NewFakePlatform creates a platform with no clients.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		clients:       orderedmap.New[gatt.ClientID, *FakeClient](),
		subscriptions: make(map[*gatt.Characteristic]*orderedmap.OrderedMap[gatt.ClientID, struct{}]),
	}
}

// Connect marks client connected with the given payload size and bond state.
func (p *FakePlatform) Connect(client gatt.ClientID, payloadSize int, bonded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients.Set(client, &FakeClient{PayloadSize: payloadSize, Bonded: bonded, Connected: true})
}

// Disconnect marks client disconnected. Bond state is kept; platform-side
// subscriptions of unbonded clients are dropped.
func (p *FakePlatform) Disconnect(client gatt.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients.Get(client)
	if !ok {
		return
	}
	c.Connected = false
	if !c.Bonded {
		for _, set := range p.subscriptions {
			set.Delete(client)
		}
	}
}

// SetPayloadSize changes the negotiated payload size of client.
func (p *FakePlatform) SetPayloadSize(client gatt.ClientID, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients.Get(client); ok {
		c.PayloadSize = size
	}
}

// SetPayloadFloor makes the platform report a payload floor; zero restores the default.
func (p *FakePlatform) SetPayloadFloor(floor int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.floor = floor
}

// PayloadFloor implements gatt.PayloadFloorer. Zero means "use the default".
func (p *FakePlatform) PayloadFloor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.floor
}

// Subscribe records a platform-side subscription of client to char.
func (p *FakePlatform) Subscribe(char *gatt.Characteristic, client gatt.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.subscriptions[char]
	if !ok {
		set = orderedmap.New[gatt.ClientID, struct{}]()
		p.subscriptions[char] = set
	}
	set.Set(client, struct{}{})
}

// Unsubscribe removes a platform-side subscription.
func (p *FakePlatform) Unsubscribe(char *gatt.Characteristic, client gatt.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.subscriptions[char]; ok {
		set.Delete(client)
	}
}

// Notifications returns every recorded frame in send order.
func (p *FakePlatform) Notifications() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.sent...)
}

// NotificationsTo returns the frames sent to client on char in send order.
func (p *FakePlatform) NotificationsTo(client gatt.ClientID, char *gatt.Characteristic) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var frames [][]byte
	for _, n := range p.sent {
		if n.Client == client && n.Char == char {
			frames = append(frames, n.Data)
		}
	}
	return frames
}

// ClearNotifications forgets recorded frames.
func (p *FakePlatform) ClearNotifications() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}

// ----------------------------------------------------------------------------
// gatt.Platform
// ----------------------------------------------------------------------------

func (p *FakePlatform) SendNotification(data []byte, client gatt.ClientID, char *gatt.Characteristic) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendErr != nil {
		return p.SendErr
	}
	p.sent = append(p.sent, Notification{Client: client, Char: char, Data: append([]byte(nil), data...)})
	return nil
}

func (p *FakePlatform) PayloadSize(client gatt.ClientID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients.Get(client); ok {
		return c.PayloadSize
	}
	return 0
}

func (p *FakePlatform) ConnectedClients() []gatt.ClientID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []gatt.ClientID
	for pair := p.clients.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Connected {
			ids = append(ids, pair.Key)
		}
	}
	return ids
}

func (p *FakePlatform) SubscribedClients(char *gatt.Characteristic) []gatt.ClientID {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.subscriptions[char]
	if !ok {
		return nil
	}
	var ids []gatt.ClientID
	for pair := set.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

func (p *FakePlatform) IsBonded(client gatt.ClientID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients.Get(client)
	return ok && c.Bonded
}
