// Package subscription tracks which clients receive notifications of which characteristic.
package subscription

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/ghsd/internal/gatt"
)

// Policy decides what happens to memberships when a client disconnects.
type Policy int

const (
	// RetainBonded keeps the memberships of bonded clients across disconnects, so
	// delivery resumes on reconnect without a new subscription. Unbonded clients are dropped.
	RetainBonded Policy = iota
	// DropOnDisconnect removes every membership of a disconnecting client.
	DropOnDisconnect
	// PlatformManaged defers membership to the platform's own subscription state.
	PlatformManaged
)

func (p Policy) String() string {
	switch p {
	case RetainBonded:
		return "retain-bonded"
	case DropOnDisconnect:
		return "drop-on-disconnect"
	case PlatformManaged:
		return "platform"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name as produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "retain-bonded":
		return RetainBonded, nil
	case "drop-on-disconnect":
		return DropOnDisconnect, nil
	case "platform":
		return PlatformManaged, nil
	default:
		return 0, fmt.Errorf("unknown subscription policy %q (must be retain-bonded, drop-on-disconnect, or platform)", s)
	}
}

type clientSet = orderedmap.OrderedMap[gatt.ClientID, struct{}]

// Tracker holds one subscription set per notifiable characteristic, in subscription order.
// It is not safe for concurrent use; it lives on the event loop.
type Tracker struct {
	policy   Policy
	platform gatt.Platform
	sets     map[*gatt.Characteristic]*clientSet
	logger   *logrus.Logger
}

// NewTracker creates a tracker. The platform answers connection, bond and
// (for PlatformManaged) membership queries.
func NewTracker(policy Policy, platform gatt.Platform, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{
		policy:   policy,
		platform: platform,
		sets:     make(map[*gatt.Characteristic]*clientSet),
		logger:   logger,
	}
}

// Policy returns the tracker's disconnect policy.
func (t *Tracker) Policy() Policy {
	return t.policy
}

// Subscribe adds client to the set of char. Returns false if it was already a member.
func (t *Tracker) Subscribe(char *gatt.Characteristic, client gatt.ClientID) bool {
	if t.policy == PlatformManaged {
		return true
	}
	set, ok := t.sets[char]
	if !ok {
		set = orderedmap.New[gatt.ClientID, struct{}]()
		t.sets[char] = set
	}
	_, present := set.Set(client, struct{}{})
	return !present
}

// Unsubscribe removes client from the set of char. Returns false if it was not a member.
func (t *Tracker) Unsubscribe(char *gatt.Characteristic, client gatt.ClientID) bool {
	if t.policy == PlatformManaged {
		return true
	}
	set, ok := t.sets[char]
	if !ok {
		return false
	}
	_, present := set.Delete(client)
	return present
}

// Disconnected applies the disconnect policy to client.
// Returns the characteristics whose membership changed.
func (t *Tracker) Disconnected(client gatt.ClientID) []*gatt.Characteristic {
	switch t.policy {
	case PlatformManaged:
		return nil
	case RetainBonded:
		if t.platform.IsBonded(client) {
			t.logger.WithField("client", client).Debug("Retaining subscriptions of bonded client")
			return nil
		}
	}

	var changed []*gatt.Characteristic
	for char, set := range t.sets {
		if _, present := set.Delete(client); present {
			changed = append(changed, char)
		}
	}
	return changed
}

// Members returns every member of the set of char in subscription order,
// including retained members that are currently disconnected.
func (t *Tracker) Members(char *gatt.Characteristic) []gatt.ClientID {
	if t.policy == PlatformManaged {
		return t.platform.SubscribedClients(char)
	}
	set, ok := t.sets[char]
	if !ok {
		return nil
	}
	members := make([]gatt.ClientID, 0, set.Len())
	for pair := set.Oldest(); pair != nil; pair = pair.Next() {
		members = append(members, pair.Key)
	}
	return members
}

// Active returns the members of char that are currently connected, in subscription order.
func (t *Tracker) Active(char *gatt.Characteristic) []gatt.ClientID {
	members := t.Members(char)
	if len(members) == 0 {
		return nil
	}

	connected := make(map[gatt.ClientID]struct{})
	for _, c := range t.platform.ConnectedClients() {
		connected[c] = struct{}{}
	}

	var active []gatt.ClientID
	for _, m := range members {
		if _, ok := connected[m]; ok {
			active = append(active, m)
		}
	}
	return active
}

// IsMember reports whether client is in the set of char.
func (t *Tracker) IsMember(char *gatt.Characteristic, client gatt.ClientID) bool {
	for _, m := range t.Members(char) {
		if m == client {
			return true
		}
	}
	return false
}

// MinPayloadSize returns the smallest payload size reported for the active members of char,
// clamped to floor. With no active member it returns floor.
func (t *Tracker) MinPayloadSize(char *gatt.Characteristic, floor int) int {
	minSize := floor
	for i, c := range t.Active(char) {
		size := t.platform.PayloadSize(c)
		if i == 0 || size < minSize {
			minSize = size
		}
	}
	if minSize < floor {
		return floor
	}
	return minSize
}
