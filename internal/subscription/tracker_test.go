package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/testutils"
)

func newObservationChar() *gatt.Characteristic {
	svc := gatt.NewService(gatt.UUID16(0x7F44), "ghs")
	return svc.AddCharacteristic(gatt.UUID16(0x7F43), gatt.PropNotify, gatt.PermPlain)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{input: "", want: RetainBonded},
		{input: "retain-bonded", want: RetainBonded},
		{input: "Drop-On-Disconnect", want: DropOnDisconnect},
		{input: "platform", want: PlatformManaged},
		{input: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(ParsePolicy(got.String())))
		})
	}
}

func must(p Policy, err error) Policy {
	if err != nil {
		panic(err)
	}
	return p
}

func TestTracker_SubscribeOrderAndIdempotence(t *testing.T) {
	platform := testutils.NewFakePlatform()
	char := newObservationChar()
	tracker := NewTracker(RetainBonded, platform, testutils.NewTestLogger())

	assert.True(t, tracker.Subscribe(char, "b"))
	assert.True(t, tracker.Subscribe(char, "a"))
	assert.False(t, tracker.Subscribe(char, "b"))
	assert.Equal(t, []gatt.ClientID{"b", "a"}, tracker.Members(char))

	assert.True(t, tracker.Unsubscribe(char, "b"))
	assert.False(t, tracker.Unsubscribe(char, "b"))
	assert.Equal(t, []gatt.ClientID{"a"}, tracker.Members(char))
	assert.False(t, tracker.Unsubscribe(newObservationChar(), "a"))
}

func TestTracker_ActiveIsConnectedMembers(t *testing.T) {
	platform := testutils.NewFakePlatform()
	char := newObservationChar()
	tracker := NewTracker(RetainBonded, platform, testutils.NewTestLogger())

	platform.Connect("a", 23, false)
	platform.Connect("b", 64, true)
	tracker.Subscribe(char, "a")
	tracker.Subscribe(char, "b")
	tracker.Subscribe(char, "ghost")

	assert.Equal(t, []gatt.ClientID{"a", "b"}, tracker.Active(char))
	assert.True(t, tracker.IsMember(char, "ghost"))
	assert.False(t, tracker.IsMember(char, "nobody"))
}

func TestTracker_RetainBonded(t *testing.T) {
	// GOAL: bonded clients keep their membership across a disconnect, unbonded ones do not
	//
	// TEST SCENARIO: bonded "b" and unbonded "u" disconnect → "b" retained but inactive; reconnect → active again
	platform := testutils.NewFakePlatform()
	char := newObservationChar()
	tracker := NewTracker(RetainBonded, platform, testutils.NewTestLogger())

	platform.Connect("b", 23, true)
	platform.Connect("u", 23, false)
	tracker.Subscribe(char, "b")
	tracker.Subscribe(char, "u")

	platform.Disconnect("b")
	assert.Empty(t, tracker.Disconnected("b"))
	platform.Disconnect("u")
	assert.Equal(t, []*gatt.Characteristic{char}, tracker.Disconnected("u"))

	assert.Equal(t, []gatt.ClientID{"b"}, tracker.Members(char))
	assert.Empty(t, tracker.Active(char))

	platform.Connect("b", 23, true)
	assert.Equal(t, []gatt.ClientID{"b"}, tracker.Active(char))
}

func TestTracker_DropOnDisconnect(t *testing.T) {
	platform := testutils.NewFakePlatform()
	char := newObservationChar()
	tracker := NewTracker(DropOnDisconnect, platform, testutils.NewTestLogger())

	platform.Connect("b", 23, true)
	tracker.Subscribe(char, "b")
	platform.Disconnect("b")

	assert.Equal(t, []*gatt.Characteristic{char}, tracker.Disconnected("b"))
	assert.Empty(t, tracker.Members(char))
}

func TestTracker_PlatformManaged(t *testing.T) {
	platform := testutils.NewFakePlatform()
	char := newObservationChar()
	tracker := NewTracker(PlatformManaged, platform, testutils.NewTestLogger())

	platform.Connect("a", 23, false)
	platform.Connect("b", 23, false)
	platform.Subscribe(char, "b")

	assert.True(t, tracker.Subscribe(char, "a"), "subscribe is accepted but membership stays with the platform")
	assert.Equal(t, []gatt.ClientID{"b"}, tracker.Members(char))
	assert.Equal(t, []gatt.ClientID{"b"}, tracker.Active(char))

	platform.Disconnect("b")
	assert.Nil(t, tracker.Disconnected("b"))
	assert.Empty(t, tracker.Active(char))
}

func TestTracker_MinPayloadSize(t *testing.T) {
	platform := testutils.NewFakePlatform()
	char := newObservationChar()
	tracker := NewTracker(RetainBonded, platform, testutils.NewTestLogger())

	assert.Equal(t, 23, tracker.MinPayloadSize(char, 23), "no subscribers → floor")

	platform.Connect("a", 185, false)
	platform.Connect("b", 64, false)
	tracker.Subscribe(char, "a")
	tracker.Subscribe(char, "b")
	assert.Equal(t, 64, tracker.MinPayloadSize(char, 23))

	platform.SetPayloadSize("a", 5)
	assert.Equal(t, 23, tracker.MinPayloadSize(char, 23), "sizes below the floor are clamped")

	platform.Disconnect("a")
	tracker.Disconnected("a")
	assert.Equal(t, 64, tracker.MinPayloadSize(char, 23), "only connected members count")
}
