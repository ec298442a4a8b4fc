package ghs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/subscription"
	"github.com/srg/ghsd/internal/testutils"
)

type EmitterTestSuite struct {
	suite.Suite
	helper    *testutils.TestHelper
	platform  *testutils.FakePlatform
	scheduler *testutils.ManualScheduler
	tracker   *subscription.Tracker
	feed      *Feed
	service   *Service
	value     float32
	valueErr  error
}

func (suite *EmitterTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.platform = testutils.NewFakePlatform()
	suite.scheduler = testutils.NewManualScheduler(newYear2024)
	suite.value = 96.5
	suite.valueErr = nil
	suite.buildService(subscription.RetainBonded)
}

func (suite *EmitterTestSuite) buildService(policy subscription.Policy) {
	logger := suite.helper.Logger
	feed, err := NewFeed(16)
	suite.Require().NoError(err)
	suite.feed = feed
	suite.tracker = subscription.NewTracker(policy, suite.platform, logger)
	suite.service = NewService(Config{
		Source: ValueSourceFunc(func() (float32, error) { return suite.value, suite.valueErr }),
		Feed:   feed,
		Clock:  suite.scheduler.Now,
	}, suite.tracker, suite.platform, suite.scheduler, logger)
}

func (suite *EmitterTestSuite) observation() *gatt.Characteristic {
	return suite.service.ObservationCharacteristic()
}

func (suite *EmitterTestSuite) connectAndSubscribe(client gatt.ClientID, payload int, bonded bool) {
	suite.platform.Connect(client, payload, bonded)
	suite.service.ClientConnected(client)
	suite.service.NotificationsEnabled(client, suite.observation())
}

func (suite *EmitterTestSuite) disconnect(client gatt.ClientID) {
	suite.platform.Disconnect(client)
	suite.service.ClientDisconnected(client)
}

// received reassembles the observations delivered to client.
func (suite *EmitterTestSuite) received(client gatt.ClientID) []Observation {
	var (
		out     []Observation
		pending []byte
	)
	for _, frame := range suite.platform.NotificationsTo(client, suite.observation()) {
		_, role := ParseHeader(frame[0])
		if role == RoleFirst || role == RoleSingle {
			pending = nil
		}
		pending = append(pending, frame[1:]...)
		if role == RoleLast || role == RoleSingle {
			obs, err := DecodeObservation(pending)
			suite.Require().NoError(err)
			out = append(out, obs)
		}
	}
	return out
}

func (suite *EmitterTestSuite) TestIdleWithoutSubscribers() {
	suite.platform.Connect("a", 23, false)
	suite.service.ClientConnected("a")

	suite.Equal(Idle, suite.service.Emitter().State())
	suite.scheduler.Advance(5 * time.Second)
	suite.Empty(suite.platform.Notifications())
	suite.Equal(0, suite.scheduler.PendingTimers())
}

func (suite *EmitterTestSuite) TestFirstSubscriberStartsImmediateEmission() {
	// GOAL: the first subscription emits at once, then every update interval
	//
	// TEST SCENARIO: subscribe at MTU 23 → one observation in two frames now → after 1s a second observation
	suite.connectAndSubscribe("a", 23, false)

	suite.Equal(Active, suite.service.Emitter().State())
	frames := suite.platform.NotificationsTo("a", suite.observation())
	suite.Require().Len(frames, 2)
	_, first := ParseHeader(frames[0][0])
	_, last := ParseHeader(frames[1][0])
	suite.Equal(RoleFirst, first)
	suite.Equal(RoleLast, last)
	suite.Equal(1, suite.scheduler.PendingTimers())

	suite.scheduler.Advance(999 * time.Millisecond)
	suite.Len(suite.received("a"), 1)

	suite.scheduler.Advance(time.Millisecond)
	obs := suite.received("a")
	suite.Require().Len(obs, 2)
	suite.Equal(float32(96.5), obs[1].Value)
	suite.Equal(MDCPulseOximSatO2, obs[1].SensorType)
	suite.True(newYear2024.Add(time.Second).Equal(obs[1].Timestamp))
}

func (suite *EmitterTestSuite) TestSecondSubscriberDoesNotRestart() {
	suite.connectAndSubscribe("a", 185, false)
	suite.connectAndSubscribe("b", 185, false)

	suite.Len(suite.received("a"), 1)
	suite.Empty(suite.received("b"), "b waits for the next cycle")
	suite.Equal(1, suite.scheduler.PendingTimers())

	suite.scheduler.Advance(time.Second)
	suite.Len(suite.received("a"), 2)
	suite.Len(suite.received("b"), 1)
}

func (suite *EmitterTestSuite) TestPayloadIsMinimumAcrossConnectedSubscribers() {
	suite.connectAndSubscribe("big", 185, false)
	suite.connectAndSubscribe("small", 23, false)
	suite.platform.ClearNotifications()

	suite.scheduler.Advance(time.Second)
	suite.Len(suite.platform.NotificationsTo("big", suite.observation()), 2, "big client receives frames sized for the small one")
	suite.Len(suite.platform.NotificationsTo("small", suite.observation()), 2)

	suite.platform.SetPayloadSize("small", 247)
	suite.platform.ClearNotifications()
	suite.scheduler.Advance(time.Second)
	suite.Len(suite.platform.NotificationsTo("big", suite.observation()), 1)
	suite.Len(suite.platform.NotificationsTo("small", suite.observation()), 1)
}

func (suite *EmitterTestSuite) TestCounterIsSharedAcrossObservations() {
	suite.connectAndSubscribe("a", 23, false)
	suite.scheduler.Advance(time.Second)

	var counters []uint8
	for _, f := range suite.platform.NotificationsTo("a", suite.observation()) {
		c, _ := ParseHeader(f[0])
		counters = append(counters, c)
	}
	suite.Equal([]uint8{0, 1, 2, 3}, counters)
}

func (suite *EmitterTestSuite) TestLastUnsubscribeStopsAndCancels() {
	suite.connectAndSubscribe("a", 23, false)
	suite.connectAndSubscribe("b", 23, false)

	suite.service.NotificationsDisabled("a", suite.observation())
	suite.Equal(Active, suite.service.Emitter().State())

	suite.service.NotificationsDisabled("b", suite.observation())
	suite.Equal(Idle, suite.service.Emitter().State())
	suite.Equal(0, suite.scheduler.PendingTimers())

	suite.platform.ClearNotifications()
	suite.scheduler.Advance(10 * time.Second)
	suite.Empty(suite.platform.Notifications())
}

func (suite *EmitterTestSuite) TestUnbondedDisconnectStops() {
	suite.connectAndSubscribe("a", 23, false)
	suite.disconnect("a")

	suite.Equal(Idle, suite.service.Emitter().State())
	suite.Empty(suite.tracker.Members(suite.observation()))

	suite.platform.Connect("a", 23, false)
	suite.service.ClientConnected("a")
	suite.Equal(Idle, suite.service.Emitter().State(), "unbonded client must subscribe again")
}

func (suite *EmitterTestSuite) TestBondedReconnectResumes() {
	// GOAL: a bonded subscriber that reconnects gets observations again without re-subscribing
	//
	// TEST SCENARIO: bonded "b" subscribes, disconnects → Idle; reconnects → Active with an immediate observation
	suite.connectAndSubscribe("b", 23, true)
	suite.disconnect("b")
	suite.Equal(Idle, suite.service.Emitter().State())
	suite.Equal([]gatt.ClientID{"b"}, suite.tracker.Members(suite.observation()))

	suite.platform.ClearNotifications()
	suite.scheduler.Advance(3 * time.Second)
	suite.Empty(suite.platform.Notifications())

	suite.platform.Connect("b", 23, true)
	suite.service.ClientConnected("b")
	suite.Equal(Active, suite.service.Emitter().State())
	suite.Len(suite.received("b"), 1)
}

func (suite *EmitterTestSuite) TestDisconnectOfOneKeepsOthersRunning() {
	suite.connectAndSubscribe("a", 23, false)
	suite.connectAndSubscribe("b", 23, false)
	suite.disconnect("a")

	suite.Equal(Active, suite.service.Emitter().State())
	suite.platform.ClearNotifications()
	suite.scheduler.Advance(time.Second)
	suite.Len(suite.received("b"), 1)
	suite.Empty(suite.received("a"))
}

func (suite *EmitterTestSuite) TestScheduleChangeAppliesToNextCycle() {
	suite.connectAndSubscribe("a", 185, false)
	suite.Require().NoError(suite.service.WriteDescriptor("a", suite.service.ScheduleDescriptor(), scheduleBytes(MDCPulseOximSatO2, 2, 4)))
	suite.platform.ClearNotifications()

	suite.scheduler.Advance(3 * time.Second)
	suite.Empty(suite.received("a"))

	suite.scheduler.Advance(time.Second)
	obs := suite.received("a")
	suite.Require().Len(obs, 1)
	suite.Equal(float32(2), obs[0].MeasurementDuration)
}

func (suite *EmitterTestSuite) TestPlatformPayloadFloor() {
	suite.platform.SetPayloadFloor(20)
	suite.buildService(subscription.RetainBonded)

	suite.connectAndSubscribe("a", 20, false)
	frames := suite.platform.NotificationsTo("a", suite.observation())
	suite.Require().Len(frames, 2)
	suite.Len(frames[0], 20)
	suite.Len(frames[1], 28-19+1)
}

func (suite *EmitterTestSuite) TestSourceErrorSkipsCycle() {
	suite.valueErr = errors.New("sensor warming up")
	suite.connectAndSubscribe("a", 185, false)

	suite.Empty(suite.platform.Notifications())
	suite.Equal(Active, suite.service.Emitter().State())

	suite.valueErr = nil
	suite.scheduler.Advance(time.Second)
	suite.Len(suite.received("a"), 1)
}

func (suite *EmitterTestSuite) TestFeedReceivesObservations() {
	suite.connectAndSubscribe("a", 185, false)
	suite.scheduler.Advance(2 * time.Second)

	observations := suite.feed.Drain()
	suite.Len(observations, 3)
	suite.Equal(int64(3), suite.feed.Published())
	suite.Equal(float32(96.5), observations[0].Value)
	suite.Empty(suite.feed.Drain())
}

func (suite *EmitterTestSuite) TestPlatformManagedPolicy() {
	suite.buildService(subscription.PlatformManaged)
	obsChar := suite.observation()

	suite.platform.Connect("a", 185, false)
	suite.platform.Subscribe(obsChar, "a")
	suite.service.NotificationsEnabled("a", obsChar)
	suite.Equal(Active, suite.service.Emitter().State())

	suite.platform.Unsubscribe(obsChar, "a")
	suite.service.NotificationsDisabled("a", obsChar)
	suite.Equal(Idle, suite.service.Emitter().State())
}

func (suite *EmitterTestSuite) TestClientWithoutLiveSubscriptionIsNotAWarning() {
	// GOAL: a retained client that has not subscribed on its new link is skipped quietly
	//
	// TEST SCENARIO: platform reports not-subscribed → debug entry, no warning; other failures still warn
	suite.platform.SendErr = fmt.Errorf("%w: no notifier", gatt.ErrNotSubscribed)
	suite.connectAndSubscribe("b1", 23, true)
	suite.Equal(Active, suite.service.Emitter().State())

	out := suite.helper.Output.String()
	suite.Contains(out, "Skipped observation segment")
	suite.NotContains(out, "level=warning")

	suite.helper.Output.Reset()
	suite.platform.SendErr = errors.New("link busy")
	suite.scheduler.Advance(time.Second)
	suite.Contains(suite.helper.Output.String(), "level=warning")
}

func TestEmitterTestSuite(t *testing.T) {
	suite.Run(t, new(EmitterTestSuite))
}
