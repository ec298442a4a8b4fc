package gatt

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingService implements every capability and records the calls it receives.
type recordingService struct {
	svc       *Service
	value     *Characteristic
	control   *Characteristic
	config    *Descriptor
	events    []string
	readValue []byte
	writeErr  error
	retained  map[ClientID]bool
}

func newRecordingService(uuid UUID) *recordingService {
	s := &recordingService{svc: NewService(uuid, "recording"), readValue: []byte{0x01, 0x02, 0x03}}
	s.value = s.svc.AddCharacteristic(UUID16(0xA001), PropRead|PropNotify, PermPlain)
	s.config = s.value.AddDescriptor(UUID16(0xA0D1), PermPlain)
	s.control = s.svc.AddCharacteristic(UUID16(0xA002), PropWrite|PropIndicate, PermPlain)
	return s
}

func (s *recordingService) Service() *Service { return s.svc }

func (s *recordingService) ReadCharacteristic(client ClientID, char *Characteristic) ([]byte, error) {
	s.events = append(s.events, "read:"+string(client))
	return s.readValue, nil
}

func (s *recordingService) WriteCharacteristic(client ClientID, char *Characteristic, value []byte) error {
	s.events = append(s.events, "write:"+string(client))
	return s.writeErr
}

func (s *recordingService) CharacteristicWriteCompleted(client ClientID, char *Characteristic, value []byte) {
	s.events = append(s.events, "write-completed:"+string(client))
}

func (s *recordingService) ReadDescriptor(client ClientID, desc *Descriptor) ([]byte, error) {
	s.events = append(s.events, "descriptor-read:"+string(client))
	return []byte{0xD1}, nil
}

func (s *recordingService) WriteDescriptor(client ClientID, desc *Descriptor, value []byte) error {
	s.events = append(s.events, "descriptor-write:"+string(client))
	return s.writeErr
}

func (s *recordingService) DescriptorWriteCompleted(client ClientID, desc *Descriptor, value []byte) {
	s.events = append(s.events, "descriptor-write-completed:"+string(client))
}

func (s *recordingService) NotificationsEnabled(client ClientID, char *Characteristic) {
	s.events = append(s.events, "enabled:"+string(char.UUID))
}

func (s *recordingService) NotificationsDisabled(client ClientID, char *Characteristic) {
	s.events = append(s.events, "disabled:"+string(char.UUID))
}

func (s *recordingService) NotificationSent(client ClientID, char *Characteristic, status Status) {
	s.events = append(s.events, "sent:"+status.String())
}

func (s *recordingService) Subscribed(client ClientID, char *Characteristic) bool {
	return s.retained[client]
}

func (s *recordingService) ClientConnected(client ClientID) {
	s.events = append(s.events, "connected:"+string(client))
}

func (s *recordingService) ClientDisconnected(client ClientID) {
	s.events = append(s.events, "disconnected:"+string(client))
}

// readOnlyService implements no optional capability.
type readOnlyService struct {
	svc *Service
}

func (s *readOnlyService) Service() *Service { return s.svc }

type DispatcherTestSuite struct {
	suite.Suite
	registry   *Registry
	dispatcher *Dispatcher
	recording  *recordingService
	bare       *readOnlyService
}

func (suite *DispatcherTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	suite.registry = NewRegistry()
	suite.recording = newRecordingService(UUID16(0xA000))
	bare := NewService(UUID16(0xB000), "bare")
	bare.AddCharacteristic(UUID16(0xB001), PropRead|PropWrite, PermPlain)
	suite.bare = &readOnlyService{svc: bare}

	suite.Require().NoError(suite.registry.Register(suite.recording))
	suite.Require().NoError(suite.registry.Register(suite.bare))
	suite.dispatcher = NewDispatcher(suite.registry, logger)
}

func (suite *DispatcherTestSuite) TestRegisterRejectsDuplicateService() {
	err := suite.registry.Register(newRecordingService(UUID16(0xA000)))
	suite.Error(err)
	suite.Len(suite.registry.Handlers(), 2)
}

func (suite *DispatcherTestSuite) TestRegistryKeepsRegistrationOrder() {
	services := suite.registry.Services()
	suite.Require().Len(services, 2)
	suite.Equal(UUID16(0xA000), services[0].UUID)
	suite.Equal(UUID16(0xB000), services[1].UUID)
	suite.Same(suite.recording.value, suite.registry.Characteristic(UUID16(0xA000), UUID16(0xA001)))
	suite.Nil(suite.registry.Characteristic(UUID16(0xC000), UUID16(0xA001)))
}

func (suite *DispatcherTestSuite) TestCharacteristicReadRoutesToOwner() {
	value, status := suite.dispatcher.OnCharacteristicRead("c1", suite.recording.value, 0)
	suite.Equal(StatusSuccess, status)
	suite.Equal([]byte{0x01, 0x02, 0x03}, value)
	suite.Equal([]string{"read:c1"}, suite.recording.events)
}

func (suite *DispatcherTestSuite) TestCharacteristicReadHonoursOffset() {
	value, status := suite.dispatcher.OnCharacteristicRead("c1", suite.recording.value, 2)
	suite.Equal(StatusSuccess, status)
	suite.Equal([]byte{0x03}, value)

	_, status = suite.dispatcher.OnCharacteristicRead("c1", suite.recording.value, 4)
	suite.Equal(StatusInvalidOffset, status)
}

func (suite *DispatcherTestSuite) TestUnknownCharacteristicIsNotSupported() {
	// GOAL: requests for attributes no service owns answer "request not supported"
	//
	// TEST SCENARIO: read/write a characteristic from an unregistered service → status 0x06, no handler runs
	stray := NewService(UUID16(0xC000), "stray").AddCharacteristic(UUID16(0xC001), PropRead|PropWrite, PermPlain)

	_, status := suite.dispatcher.OnCharacteristicRead("c1", stray, 0)
	suite.Equal(StatusRequestNotSupported, status)
	suite.Equal(StatusRequestNotSupported, suite.dispatcher.OnCharacteristicWrite("c1", stray, []byte{1}))
	suite.Equal(StatusRequestNotSupported, suite.dispatcher.OnDescriptorWrite("c1", nil, []byte{1}))
	_, status = suite.dispatcher.OnCharacteristicRead("c1", nil, 0)
	suite.Equal(StatusRequestNotSupported, status)
	suite.Empty(suite.recording.events)
}

func (suite *DispatcherTestSuite) TestMissingCapabilityIsNotSupported() {
	char := suite.bare.svc.Characteristic(UUID16(0xB001))

	_, status := suite.dispatcher.OnCharacteristicRead("c1", char, 0)
	suite.Equal(StatusRequestNotSupported, status)
	suite.Equal(StatusRequestNotSupported, suite.dispatcher.OnCharacteristicWrite("c1", char, []byte{1}))
}

func (suite *DispatcherTestSuite) TestHandlerErrorBecomesStatus() {
	suite.recording.writeErr = Errorf(KindNotAllowed, "consent mismatch")
	suite.Equal(StatusValueNotAllowed, suite.dispatcher.OnCharacteristicWrite("c1", suite.recording.control, []byte{2}))

	suite.recording.writeErr = Errorf(KindOutOfRange, "length")
	suite.Equal(StatusOutOfRange, suite.dispatcher.OnDescriptorWrite("c1", suite.recording.config, []byte{2}))

	suite.recording.writeErr = nil
	suite.Equal(StatusSuccess, suite.dispatcher.OnCharacteristicWrite("c1", suite.recording.control, []byte{2}))
}

func (suite *DispatcherTestSuite) TestLostServiceIsInternalError() {
	// GOAL: an index entry pointing to a vanished service is answered, not panicked on
	//
	// TEST SCENARIO: drop the service from the ordered map behind the index's back → status 0x0E
	suite.registry.services.Delete(UUID16(0xA000))

	_, status := suite.dispatcher.OnCharacteristicRead("c1", suite.recording.value, 0)
	suite.Equal(StatusUnlikely, status)
	suite.Equal(StatusUnlikely, suite.dispatcher.OnCharacteristicWrite("c1", suite.recording.control, nil))
	suite.NotPanics(func() { suite.dispatcher.OnNotificationsEnabled("c1", suite.recording.value) })
	suite.Empty(suite.recording.events)
}

func (suite *DispatcherTestSuite) TestConnectionEventsBroadcast() {
	suite.dispatcher.OnClientConnected("c1")
	suite.dispatcher.OnClientDisconnected("c1")
	suite.Equal([]string{"connected:c1", "disconnected:c1"}, suite.recording.events)
}

func (suite *DispatcherTestSuite) TestDescriptorRouting() {
	value, status := suite.dispatcher.OnDescriptorRead("c1", suite.recording.config, 0)
	suite.Equal(StatusSuccess, status)
	suite.Equal([]byte{0xD1}, value)

	suite.Equal(StatusSuccess, suite.dispatcher.OnDescriptorWrite("c1", suite.recording.config, []byte{9}))
	suite.dispatcher.OnDescriptorWriteCompleted("c1", suite.recording.config, []byte{9})
	suite.dispatcher.OnCharacteristicWriteCompleted("c1", suite.recording.control, []byte{9})

	suite.Equal([]string{
		"descriptor-read:c1",
		"descriptor-write:c1",
		"descriptor-write-completed:c1",
		"write-completed:c1",
	}, suite.recording.events)
}

func (suite *DispatcherTestSuite) TestClientConfigWritesBecomeSubscriptions() {
	// GOAL: raw CCCD writes are decoded into enable/disable events and remembered per client
	//
	// TEST SCENARIO: enable notify → enabled; repeat → no duplicate; read back; disable → disabled
	cccd := suite.recording.value.Descriptor(ClientConfigUUID)
	suite.Require().NotNil(cccd)

	suite.Equal(StatusSuccess, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x01, 0x00}))
	suite.Equal(StatusSuccess, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x01, 0x00}))

	value, status := suite.dispatcher.OnDescriptorRead("c1", cccd, 0)
	suite.Equal(StatusSuccess, status)
	suite.Equal([]byte{0x01, 0x00}, value)

	value, _ = suite.dispatcher.OnDescriptorRead("c2", cccd, 0)
	suite.Equal([]byte{0x00, 0x00}, value)

	suite.Equal(StatusSuccess, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x00, 0x00}))
	suite.Equal([]string{"enabled:a001", "disabled:a001"}, suite.recording.events)
}

func (suite *DispatcherTestSuite) TestClientConfigForgottenWhenSubscriptionDropped() {
	// GOAL: a client whose subscription was dropped on disconnect can subscribe again
	//
	// TEST SCENARIO: enable → disconnect (not retained) → reconnect → enable again → second enabled event
	cccd := suite.recording.value.Descriptor(ClientConfigUUID)

	suite.Equal(StatusSuccess, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x01, 0x00}))
	suite.dispatcher.OnClientDisconnected("c1")
	suite.dispatcher.OnClientConnected("c1")

	value, _ := suite.dispatcher.OnDescriptorRead("c1", cccd, 0)
	suite.Equal([]byte{0x00, 0x00}, value)

	suite.Equal(StatusSuccess, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x01, 0x00}))
	suite.Equal([]string{
		"enabled:a001",
		"disconnected:c1",
		"connected:c1",
		"enabled:a001",
	}, suite.recording.events)
}

func (suite *DispatcherTestSuite) TestClientConfigKeptWhenSubscriptionRetained() {
	cccd := suite.recording.value.Descriptor(ClientConfigUUID)
	suite.recording.retained = map[ClientID]bool{"c1": true}

	suite.Equal(StatusSuccess, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x01, 0x00}))
	suite.dispatcher.OnClientDisconnected("c1")
	suite.dispatcher.OnClientConnected("c1")

	value, _ := suite.dispatcher.OnDescriptorRead("c1", cccd, 0)
	suite.Equal([]byte{0x01, 0x00}, value)

	suite.Equal(StatusSuccess, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x01, 0x00}))
	suite.Equal([]string{"enabled:a001", "disconnected:c1", "connected:c1"}, suite.recording.events)
}

func (suite *DispatcherTestSuite) TestClientConfigRejectsBadValues() {
	cccd := suite.recording.value.Descriptor(ClientConfigUUID)

	suite.Equal(StatusCCCDImproperlyConfigured, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x01}))
	// value characteristic only notifies
	suite.Equal(StatusCCCDImproperlyConfigured, suite.dispatcher.OnDescriptorWrite("c1", cccd, []byte{0x02, 0x00}))
	suite.Empty(suite.recording.events)
}

func (suite *DispatcherTestSuite) TestNotificationSentRouting() {
	suite.dispatcher.OnNotificationSent("c1", suite.recording.value, StatusSuccess)
	suite.dispatcher.OnNotificationSent("c1", nil, StatusSuccess)
	suite.Equal([]string{"sent:success"}, suite.recording.events)
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func TestAddCharacteristic_AddsClientConfig(t *testing.T) {
	svc := NewService(UUID16(0x1000), "test")
	notify := svc.AddCharacteristic(UUID16(0x1001), PropNotify, PermPlain)
	read := svc.AddCharacteristic(UUID16(0x1002), PropRead, PermEncryptedMITM)

	require.Len(t, notify.Descriptors(), 1)
	assert.Equal(t, ClientConfigUUID, notify.Descriptors()[0].UUID)
	assert.Same(t, notify, notify.Descriptors()[0].Characteristic())
	assert.Empty(t, read.Descriptors())
	assert.Same(t, svc, read.Service())
	assert.True(t, notify.Notifiable())
	assert.False(t, read.Notifiable())
	assert.Equal(t, "read", read.Properties.String())
	assert.Equal(t, "write,indicate", (PropWrite | PropIndicate).String())
}

func TestParseClientConfig(t *testing.T) {
	cfg, err := ParseClientConfig([]byte{0x03, 0x00})
	require.NoError(t, err)
	assert.True(t, cfg.Notifications)
	assert.True(t, cfg.Indications)
	assert.Equal(t, []byte{0x03, 0x00}, cfg.Bytes())

	_, err = ParseClientConfig([]byte{0x01, 0x00, 0x00})
	assert.Error(t, err)
}
