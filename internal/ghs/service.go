package ghs

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/ghsd/internal/eventloop"
	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/subscription"
)

// Config holds the settings of the GHS service.
type Config struct {
	SensorType      uint32
	InitialSchedule Schedule
	Source          ValueSource
	Feed            *Feed            // optional
	Clock           func() time.Time // defaults to time.Now
}

// Service is the Generic Health Sensor service handler.
//
// Layout:
//
//	GHS Features      0x7F41  read
//	  Schedule        0x7F35  read, write
//	Schedule Changed  0x7F3F  indicate
//	Live Observation  0x7F43  notify
type Service struct {
	svc             *gatt.Service
	features        *gatt.Characteristic
	scheduleDesc    *gatt.Descriptor
	scheduleChanged *gatt.Characteristic
	observation     *gatt.Characteristic

	sensorType uint32
	tracker    *subscription.Tracker
	negotiator *Negotiator
	emitter    *Emitter
	logger     *logrus.Logger
}

// NewService builds the GHS service definition and its collaborators.
func NewService(cfg Config, tracker *subscription.Tracker, platform gatt.Platform,
	scheduler eventloop.Scheduler, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.SensorType == 0 {
		cfg.SensorType = MDCPulseOximSatO2
	}
	if cfg.InitialSchedule == (Schedule{}) {
		cfg.InitialSchedule = DefaultSchedule(cfg.SensorType)
	}
	if cfg.Source == nil {
		cfg.Source = NewSimulatedSpO2(0)
	}

	s := &Service{
		svc:        gatt.NewService(ServiceUUID, "Generic Health Sensor"),
		sensorType: cfg.SensorType,
		tracker:    tracker,
		logger:     logger,
	}
	s.features = s.svc.AddCharacteristic(FeaturesUUID, gatt.PropRead, gatt.PermPlain)
	s.scheduleDesc = s.features.AddDescriptor(ScheduleDescriptorUUID, gatt.PermPlain)
	s.scheduleChanged = s.svc.AddCharacteristic(ScheduleChangedUUID, gatt.PropIndicate, gatt.PermPlain)
	s.observation = s.svc.AddCharacteristic(ObservationUUID, gatt.PropNotify, gatt.PermPlain)

	s.negotiator = NewNegotiator(cfg.InitialSchedule, s.scheduleChanged, tracker, platform, scheduler, logger)
	s.emitter = NewEmitter(EmitterConfig{
		Characteristic: s.observation,
		Schedule:       s.negotiator.Current,
		Source:         cfg.Source,
		Tracker:        tracker,
		Platform:       platform,
		Scheduler:      scheduler,
		Feed:           cfg.Feed,
		Clock:          cfg.Clock,
		Logger:         logger,
	})
	s.negotiator.OnChange(func(Schedule) { s.emitter.Reschedule() })
	return s
}

// Service implements gatt.ServiceHandler.
func (s *Service) Service() *gatt.Service { return s.svc }

// Negotiator returns the schedule negotiator.
func (s *Service) Negotiator() *Negotiator { return s.negotiator }

// Emitter returns the observation emitter.
func (s *Service) Emitter() *Emitter { return s.emitter }

// ObservationCharacteristic returns the live observation characteristic.
func (s *Service) ObservationCharacteristic() *gatt.Characteristic { return s.observation }

// ScheduleChangedCharacteristic returns the schedule changed characteristic.
func (s *Service) ScheduleChangedCharacteristic() *gatt.Characteristic { return s.scheduleChanged }

// FeaturesCharacteristic returns the features characteristic.
func (s *Service) FeaturesCharacteristic() *gatt.Characteristic { return s.features }

// ScheduleDescriptor returns the schedule descriptor.
func (s *Service) ScheduleDescriptor() *gatt.Descriptor { return s.scheduleDesc }

func (s *Service) ReadCharacteristic(_ gatt.ClientID, char *gatt.Characteristic) ([]byte, error) {
	if char != s.features {
		return nil, gatt.Errorf(gatt.KindUnsupported, "characteristic %s is not readable", char.UUID)
	}
	return FeaturesValue(s.sensorType), nil
}

func (s *Service) ReadDescriptor(_ gatt.ClientID, desc *gatt.Descriptor) ([]byte, error) {
	if desc != s.scheduleDesc {
		return nil, gatt.Errorf(gatt.KindUnsupported, "descriptor %s is not readable", desc.UUID)
	}
	return s.negotiator.Read(), nil
}

func (s *Service) WriteDescriptor(client gatt.ClientID, desc *gatt.Descriptor, value []byte) error {
	if desc != s.scheduleDesc {
		return gatt.Errorf(gatt.KindUnsupported, "descriptor %s is not writable", desc.UUID)
	}
	return s.negotiator.Apply(client, value)
}

func (s *Service) NotificationsEnabled(client gatt.ClientID, char *gatt.Characteristic) {
	if char != s.observation && char != s.scheduleChanged {
		return
	}
	s.tracker.Subscribe(char, client)
	if char == s.observation {
		s.emitter.Evaluate()
	}
}

func (s *Service) NotificationsDisabled(client gatt.ClientID, char *gatt.Characteristic) {
	if char != s.observation && char != s.scheduleChanged {
		return
	}
	s.tracker.Unsubscribe(char, client)
	if char == s.observation {
		s.emitter.Evaluate()
	}
}

// Subscribed reports whether client is still a member of the set of char.
func (s *Service) Subscribed(client gatt.ClientID, char *gatt.Characteristic) bool {
	return s.tracker.IsMember(char, client)
}

func (s *Service) ClientConnected(client gatt.ClientID) {
	// retained subscriptions of a bonded client resume on reconnect
	s.emitter.Evaluate()
}

func (s *Service) ClientDisconnected(client gatt.ClientID) {
	s.tracker.Disconnected(client)
	s.emitter.Evaluate()
}
