// Package peripheral assembles the pulse oximeter peripheral: the GHS, UDS and DIS
// services behind one dispatcher, their subscription trackers, and the value source.
package peripheral

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/ghsd/internal/dis"
	"github.com/srg/ghsd/internal/eventloop"
	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/ghs"
	"github.com/srg/ghsd/internal/subscription"
	"github.com/srg/ghsd/internal/uds"
	"github.com/srg/ghsd/pkg/config"
)

// Option customizes a Server.
type Option func(*options)

type options struct {
	clock  func() time.Time
	source ghs.ValueSource
}

// WithClock overrides the observation timestamp clock.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithSource overrides the configured value source.
func WithSource(source ghs.ValueSource) Option {
	return func(o *options) { o.source = source }
}

// Server owns the services of the peripheral and the dispatcher in front of them.
type Server struct {
	registry   *gatt.Registry
	dispatcher *gatt.Dispatcher
	ghs        *ghs.Service
	uds        *uds.Service
	dis        *dis.Service
	feed       *ghs.Feed
	source     ghs.ValueSource
	ownSource  bool
	adv        gatt.Advertisement
	logger     *logrus.Logger
}

// New builds the peripheral from cfg. Services are registered in the order
// GHS, UDS, DIS, which is also the order connection events are delivered in.
func New(cfg *config.Config, platform gatt.Platform, scheduler eventloop.Scheduler,
	logger *logrus.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	source, ownSource := o.source, false
	if source == nil {
		var err error
		if source, err = newSource(cfg.Source, logger); err != nil {
			return nil, err
		}
		ownSource = true
	}

	feed, err := ghs.NewFeed(cfg.FeedSize)
	if err != nil {
		return nil, err
	}

	policy := cfg.Policy()
	s := &Server{
		registry:  gatt.NewRegistry(),
		feed:      feed,
		source:    source,
		ownSource: ownSource,
		logger:    logger,
	}

	s.ghs = ghs.NewService(ghs.Config{
		SensorType:      ghs.MDCPulseOximSatO2,
		InitialSchedule: cfg.InitialSchedule(),
		Source:          source,
		Feed:            feed,
		Clock:           o.clock,
	}, subscription.NewTracker(policy, platform, logger), platform, scheduler, logger)

	s.uds = uds.NewService(uds.NewConsent(cfg.RegisteredUsers),
		subscription.NewTracker(policy, platform, logger), logger)

	s.dis = dis.NewService(dis.Info{
		Manufacturer: cfg.Device.Manufacturer,
		Model:        cfg.Device.Model,
		Serial:       cfg.Device.Serial,
		UDILabel:     cfg.Device.UDILabel,
	})

	for _, h := range []gatt.ServiceHandler{s.ghs, s.uds, s.dis} {
		if err := s.registry.Register(h); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.dispatcher = gatt.NewDispatcher(s.registry, logger)

	s.adv = gatt.Advertisement{
		Name:         cfg.DeviceName,
		ServiceUUIDs: []gatt.UUID{ghs.ServiceUUID},
		ServiceData:  map[gatt.UUID][]byte{ghs.ServiceUUID: ghs.AdvertisingServiceData(ghs.MDCPulseOximSatO2)},
	}

	logger.WithFields(logrus.Fields{
		"device":   cfg.DeviceName,
		"policy":   policy,
		"schedule": s.ghs.Negotiator().Current(),
		"source":   cfg.Source.Kind,
	}).Info("Peripheral ready")
	return s, nil
}

func newSource(cfg config.SourceConfig, logger *logrus.Logger) (ghs.ValueSource, error) {
	switch cfg.Kind {
	case config.SourceLua:
		src, err := ghs.NewLuaSource(cfg.Script, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load lua value source: %w", err)
		}
		return src, nil
	default:
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return ghs.NewSimulatedSpO2(seed), nil
	}
}

// Dispatcher returns the entry point for platform events.
func (s *Server) Dispatcher() *gatt.Dispatcher { return s.dispatcher }

// Services returns the service definitions in registration order.
func (s *Server) Services() []*gatt.Service { return s.registry.Services() }

// GHS returns the Generic Health Sensor service.
func (s *Server) GHS() *ghs.Service { return s.ghs }

// UDS returns the User Data Service.
func (s *Server) UDS() *uds.Service { return s.uds }

// DIS returns the Device Information Service.
func (s *Server) DIS() *dis.Service { return s.dis }

// Feed returns the feed every emitted observation is published to.
func (s *Server) Feed() *ghs.Feed { return s.feed }

// Advertisement returns what the platform should advertise.
func (s *Server) Advertisement() gatt.Advertisement { return s.adv }

// Close stops emission and releases a value source built from the configuration.
// Must run on the event loop while the loop is still running.
func (s *Server) Close() {
	if s.ghs != nil {
		s.ghs.Emitter().Stop()
	}
	if c, ok := s.source.(interface{ Close() }); ok && s.ownSource {
		c.Close()
	}
}
