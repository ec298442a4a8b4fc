package uds

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/subscription"
)

// Service is the User Data Service handler. Its control point accepts consent requests.
type Service struct {
	svc          *gatt.Service
	controlPoint *gatt.Characteristic
	consent      *Consent
	tracker      *subscription.Tracker
	logger       *logrus.Logger
}

// NewService builds the service over a consent checker.
func NewService(consent *Consent, tracker *subscription.Tracker, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Service{
		svc:     gatt.NewService(ServiceUUID, "User Data Service"),
		consent: consent,
		tracker: tracker,
		logger:  logger,
	}
	s.controlPoint = s.svc.AddCharacteristic(ControlPointUUID, gatt.PropWrite|gatt.PropIndicate, gatt.PermPlain)
	return s
}

// Service implements gatt.ServiceHandler.
func (s *Service) Service() *gatt.Service { return s.svc }

// ControlPoint returns the User Control Point characteristic.
func (s *Service) ControlPoint() *gatt.Characteristic { return s.controlPoint }

func (s *Service) WriteCharacteristic(client gatt.ClientID, char *gatt.Characteristic, value []byte) error {
	if char != s.controlPoint {
		return gatt.Errorf(gatt.KindUnsupported, "characteristic %s is not writable", char.UUID)
	}

	err := s.consent.Check(value)
	entry := s.logger.WithFields(logrus.Fields{
		"client": client,
		"status": gatt.StatusOf(err),
	})
	if err != nil {
		entry.WithField("error", err).Info("Consent refused")
		return err
	}
	entry.Info("Consent granted")
	return nil
}

func (s *Service) NotificationsEnabled(client gatt.ClientID, char *gatt.Characteristic) {
	if char == s.controlPoint {
		s.tracker.Subscribe(char, client)
		s.logger.WithField("client", client).Debug("UDS indications enabled")
	}
}

func (s *Service) NotificationsDisabled(client gatt.ClientID, char *gatt.Characteristic) {
	if char == s.controlPoint {
		s.tracker.Unsubscribe(char, client)
		s.logger.WithField("client", client).Debug("UDS indications disabled")
	}
}

func (s *Service) Subscribed(client gatt.ClientID, char *gatt.Characteristic) bool {
	return s.tracker.IsMember(char, client)
}

func (s *Service) ClientConnected(gatt.ClientID) {}

func (s *Service) ClientDisconnected(client gatt.ClientID) {
	s.tracker.Disconnected(client)
}
