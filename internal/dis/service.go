// Package dis implements a read-only Device Information Service.
package dis

import (
	"github.com/srg/ghsd/internal/gatt"
)

// Attribute UUIDs of the Device Information Service.
var (
	ServiceUUID          = gatt.UUID16(0x180A)
	ManufacturerNameUUID = gatt.UUID16(0x2A29)
	ModelNumberUUID      = gatt.UUID16(0x2A24)
	SerialNumberUUID     = gatt.UUID16(0x2A25)
	UDIUUID              = gatt.UUID16(0x7F3A)
)

// udiFlags marks the UDI label as the only field present.
const udiFlags byte = 0x01

// Info is the static identity reported by the service.
type Info struct {
	Manufacturer string
	Model        string
	Serial       string
	UDILabel     string
}

// Service serves constant device information. The UDI requires an authenticated link.
type Service struct {
	svc    *gatt.Service
	values map[*gatt.Characteristic][]byte
}

// NewService builds the service for info.
func NewService(info Info) *Service {
	s := &Service{
		svc:    gatt.NewService(ServiceUUID, "Device Information"),
		values: make(map[*gatt.Characteristic][]byte),
	}
	s.add(ManufacturerNameUUID, gatt.PermPlain, []byte(info.Manufacturer))
	s.add(ModelNumberUUID, gatt.PermPlain, []byte(info.Model))
	s.add(SerialNumberUUID, gatt.PermPlain, []byte(info.Serial))
	s.add(UDIUUID, gatt.PermEncryptedMITM, UDIValue(info.UDILabel))
	return s
}

func (s *Service) add(uuid gatt.UUID, perm gatt.Permission, value []byte) {
	c := s.svc.AddCharacteristic(uuid, gatt.PropRead, perm)
	s.values[c] = value
}

// UDIValue encodes the UDI characteristic: flags followed by the null-terminated label.
func UDIValue(label string) []byte {
	b := append([]byte{udiFlags}, label...)
	return append(b, 0x00)
}

// Service implements gatt.ServiceHandler.
func (s *Service) Service() *gatt.Service { return s.svc }

func (s *Service) ReadCharacteristic(_ gatt.ClientID, char *gatt.Characteristic) ([]byte, error) {
	v, ok := s.values[char]
	if !ok {
		return nil, gatt.Errorf(gatt.KindUnsupported, "characteristic %s is not readable", char.UUID)
	}
	return v, nil
}
