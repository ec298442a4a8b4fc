package gatt

import "strings"

// Property is the characteristic properties bitmap as defined by the Core Specification.
type Property uint8

const (
	PropRead        Property = 0x02
	PropWriteNoResp Property = 0x04
	PropWrite       Property = 0x08
	PropNotify      Property = 0x10
	PropIndicate    Property = 0x20
)

// Has reports whether all bits of p2 are set in p.
func (p Property) Has(p2 Property) bool {
	return p&p2 == p2
}

// String returns a comma-separated list of property names, e.g. "read,notify".
func (p Property) String() string {
	var names []string
	for _, e := range []struct {
		prop Property
		name string
	}{
		{PropRead, "read"},
		{PropWriteNoResp, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
	} {
		if p.Has(e.prop) {
			names = append(names, e.name)
		}
	}
	return strings.Join(names, ",")
}

// Permission is the security level required to access an attribute.
type Permission uint8

const (
	PermPlain Permission = iota
	PermEncrypted
	// PermEncryptedMITM requires an encrypted link with an authenticated (MITM protected) key.
	PermEncryptedMITM
)

// Service is a primary service definition. It is immutable once registered.
type Service struct {
	UUID            UUID
	Name            string
	characteristics []*Characteristic
}

// Characteristic is a characteristic definition owned by a Service.
type Characteristic struct {
	UUID        UUID
	Properties  Property
	Permission  Permission
	service     *Service
	descriptors []*Descriptor
}

// Descriptor is a descriptor definition owned by a Characteristic.
type Descriptor struct {
	UUID           UUID
	Permission     Permission
	characteristic *Characteristic
}

// NewService creates an empty service definition.
func NewService(uuid UUID, name string) *Service {
	return &Service{UUID: uuid, Name: name}
}

// AddCharacteristic appends a characteristic to the service.
// Notifiable characteristics get a Client Characteristic Configuration descriptor.
func (s *Service) AddCharacteristic(uuid UUID, props Property, perm Permission) *Characteristic {
	c := &Characteristic{UUID: uuid, Properties: props, Permission: perm, service: s}
	s.characteristics = append(s.characteristics, c)
	if props.Has(PropNotify) || props.Has(PropIndicate) {
		c.AddDescriptor(ClientConfigUUID, PermPlain)
	}
	return c
}

// Characteristics returns the characteristics in declaration order.
func (s *Service) Characteristics() []*Characteristic {
	return s.characteristics
}

// Characteristic finds a characteristic by UUID, or nil.
func (s *Service) Characteristic(uuid UUID) *Characteristic {
	for _, c := range s.characteristics {
		if c.UUID == uuid {
			return c
		}
	}
	return nil
}

// AddDescriptor appends a descriptor to the characteristic.
func (c *Characteristic) AddDescriptor(uuid UUID, perm Permission) *Descriptor {
	d := &Descriptor{UUID: uuid, Permission: perm, characteristic: c}
	c.descriptors = append(c.descriptors, d)
	return d
}

// Service returns the owning service.
func (c *Characteristic) Service() *Service {
	return c.service
}

// Descriptors returns the descriptors in declaration order.
func (c *Characteristic) Descriptors() []*Descriptor {
	return c.descriptors
}

// Descriptor finds a descriptor by UUID, or nil.
func (c *Characteristic) Descriptor(uuid UUID) *Descriptor {
	for _, d := range c.descriptors {
		if d.UUID == uuid {
			return d
		}
	}
	return nil
}

// Notifiable reports whether the characteristic supports notifications or indications.
func (c *Characteristic) Notifiable() bool {
	return c.Properties.Has(PropNotify) || c.Properties.Has(PropIndicate)
}

// Characteristic returns the owning characteristic.
func (d *Descriptor) Characteristic() *Characteristic {
	return d.characteristic
}
