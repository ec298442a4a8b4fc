// Package ghs implements the Generic Health Sensor service: observation encoding,
// notification segmentation, schedule negotiation and the periodic emission lifecycle.
package ghs

import "github.com/srg/ghsd/internal/gatt"

// Attribute UUIDs of the Generic Health Sensor service.
var (
	ServiceUUID            = gatt.UUID16(0x7F44)
	FeaturesUUID           = gatt.UUID16(0x7F41)
	ScheduleDescriptorUUID = gatt.UUID16(0x7F35)
	ScheduleChangedUUID    = gatt.UUID16(0x7F3F)
	ObservationUUID        = gatt.UUID16(0x7F43)
)

// Nomenclature codes (ISO/IEEE 11073-10101).
const (
	MDCPulseOximSatO2 uint32 = 150456 // MDC_PULS_OXIM_SAT_O2
	MDCDimPercent     uint16 = 0x0220 // MDC_DIM_PER_CENT
)

// Observation record constants.
const (
	RecordNumericObservation byte = 0x00

	// Observation type, time stamp and measurement duration present.
	ObservationFlags uint16 = 0x0007

	// Elapsed time flags: tick counter is in seconds, UTC time base, current timeline.
	ElapsedTimeFlags byte = 0x22

	TimeSourceCellular byte = 0x06
	TimeZoneOffsetUTC  byte = 0x00

	// Epoch2000 is 2000-01-01T00:00:00Z in unix seconds.
	Epoch2000 int64 = 946684800

	// FloatPrecision is the number of decimals carried by encoded FLOAT fields.
	FloatPrecision = 1
)

// Schedule bounds, in seconds.
const (
	MinMeasurementDuration = 1.0
	MaxMeasurementDuration = 5.0
	MaxUpdateInterval      = 10.0
)

// ScheduleSize is the length of the schedule descriptor value.
const ScheduleSize = 12

// FeaturesValue returns the GHS Features characteristic value: no optional features,
// one supported observation type.
func FeaturesValue(sensorType uint32) []byte {
	b := []byte{0x00, 0x01}
	return append(b, byte(sensorType), byte(sensorType>>8), byte(sensorType>>16), byte(sensorType>>24))
}

// AdvertisingServiceData returns the service data advertised under the GHS service UUID:
// a list of one supported observation type followed by the device capabilities.
func AdvertisingServiceData(sensorType uint32) []byte {
	b := []byte{0x01}
	b = append(b, byte(sensorType), byte(sensorType>>8), byte(sensorType>>16), byte(sensorType>>24))
	return append(b, 0x01, 0x01)
}
