package ghs

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/srg/ghsd/internal/ieee11073"
)

// ObservationSize is the encoded size of a numeric observation record.
const ObservationSize = 28

// observationLength is the declared length: every byte after the length field.
const observationLength = ObservationSize - 3

// Observation is one numeric measurement. It is created per emission and never stored.
type Observation struct {
	SensorType          uint32
	Timestamp           time.Time
	MeasurementDuration float32
	Unit                uint16
	Value               float32
}

// EncodeObservation encodes a numeric pulse-oximetry style observation with a percent unit.
func EncodeObservation(sensorType uint32, value, measurementDuration float32, now time.Time) []byte {
	return Observation{
		SensorType:          sensorType,
		Timestamp:           now,
		MeasurementDuration: measurementDuration,
		Unit:                MDCDimPercent,
		Value:               value,
	}.Encode()
}

// Encode returns the little-endian record:
//
//	kind u8 | length u16 | flags u16 | type u32 | time flags u8 | seconds u48 |
//	time source u8 | tz/dst u8 | duration FLOAT | unit u16 | value FLOAT
func (o Observation) Encode() []byte {
	b := make([]byte, 0, ObservationSize)
	b = append(b, RecordNumericObservation)
	b = binary.LittleEndian.AppendUint16(b, observationLength)
	b = binary.LittleEndian.AppendUint16(b, ObservationFlags)
	b = binary.LittleEndian.AppendUint32(b, o.SensorType)

	b = append(b, ElapsedTimeFlags)
	b = appendUint48(b, secondsSince2000(o.Timestamp))
	b = append(b, TimeSourceCellular, TimeZoneOffsetUTC)

	b = ieee11073.Append(b, float64(o.MeasurementDuration), FloatPrecision)
	b = binary.LittleEndian.AppendUint16(b, o.Unit)
	b = ieee11073.Append(b, float64(o.Value), FloatPrecision)
	return b
}

// DecodeObservation parses a record produced by Encode.
func DecodeObservation(b []byte) (Observation, error) {
	if len(b) != ObservationSize {
		return Observation{}, fmt.Errorf("observation must be %d bytes, got %d", ObservationSize, len(b))
	}
	if b[0] != RecordNumericObservation {
		return Observation{}, fmt.Errorf("unsupported record kind 0x%02X", b[0])
	}
	if l := binary.LittleEndian.Uint16(b[1:]); l != observationLength {
		return Observation{}, fmt.Errorf("declared length %d does not match record length %d", l, observationLength)
	}
	if f := binary.LittleEndian.Uint16(b[3:]); f != ObservationFlags {
		return Observation{}, fmt.Errorf("unsupported observation flags 0x%04X", f)
	}

	seconds := int64(readUint48(b[10:16]))
	return Observation{
		SensorType:          binary.LittleEndian.Uint32(b[5:]),
		Timestamp:           time.Unix(seconds+Epoch2000, 0).UTC(),
		MeasurementDuration: float32(ieee11073.Read(b[18:])),
		Unit:                binary.LittleEndian.Uint16(b[22:]),
		Value:               float32(ieee11073.Read(b[24:])),
	}, nil
}

func secondsSince2000(t time.Time) uint64 {
	s := t.Unix() - Epoch2000
	if s < 0 {
		return 0
	}
	return uint64(s)
}

func appendUint48(b []byte, v uint64) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40))
}

func readUint48(b []byte) uint64 {
	var v uint64
	for i := 5; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
