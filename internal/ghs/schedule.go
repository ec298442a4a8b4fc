package ghs

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/ieee11073"
)

// Schedule is the negotiated measurement and notification cadence, in seconds.
type Schedule struct {
	SensorType          uint32
	MeasurementDuration float32
	UpdateInterval      float32
}

// DefaultSchedule is the schedule in force until a client writes one.
func DefaultSchedule(sensorType uint32) Schedule {
	return Schedule{SensorType: sensorType, MeasurementDuration: 1.0, UpdateInterval: 1.0}
}

// Interval returns the update interval as a duration.
func (s Schedule) Interval() time.Duration {
	return time.Duration(float64(s.UpdateInterval) * float64(time.Second))
}

// Encode returns the 12-byte descriptor value: sensor type u32 | duration FLOAT | interval FLOAT.
func (s Schedule) Encode() []byte {
	b := make([]byte, 0, ScheduleSize)
	b = binary.LittleEndian.AppendUint32(b, s.SensorType)
	b = ieee11073.Append(b, float64(s.MeasurementDuration), FloatPrecision)
	return ieee11073.Append(b, float64(s.UpdateInterval), FloatPrecision)
}

func (s Schedule) String() string {
	return fmt.Sprintf("type=%d duration=%.1fs interval=%.1fs", s.SensorType, s.MeasurementDuration, s.UpdateInterval)
}

// DecodeSchedule parses and validates a schedule descriptor value for sensorType.
// Checks run in order: length, sensor type, duration in [1, 5], interval in [duration, 10].
// Every failure is an OutOfRange error.
func DecodeSchedule(b []byte, sensorType uint32) (Schedule, error) {
	if len(b) != ScheduleSize {
		return Schedule{}, gatt.Errorf(gatt.KindOutOfRange, "schedule must be %d bytes, got %d", ScheduleSize, len(b))
	}

	gotType := binary.LittleEndian.Uint32(b[0:4])
	if gotType != sensorType {
		return Schedule{}, gatt.Errorf(gatt.KindOutOfRange, "sensor type %d does not match %d", gotType, sensorType)
	}

	duration := ieee11073.Read(b[4:8])
	if !(duration >= MinMeasurementDuration && duration <= MaxMeasurementDuration) {
		return Schedule{}, gatt.Errorf(gatt.KindOutOfRange, "measurement duration %v outside [%v, %v]", duration, MinMeasurementDuration, MaxMeasurementDuration)
	}

	interval := ieee11073.Read(b[8:12])
	if !(interval >= duration && interval <= MaxUpdateInterval) {
		return Schedule{}, gatt.Errorf(gatt.KindOutOfRange, "update interval %v outside [%v, %v]", interval, duration, MaxUpdateInterval)
	}

	return Schedule{
		SensorType:          gotType,
		MeasurementDuration: float32(duration),
		UpdateInterval:      float32(interval),
	}, nil
}
