package ieee11073

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		precision int
		want      uint32
	}{
		{name: "one with one decimal", value: 1.0, precision: 1, want: 0xFF00000A},
		{name: "fractional SpO2", value: 95.5, precision: 1, want: 0xFF0003BB},
		{name: "negative value", value: -1.5, precision: 1, want: 0xFFFFFFF1},
		{name: "zero precision", value: 42, precision: 0, want: 0x0000002A},
		{name: "rounds half away from zero", value: 96.25, precision: 1, want: 0xFF0003C3},
		{name: "reduces precision when mantissa overflows", value: 10_000_000, precision: 1, want: 0x010F4240},
		{name: "NaN", value: math.NaN(), precision: 1, want: NaN},
		{name: "positive infinity", value: math.Inf(1), precision: 1, want: PositiveInf},
		{name: "negative infinity", value: math.Inf(-1), precision: 1, want: NegativeInf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.value, tt.precision), "got 0x%08X", Encode(tt.value, tt.precision))
		})
	}
}

func TestDecode(t *testing.T) {
	assert.Equal(t, 1.0, Decode(0xFF00000A))
	assert.Equal(t, 95.5, Decode(0xFF0003BB))
	assert.Equal(t, -1.5, Decode(0xFFFFFFF1))
	assert.Equal(t, 1e7, Decode(0x010F4240))
	assert.True(t, math.IsNaN(Decode(NaN)))
	assert.True(t, math.IsNaN(Decode(NRes)))
	assert.True(t, math.IsInf(Decode(PositiveInf), 1))
	assert.True(t, math.IsInf(Decode(NegativeInf), -1))
}

func TestAppendRead(t *testing.T) {
	b := Append([]byte{0xAA}, 1.0, 1)
	require.Len(t, b, 1+Size)
	assert.Equal(t, []byte{0xAA, 0x0A, 0x00, 0x00, 0xFF}, b)
	assert.Equal(t, 1.0, Read(b[1:]))

	// GOAL: every one-decimal value in the schedule range survives a round trip exactly
	for v := 10; v <= 100; v++ {
		value := float64(v) / 10
		assert.Equal(t, value, Read(Append(nil, value, 1)), "value %v", value)
	}
}
