// Package ieee11073 implements the 32-bit FLOAT type defined by ISO/IEEE 11073-20601,
// the number format used by Bluetooth health profiles.
//
// A FLOAT packs a signed 24-bit mantissa and a signed 8-bit base-10 exponent into
// a single uint32 (exponent in the most significant byte).
package ieee11073

import (
	"encoding/binary"
	"math"
)

// Special FLOAT values (exponent 0, reserved mantissas).
const (
	NaN         uint32 = 0x007FFFFF
	NRes        uint32 = 0x00800000
	PositiveInf uint32 = 0x007FFFFE
	NegativeInf uint32 = 0x00800002
	Reserved    uint32 = 0x00800001
)

const (
	maxMantissa  = 0x007FFFFD
	minMantissa  = -0x007FFFFD
	minExponent  = -128
	mantissaMask = 0x00FFFFFF
)

// Size is the encoded size of a FLOAT in bytes.
const Size = 4

// Encode converts value into a FLOAT carrying precision decimal digits.
// If the scaled mantissa does not fit into 24 bits the precision is reduced until it does;
// values too large for any exponent encode as +INF/-INF.
func Encode(value float64, precision int) uint32 {
	switch {
	case math.IsNaN(value):
		return NaN
	case math.IsInf(value, 1):
		return PositiveInf
	case math.IsInf(value, -1):
		return NegativeInf
	}

	for exponent := -precision; exponent <= 127; exponent++ {
		if exponent < minExponent {
			continue
		}
		mantissa := math.Round(scale(value, -exponent))
		if mantissa >= minMantissa && mantissa <= maxMantissa {
			return uint32(uint8(int8(exponent)))<<24 | uint32(int32(mantissa))&mantissaMask
		}
	}

	if value > 0 {
		return PositiveInf
	}
	return NegativeInf
}

// Decode converts a raw FLOAT into a float64. Special values decode to NaN or ±Inf.
func Decode(raw uint32) float64 {
	switch raw {
	case NaN, NRes, Reserved:
		return math.NaN()
	case PositiveInf:
		return math.Inf(1)
	case NegativeInf:
		return math.Inf(-1)
	}

	mantissa := int32(raw<<8) >> 8
	exponent := int8(raw >> 24)
	return scale(float64(mantissa), int(exponent))
}

// Append appends the little-endian encoding of value to b.
func Append(b []byte, value float64, precision int) []byte {
	return binary.LittleEndian.AppendUint32(b, Encode(value, precision))
}

// Read decodes a little-endian FLOAT from the first four bytes of b.
func Read(b []byte) float64 {
	return Decode(binary.LittleEndian.Uint32(b))
}

// scale returns v * 10^exp. Negative exponents divide, which keeps one-decimal
// values such as 1.5 exact.
func scale(v float64, exp int) float64 {
	if exp < 0 {
		return v / math.Pow10(-exp)
	}
	return v * math.Pow10(exp)
}
