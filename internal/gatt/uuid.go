package gatt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUID is an attribute type in normalized form: lowercase hex without dashes.
// UUIDs built on the Bluetooth SIG base are reduced to their 16-bit short form ("2a37").
type UUID string

const sigBaseSuffix = "00001000800000805f9b34fb"

// Well-known descriptor UUIDs.
const (
	ClientConfigUUID UUID = "2902"
)

// UUID16 returns the normalized UUID of a 16-bit SIG-assigned number.
func UUID16(v uint16) UUID {
	return UUID(fmt.Sprintf("%04x", v))
}

// NormalizeUUID converts a UUID string to normalized form.
// Accepts "0x2902", "2902", "0000180d-0000-1000-8000-00805f9b34fb", braced and urn forms.
// Returns "" when the input is not a valid UUID.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")

	if len(s) == 4 || len(s) == 8 {
		if !isHex(s) {
			return ""
		}
		if len(s) == 8 && strings.HasPrefix(s, "0000") {
			return s[4:]
		}
		return s
	}

	parsed, err := uuid.Parse(s)
	if err != nil {
		return ""
	}

	hex := strings.ReplaceAll(parsed.String(), "-", "")
	if strings.HasPrefix(hex, "0000") && strings.HasSuffix(hex, sigBaseSuffix) {
		return hex[4:8]
	}
	return hex
}

// ParseUUID parses and normalizes s.
func ParseUUID(s string) (UUID, error) {
	n := NormalizeUUID(s)
	if n == "" {
		return "", fmt.Errorf("invalid UUID %q", s)
	}
	return UUID(n), nil
}

// MustParseUUID is like ParseUUID but panics on invalid input. Intended for constants.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Full returns the canonical dashed 128-bit form of u.
func (u UUID) Full() string {
	hex := string(u)
	switch len(hex) {
	case 4:
		hex = "0000" + hex + sigBaseSuffix
	case 8:
		hex = hex + sigBaseSuffix
	}
	parsed, err := uuid.Parse(hex)
	if err != nil {
		return string(u)
	}
	return parsed.String()
}

// String returns the short form with the 0x prefix for 16-bit UUIDs.
func (u UUID) String() string {
	if len(u) == 4 {
		return "0x" + strings.ToUpper(string(u))
	}
	return string(u)
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
