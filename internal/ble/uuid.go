package ble

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// bluetoothBaseSuffix completes 16- and 32-bit SIG-assigned UUIDs.
const bluetoothBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// CanonicalUUID returns the lower-case 128-bit form of a Bluetooth UUID.
// Short forms ("1818", "0x1818", "00001818") are expanded with the Bluetooth
// base UUID so advertised and registered UUIDs compare equal.
func CanonicalUUID(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")

	switch len(s) {
	case 4:
		s = "0000" + s + bluetoothBaseSuffix
	case 8:
		s = s + bluetoothBaseSuffix
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("ble: invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// MustCanonicalUUID is CanonicalUUID for compile-time constants.
func MustCanonicalUUID(s string) string {
	u, err := CanonicalUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// SameUUID reports whether a and b name the same UUID. Unparseable values
// fall back to a case-insensitive string comparison.
func SameUUID(a, b string) bool {
	ca, errA := CanonicalUUID(a)
	cb, errB := CanonicalUUID(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return ca == cb
}
