package platform

import (
	"fmt"
	"strconv"
	"strings"
)

// Addr is a 48-bit Bluetooth device address in transmission order
// (most significant byte first).
type Addr [6]byte

// ParseAddr parses a colon- or dash-separated address such as
// "AA:BB:CC:DD:EE:FF". Parsing is case-insensitive.
func ParseAddr(s string) (Addr, error) {
	var a Addr

	norm := strings.ReplaceAll(s, "-", ":")
	parts := strings.Split(norm, ":")
	if len(parts) != 6 {
		return a, fmt.Errorf("invalid device address %q: expected 6 octets, got %d", s, len(parts))
	}

	for i, part := range parts {
		if len(part) != 2 {
			return a, fmt.Errorf("invalid device address %q: bad octet %q", s, part)
		}
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return a, fmt.Errorf("invalid device address %q: bad octet %q", s, part)
		}
		a[i] = byte(b)
	}
	return a, nil
}

// MustParseAddr is ParseAddr that panics on bad input. Intended for tests and
// compile-time-known addresses.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String formats the address in the canonical "AA:BB:CC:DD:EE:FF" form.
func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is all zeroes.
func (a Addr) IsZero() bool {
	return a == Addr{}
}
