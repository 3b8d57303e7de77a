package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		bad   bool
	}{
		{"uppercase colons", "AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF", false},
		{"lowercase colons", "aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF", false},
		{"dash separated", "AA-BB-CC-DD-EE-FF", "AA:BB:CC:DD:EE:FF", false},
		{"mixed case", "aA:Bb:cC:Dd:Ee:fF", "AA:BB:CC:DD:EE:FF", false},
		{"all zero", "00:00:00:00:00:00", "00:00:00:00:00:00", false},
		{"too few octets", "AA:BB:CC:DD:EE", "", true},
		{"too many octets", "AA:BB:CC:DD:EE:FF:11", "", true},
		{"non-hex octet", "AA:BB:CC:DD:EE:GG", "", true},
		{"trailing non-hex in octet", "AA:BB:CC:DD:EE:1g", "", true},
		{"punctuation in octet", "AA:BB:CC:DD:EE:F!", "", true},
		{"hex prefix octet", "0x:BB:CC:DD:EE:FF", "", true},
		{"short octet", "A:BB:CC:DD:EE:FF", "", true},
		{"empty", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParseAddr(tc.input)
			if tc.bad {
				require.Error(t, err, "MUST reject %q", tc.input)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, a.String(),
				"MUST round-trip to the canonical form")
		})
	}
}

func TestAddrByteOrder(t *testing.T) {
	a := MustParseAddr("01:02:03:04:05:06")
	require.Equal(t, Addr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, a,
		"MUST store octets most significant byte first")
}

func TestAddrIsZero(t *testing.T) {
	require.True(t, Addr{}.IsZero())
	require.False(t, MustParseAddr("AA:BB:CC:DD:EE:FF").IsZero())
}

func TestMustParseAddrPanics(t *testing.T) {
	require.Panics(t, func() { MustParseAddr("nonsense") })
}
