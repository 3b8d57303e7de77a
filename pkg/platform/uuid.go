package platform

import "strings"

const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the canonical internal form:
// lowercase with no dashes and no 0x prefix. Full 128-bit UUIDs in the
// Bluetooth SIG base range (0000xxxx-0000-1000-8000-00805f9b34fb) are reduced
// to their 16-bit short form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}
