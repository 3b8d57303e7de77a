package platform

// wellKnownNames maps normalized 16-bit UUIDs of assigned services,
// characteristics and descriptors to their registered names. Trimmed to the
// entries a GATT client is likely to encounter during discovery.
var wellKnownNames = map[string]string{
	// services
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"1802": "Immediate Alert",
	"1803": "Link Loss",
	"1804": "Tx Power",
	"1805": "Current Time",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery",
	"1810": "Blood Pressure",
	"1812": "Human Interface Device",
	"1816": "Cycling Speed and Cadence",
	"1818": "Cycling Power",
	"1819": "Location and Navigation",
	"181a": "Environmental Sensing",
	"181c": "User Data",
	"181d": "Weight Scale",
	"1826": "Fitness Machine",
	"fe59": "Nordic Secure DFU",

	// characteristics
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a05": "Service Changed",
	"2a19": "Battery Level",
	"2a23": "System ID",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a27": "Hardware Revision String",
	"2a28": "Software Revision String",
	"2a29": "Manufacturer Name String",
	"2a2b": "Current Time",
	"2a37": "Heart Rate Measurement",
	"2a38": "Body Sensor Location",
	"2a4d": "Report",
	"2a6e": "Temperature",
	"2a6f": "Humidity",

	// descriptors
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Description",
	"2902": "Client Characteristic Configuration",
	"2903": "Server Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
	"2908": "Report Reference",
}

// KnownName returns the assigned name for a service, characteristic or
// descriptor UUID, or "" if the UUID is not a recognized assigned number.
// The UUID is normalized before lookup, so full SIG-base 128-bit forms match.
func KnownName(uuid string) string {
	return wellKnownNames[NormalizeUUID(uuid)]
}
