package snmp

// Common Printer-MIB and Host-Resources-MIB OIDs used by the poller. The
// constants mirror RFC 3805 / RFC 2790 naming so callers avoid scattering
// raw dotted strings.
const (
	// SysDescr reports a human-readable system description string. It is
	// the canonical reachability probe: every SNMP agent answers it.
	SysDescr = "1.3.6.1.2.1.1.1.0"
	// SysName is the administratively assigned device name.
	SysName = "1.3.6.1.2.1.1.5.0"
	// HrDeviceDescr points at HOST-RESOURCES-MIB::hrDeviceDescr.1, the
	// usual printer model string.
	HrDeviceDescr = "1.3.6.1.2.1.25.3.2.1.3.1"

	// PrtGeneralSerialNumber (prtGeneralSerialNumber.1) is the canonical serial.
	PrtGeneralSerialNumber = "1.3.6.1.2.1.43.5.1.1.17.1"
	// PrtMarkerLifeCount targets prtMarkerLifeCount.1.1 and is commonly
	// treated as the lifetime page counter.
	PrtMarkerLifeCount = "1.3.6.1.2.1.43.10.2.1.4.1.1"

	// Supply table columns (Printer-MIB::prtMarkerSupplies), index 1.
	PrtMarkerSuppliesDesc   = "1.3.6.1.2.1.43.11.1.1.6.1"
	PrtMarkerSuppliesMaxCap = "1.3.6.1.2.1.43.11.1.1.8.1"
	PrtMarkerSuppliesLevel  = "1.3.6.1.2.1.43.11.1.1.9.1"

	// Alert table columns (Printer-MIB::prtAlert).
	PrtAlertSeverityLevel = "1.3.6.1.2.1.43.18.1.1.2"
	PrtAlertDescription   = "1.3.6.1.2.1.43.18.1.1.8"
)
