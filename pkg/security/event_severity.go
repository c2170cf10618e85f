package security

// Severity represents the severity level of a security event.
// It is derived from the EventType, never supplied by the caller.
type Severity string

const (
	SeverityINFO     Severity = "INFO"
	SeverityMEDIUM   Severity = "MEDIUM"
	SeverityWARN     Severity = "WARN"
	SeverityHIGH     Severity = "HIGH"
	SeverityCRITICAL Severity = "CRITICAL"
)

// EventSeverityMap defines the hard-coded severity for each event type
var EventSeverityMap = map[EventType]Severity{
	// INFO - Normal operations
	EventContactDelivered: SeverityINFO,

	// MEDIUM - Expected noise from real users
	EventValidationFailed: SeverityMEDIUM,

	// WARN - Likely automated or hostile, monitor
	EventRateLimitTriggered: SeverityWARN,
	EventHoneypotTriggered:  SeverityWARN,
	EventOriginRejected:     SeverityWARN,
	EventCSRFFailed:         SeverityWARN,

	// HIGH - Active threats or lost functionality
	EventSuspiciousInput:    SeverityHIGH,
	EventDeliveryFailed:     SeverityHIGH,
	EventRateLimitStoreDown: SeverityHIGH,
}

// GetSeverity returns the severity for an event type
// If the event type is not mapped, defaults to MEDIUM
func GetSeverity(eventType EventType) Severity {
	if severity, ok := EventSeverityMap[eventType]; ok {
		return severity
	}
	return SeverityMEDIUM
}

// IsHighOrAbove returns true if the event is HIGH or CRITICAL severity
func IsHighOrAbove(eventType EventType) bool {
	severity := GetSeverity(eventType)
	return severity == SeverityHIGH || severity == SeverityCRITICAL
}
