package domain

// Gin context keys
const (
	KeyRequestID = "RequestID"
	KeySessionID = "SessionID"
)
