package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies a ConnectionError into one of the taxonomy buckets
// spec.md §7 names.
type Kind string

const (
	// TransportKind covers socket connect/read/write failures; terminal
	// for the session.
	TransportKind Kind = "TRANSPORT"
	// ProtocolKind covers a malformed frame, unexpected length, or a
	// response code inconsistent with its declared body.
	ProtocolKind Kind = "PROTOCOL"
	// ServerKind covers a negative response code returned by the
	// server; carries the numeric code and resolved message.
	ServerKind Kind = "SERVER"
	// StateKind covers an operation rejected because of session state
	// (connect-already-pending, no-active-query, etc.).
	StateKind Kind = "STATE"
	// ValidationKind covers caller-supplied input rejected before it
	// reaches the wire.
	ValidationKind Kind = "VALIDATION"
	// TimeoutKind covers an operation whose deadline was exceeded.
	TimeoutKind Kind = "TIMEOUT"
	// NotImplementedKind covers intentionally unimplemented surfaces.
	NotImplementedKind Kind = "NOT_IMPLEMENTED"
	// BusyKind covers an operation rejected outright because the
	// session's single-slot action queue already has an in-flight
	// query or connect.
	BusyKind Kind = "BUSY"
)

// ConnectionError is the single error type carried through the client's
// completion callbacks and error events. Kind selects which bucket of
// spec.md §7's taxonomy the failure belongs to; ServerCode is populated
// only for ServerKind.
type ConnectionError struct {
	Kind       Kind                   `json:"kind"`
	ServerCode int32                  `json:"serverCode,omitempty"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", e.Kind, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// FormatError renders the error for a log line or a user-facing message.
// debugMode=false returns the concise "KIND: message" form; debugMode=true
// adds the structured details, cause, and timestamp as JSON.
func (e *ConnectionError) FormatError(debugMode bool) string {
	if !debugMode {
		return e.Error()
	}

	data := map[string]interface{}{
		"kind":    e.Kind,
		"message": e.Message,
	}
	if e.ServerCode != 0 {
		data["serverCode"] = e.ServerCode
	}
	if len(e.Details) > 0 {
		data["details"] = e.Details
	}
	if e.Cause != nil {
		data["cause"] = e.Cause.Error()
	}
	if !e.Timestamp.IsZero() {
		data["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}
	b, _ := json.MarshalIndent(data, "", "  ")
	return string(b)
}

// Unwrap supports errors.Is / errors.As against the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewTransportError wraps a socket-level failure.
func NewTransportError(message string, cause error) *ConnectionError {
	return &ConnectionError{Kind: TransportKind, Message: message, Cause: cause, Timestamp: time.Now()}
}

// NewProtocolError wraps a framing or decoding failure.
func NewProtocolError(message string, cause error) *ConnectionError {
	return &ConnectionError{Kind: ProtocolKind, Message: message, Cause: cause, Timestamp: time.Now()}
}

// NewServerError wraps a negative response code from the broker.
func NewServerError(code int32, message string) *ConnectionError {
	return &ConnectionError{Kind: ServerKind, ServerCode: code, Message: message, Timestamp: time.Now()}
}

// NewStateError reports an operation rejected by the session's current
// state (not busy — a structurally illegal request, e.g. fetch with no
// active query).
func NewStateError(message string) *ConnectionError {
	return &ConnectionError{Kind: StateKind, Message: message, Timestamp: time.Now()}
}

// NewValidationError reports caller input rejected before it reaches the
// wire.
func NewValidationError(message string) *ConnectionError {
	return &ConnectionError{Kind: ValidationKind, Message: message, Timestamp: time.Now()}
}

// NewTimeoutError reports an operation whose deadline was exceeded.
func NewTimeoutError(message string) *ConnectionError {
	return &ConnectionError{Kind: TimeoutKind, Message: message, Timestamp: time.Now()}
}

// NewNotImplementedError reports an intentionally unimplemented surface.
func NewNotImplementedError(message string) *ConnectionError {
	return &ConnectionError{Kind: NotImplementedKind, Message: message, Timestamp: time.Now()}
}

// NewBusyError reports an operation rejected outright because the
// session's action queue already has an in-flight query or connect.
func NewBusyError(message string) *ConnectionError {
	return &ConnectionError{Kind: BusyKind, Message: message, Timestamp: time.Now()}
}

// IsKind reports whether err is a *ConnectionError of the given kind.
func IsKind(err error, kind Kind) bool {
	ce, ok := err.(*ConnectionError)
	return ok && ce.Kind == kind
}
