package client

import (
	"errors"
	"strings"
	"testing"
)

func TestConnectionErrorFormat(t *testing.T) {
	err := NewTransportError("failed to connect", nil)
	if err.Kind != TransportKind {
		t.Errorf("Kind = %v, want %v", err.Kind, TransportKind)
	}
	if !strings.Contains(err.Error(), "failed to connect") {
		t.Errorf("Error() = %q, want it to contain the message", err.Error())
	}
}

func TestConnectionErrorWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransportError("failed to connect", cause)

	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, want it to mention the cause", err.Error())
	}
	if !errors.Is(err, cause) && errors.Unwrap(err) != cause {
		t.Error("Unwrap() should expose the cause for errors.Is/errors.As")
	}
}

func TestFormatErrorDebugMode(t *testing.T) {
	err := NewServerError(-1012, "CAS_ER_NO_MORE_DATA")

	concise := err.FormatError(false)
	if concise != err.Error() {
		t.Errorf("FormatError(false) = %q, want %q", concise, err.Error())
	}

	debug := err.FormatError(true)
	if !strings.Contains(debug, "serverCode") || !strings.Contains(debug, "-1012") {
		t.Errorf("FormatError(true) = %q, want it to include serverCode", debug)
	}
}

func TestErrorConstructorsSetKind(t *testing.T) {
	tests := []struct {
		name string
		err  *ConnectionError
		want Kind
	}{
		{"transport", NewTransportError("x", nil), TransportKind},
		{"protocol", NewProtocolError("x", nil), ProtocolKind},
		{"server", NewServerError(-1, "x"), ServerKind},
		{"state", NewStateError("x"), StateKind},
		{"validation", NewValidationError("x"), ValidationKind},
		{"timeout", NewTimeoutError("x"), TimeoutKind},
		{"not implemented", NewNotImplementedError("x"), NotImplementedKind},
		{"busy", NewBusyError("x"), BusyKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.want)
			}
			if !IsKind(tt.err, tt.want) {
				t.Errorf("IsKind(%v) = false, want true", tt.want)
			}
		})
	}
}

func TestIsKindRejectsOtherErrorTypes(t *testing.T) {
	if IsKind(errors.New("plain"), TransportKind) {
		t.Error("IsKind should return false for a non-ConnectionError")
	}
}
