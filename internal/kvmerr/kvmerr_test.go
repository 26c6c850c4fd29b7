package kvmerr

import (
	"errors"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("read: connection reset")
	wrapped := &TransportError{Peer: "desk-right", Err: inner}

	if !errors.Is(wrapped, inner) {
		t.Errorf("expected errors.Is to find wrapped inner error")
	}

	var asTransport *TransportError
	if !errors.As(wrapped, &asTransport) {
		t.Errorf("expected errors.As to recover *TransportError")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []error{
		&TrustError{Peer: "desk-right", Reason: "fingerprint mismatch"},
		&VersionError{Peer: "desk-right", Ours: "0.1", Theirs: "2.0"},
		&ProtocolError{Peer: "desk-right", Err: errors.New("frame too large")},
		&TransportError{Peer: "desk-right", Err: errors.New("eof")},
		&DeviceError{DeviceName: "Logitech MX", Err: errors.New("grab failed")},
		&FatalSubsystemError{Subsystem: "capture", Err: errors.New("backend crashed")},
		&ConfigError{Reason: "topology symmetry violated for screen B"},
	}
	for _, err := range cases {
		if err.Error() == "" {
			t.Errorf("%T: expected non-empty message", err)
		}
	}
}
