//go:build !linux

package capture

import (
	"context"
	"fmt"

	"crosskvm/internal/types"
)

// StubSource is the non-Linux placeholder capture backend, mirroring the
// teacher's trap_stub.go: it reports unsupported rather than silently
// doing nothing.
type StubSource struct{}

// NewEvdevSource keeps the same constructor name as the Linux backend so
// callers (internal/session, cmd/crosskvmd) can select a backend without
// a build-tag switch of their own.
func NewEvdevSource() *StubSource { return &StubSource{} }

func (s *StubSource) Start(ctx context.Context) (<-chan Event, error) {
	return nil, fmt.Errorf("input capture not supported on this platform")
}

func (s *StubSource) SetMode(deviceId types.DeviceId, mode Mode) error {
	return fmt.Errorf("input capture not supported on this platform")
}

func (s *StubSource) Close() error { return nil }
