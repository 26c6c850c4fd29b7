//go:build !linux

package emulation

import (
	"fmt"

	"crosskvm/internal/types"
)

// StubEmulator is the non-Linux placeholder emulation backend, mirroring
// the teacher's inject_stub.go.
type StubEmulator struct{}

// NewUinputEmulator keeps the Linux backend's constructor name so callers
// can select a backend without their own build-tag switch.
func NewUinputEmulator() *StubEmulator { return &StubEmulator{} }

func (e *StubEmulator) EnsureDevice(info types.DeviceInfo) (types.VirtualDeviceId, error) {
	return 0, fmt.Errorf("input emulation not supported on this platform")
}

func (e *StubEmulator) Apply(batch types.EventBatch, screenW, screenH int32) error {
	return fmt.Errorf("input emulation not supported on this platform")
}

func (e *StubEmulator) ReleaseDevice(deviceId types.VirtualDeviceId) error { return nil }

func (e *StubEmulator) Close() error { return nil }
