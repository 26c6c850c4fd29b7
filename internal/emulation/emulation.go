// Package emulation defines the platform-neutral input emulation contract
// (spec.md §4.4): synthesising received event batches against the local
// OS, with lazily-created virtual devices matching declared capabilities.
//
// Grounded on the teacher's internal/input.InputInjector interface
// (internal/input/types.go) plus its platform-stub split
// (internal/input/inject_stub.go), generalised from three fixed
// Inject*-style methods to the batch-apply/ensure-device contract §4.4
// specifies.
package emulation

import "crosskvm/internal/types"

// Emulator applies received input on the local OS.
type Emulator interface {
	// EnsureDevice lazily creates a virtual device matching info's
	// declared capabilities if one does not already exist for
	// info.DeviceId, returning the resulting virtual device id. A
	// virtual device persists until the session ends or ReleaseDevice
	// is called.
	EnsureDevice(info types.DeviceInfo) (types.VirtualDeviceId, error)

	// Apply synthesises batch's events in order against the OS.
	// Intra-batch order is always preserved; Sync events mark frame
	// boundaries and are applied atomically with everything before them
	// in the batch (§4.4). PointerAbs events are clamped to screenW x
	// screenH; PointerRel events pass through unmodified.
	Apply(batch types.EventBatch, screenW, screenH int32) error

	// ReleaseDevice destroys the virtual device previously created by
	// EnsureDevice for deviceId.
	ReleaseDevice(deviceId types.VirtualDeviceId) error

	// Close releases every virtual device and stops the emulator.
	Close() error
}
