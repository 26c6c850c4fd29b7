package emulation

import (
	"sync"

	"crosskvm/internal/types"
)

// MockEmulator is a programmable emulation.Emulator for tests: it records
// every applied batch instead of touching the OS, so session-layer tests
// can assert what would have been synthesised.
type MockEmulator struct {
	mu      sync.Mutex
	nextVid types.VirtualDeviceId
	devices map[types.DeviceId]types.VirtualDeviceId

	Applied []types.EventBatch
}

func NewMockEmulator() *MockEmulator {
	return &MockEmulator{devices: make(map[types.DeviceId]types.VirtualDeviceId)}
}

func (e *MockEmulator) EnsureDevice(info types.DeviceInfo) (types.VirtualDeviceId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if vid, ok := e.devices[info.DeviceId]; ok {
		return vid, nil
	}
	e.nextVid++
	e.devices[info.DeviceId] = e.nextVid
	return e.nextVid, nil
}

func (e *MockEmulator) Apply(batch types.EventBatch, screenW, screenH int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Applied = append(e.Applied, batch)
	return nil
}

func (e *MockEmulator) ReleaseDevice(deviceId types.VirtualDeviceId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range e.devices {
		if v == deviceId {
			delete(e.devices, k)
		}
	}
	return nil
}

func (e *MockEmulator) Close() error { return nil }
