package capture

import (
	"context"
	"sync"

	"crosskvm/internal/types"
)

// MockSource is a programmable capture.Source for tests: Inject feeds
// events to whatever is currently reading Start's channel, and Modes
// records every SetMode call so a test can assert grab/release fan-out
// without a real input device.
type MockSource struct {
	mu     sync.Mutex
	events chan Event
	closed bool

	Modes map[types.DeviceId]Mode
}

// NewMockSource builds a MockSource ready for Start.
func NewMockSource() *MockSource {
	return &MockSource{
		events: make(chan Event, 64),
		Modes:  make(map[types.DeviceId]Mode),
	}
}

func (m *MockSource) Start(ctx context.Context) (<-chan Event, error) {
	go func() {
		<-ctx.Done()
		m.Close()
	}()
	return m.events, nil
}

// Inject delivers ev as though a real device produced it. Safe to call
// after Close; it then silently drops ev.
func (m *MockSource) Inject(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- ev
}

func (m *MockSource) SetMode(deviceId types.DeviceId, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Modes[deviceId] = mode
	return nil
}

func (m *MockSource) ModeOf(deviceId types.DeviceId) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Modes[deviceId]
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}
