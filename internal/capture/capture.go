// Package capture defines the platform-neutral input capture contract
// (spec.md §4.3): a source of (device_id, InputEvent) pairs in device
// order, switchable per device between Observe (events also still reach
// the local OS) and Grab (exclusive capture). Platform backends translate
// native scancodes to the canonical keymap (internal/types) before
// emission.
//
// Grounded on the teacher's internal/input package: an InputCapture
// interface plus a platform-stub split
// (internal/input/{types.go,trap_stub.go}), generalised from the
// teacher's single always-on trap to a per-device Grab/Observe mode
// switch and multi-device hot-plug lifecycle.
package capture

import (
	"context"

	"crosskvm/internal/types"
)

// Mode is the capture mode a device is currently in (§4.3).
type Mode uint8

const (
	// Observe: events are reported here AND continue to reach the local OS.
	Observe Mode = iota
	// Grab: events are reported here ONLY; the local OS sees nothing.
	Grab
)

// EventKind discriminates the variants of Event.
type EventKind uint8

const (
	EventDeviceAnnounce EventKind = iota
	EventDeviceGone
	EventInput
)

// Event is one item from a Source's event stream: either a device
// lifecycle notification or a captured input event in device order.
type Event struct {
	Kind     EventKind
	DeviceId types.DeviceId
	Device   types.DeviceInfo  // valid when Kind == EventDeviceAnnounce
	Input    types.InputEvent  // valid when Kind == EventInput
}

// Source is a platform input capture backend.
type Source interface {
	// Start begins enumeration and capture, emitting a DeviceAnnounce for
	// every currently-present device before any input event, and
	// continuing to emit DeviceAnnounce/DeviceGone as devices hot-plug.
	// The returned channel is closed when ctx is cancelled or Close is
	// called.
	Start(ctx context.Context) (<-chan Event, error)

	// SetMode switches deviceId between Observe and Grab. Grab/release
	// transitions are idempotent and safe to call repeatedly (§4.3).
	SetMode(deviceId types.DeviceId, mode Mode) error

	// Close releases all grabs and stops capture.
	Close() error
}
