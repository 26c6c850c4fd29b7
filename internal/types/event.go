package types

// EventKind discriminates the variants of InputEvent. It is also the tag
// byte the codec (internal/codec) writes on the wire for each event inside
// an EventBatch.
type EventKind uint8

const (
	EventKeyDown EventKind = iota
	EventKeyUp
	EventPointerRel
	EventPointerAbs
	EventButton
	EventWheel
	EventSync
)

// InputEvent is a platform-agnostic input event. It is a discriminated
// value: only the fields relevant to Kind are meaningful, following the
// teacher's own tagged-struct wire packets (internal/protocol/udp.go).
//
//	KeyDown{code}       Kind=EventKeyDown,   Code (+RawCode if Code==KeyUnknown)
//	KeyUp{code}         Kind=EventKeyUp,     Code (+RawCode if Code==KeyUnknown)
//	PointerRel{dx,dy}   Kind=EventPointerRel, DX, DY
//	PointerAbs{x,y}     Kind=EventPointerAbs, X, Y (absolute devices only)
//	Button{code,pressed} Kind=EventButton,   Button, Pressed
//	Wheel{axis,value}   Kind=EventWheel,     Axis, WheelValue
//	Sync                Kind=EventSync       (frame boundary, no payload)
type InputEvent struct {
	Kind EventKind

	Code    KeyCode
	RawCode uint32 // platform scancode when Code == KeyUnknown

	DX, DY int32 // PointerRel
	X, Y   int32 // PointerAbs

	Button  MouseButton
	Pressed bool

	Axis       WheelAxis
	WheelValue int32
}

// KeyDownEvent builds a canonical key-press event.
func KeyDownEvent(code KeyCode) InputEvent { return InputEvent{Kind: EventKeyDown, Code: code} }

// KeyUpEvent builds a canonical key-release event.
func KeyUpEvent(code KeyCode) InputEvent { return InputEvent{Kind: EventKeyUp, Code: code} }

// UnknownKeyDownEvent builds a key-press event for a code with no canonical
// mapping, preserving the raw platform scancode across the wire.
func UnknownKeyDownEvent(raw uint32) InputEvent {
	return InputEvent{Kind: EventKeyDown, Code: KeyUnknown, RawCode: raw}
}

// UnknownKeyUpEvent is the release counterpart of UnknownKeyDownEvent.
func UnknownKeyUpEvent(raw uint32) InputEvent {
	return InputEvent{Kind: EventKeyUp, Code: KeyUnknown, RawCode: raw}
}

// PointerRelEvent builds a relative pointer motion event.
func PointerRelEvent(dx, dy int32) InputEvent {
	return InputEvent{Kind: EventPointerRel, DX: dx, DY: dy}
}

// PointerAbsEvent builds an absolute pointer position event (absolute
// devices only, e.g. tablets).
func PointerAbsEvent(x, y int32) InputEvent {
	return InputEvent{Kind: EventPointerAbs, X: x, Y: y}
}

// ButtonEvent builds a mouse button press/release event.
func ButtonEvent(button MouseButton, pressed bool) InputEvent {
	return InputEvent{Kind: EventButton, Button: button, Pressed: pressed}
}

// WheelEvent builds a scroll wheel event.
func WheelEvent(axis WheelAxis, value int32) InputEvent {
	return InputEvent{Kind: EventWheel, Axis: axis, WheelValue: value}
}

// SyncEvent marks a frame boundary: everything before it in a batch must be
// applied atomically before the receiver is considered coherent (§4.4).
func SyncEvent() InputEvent { return InputEvent{Kind: EventSync} }

// IsMotion reports whether the event is pointer motion — the class of event
// dropped first under backpressure (§5) while key events are kept.
func (e InputEvent) IsMotion() bool {
	return e.Kind == EventPointerRel || e.Kind == EventPointerAbs
}

// DeviceId is an opaque identifier for a physical input device, unique
// within one session, and is the key used to route events (§3).
type DeviceId uint32

// VirtualDeviceId is an opaque identifier for a virtual device created by
// the emulation backend on the receiving machine (§4.4).
type VirtualDeviceId uint32

// DeviceKind classifies a physical input device.
type DeviceKind uint8

const (
	DeviceKeyboard DeviceKind = iota
	DeviceMouse
	DeviceTouchpad
	DeviceOther
)

// DeviceCapability describes one thing a device can produce.
type DeviceCapability uint8

const (
	CapKeyboard DeviceCapability = iota
	CapRelativeMouse
	CapAbsoluteMouse
	CapScroll
)

// DeviceInfo describes a physical input device announced over the control
// stream (§3, §6 DeviceAnnounce).
type DeviceInfo struct {
	DeviceId     DeviceId
	Kind         DeviceKind
	Name         string
	Capabilities []DeviceCapability
	VendorId     uint16
	ProductId    uint16
}

// EventBatch is a batch of events captured from one device at (approximately)
// one instant, as sent over an input stream (§3, §6 EventBatch).
//
// TimestampUs is the capture-side monotonic clock reading at the first event
// in the batch. It is informational only — §4.2/§9 are explicit that it must
// never be used to reorder or drop events.
type EventBatch struct {
	DeviceId    DeviceId
	TimestampUs uint64
	Events      []InputEvent
}
