package types

// KeyCode is crosskvm's canonical, platform-independent key code space.
//
// The set of named keys is drawn from the Linux evdev key set, but the
// numeric values are crosskvm's own sequential assignment below (KeyA is 1,
// not evdev's KEY_A 30). The mapping is part of the wire protocol version
// (CurrentProtocolVersion in internal/types/message.go) so a future
// incompatible remap would need a version bump. Platform capture/emulation backends are
// responsible for translating native scancodes to and from this space
// (internal/capture, internal/emulation).
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota

	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ

	KeyDigit0
	KeyDigit1
	KeyDigit2
	KeyDigit3
	KeyDigit4
	KeyDigit5
	KeyDigit6
	KeyDigit7
	KeyDigit8
	KeyDigit9

	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12

	KeyLeftShift
	KeyRightShift
	KeyLeftCtrl
	KeyRightCtrl
	KeyLeftAlt
	KeyRightAlt
	KeyLeftMeta
	KeyRightMeta

	KeyEnter
	KeyEscape
	KeyBackspace
	KeyTab
	KeySpace
	KeyCapsLock
	KeyPrintScreen
	KeyScrollLock
	KeyPause
	KeyInsert
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyArrowUp
	KeyArrowDown
	KeyArrowLeft
	KeyArrowRight

	KeyMinus
	KeyEqual
	KeyBracketLeft
	KeyBracketRight
	KeyBackslash
	KeySemicolon
	KeyQuote
	KeyBackquote
	KeyComma
	KeyPeriod
	KeySlash

	KeyNumLock
	KeyNumpadDivide
	KeyNumpadMultiply
	KeyNumpadSubtract
	KeyNumpadAdd
	KeyNumpadEnter
	KeyNumpad0
	KeyNumpad1
	KeyNumpad2
	KeyNumpad3
	KeyNumpad4
	KeyNumpad5
	KeyNumpad6
	KeyNumpad7
	KeyNumpad8
	KeyNumpad9
	KeyNumpadDecimal

	KeyMute
	KeyVolumeUp
	KeyVolumeDown

	// keyCodeCount marks the first code value not assigned to a named key;
	// anything at or above it arrives as KeyUnknown with the platform raw
	// scancode preserved in InputEvent.RawCode.
	keyCodeCount
)

// IsNamed reports whether c is one of the canonical named keys above, as
// opposed to KeyUnknown.
func (c KeyCode) IsNamed() bool {
	return c > KeyUnknown && c < keyCodeCount
}

// MouseButton identifies a mouse button. Codes 0-4 are the standard five
// buttons; any higher value is an additional vendor button, numbered as
// reported by the capture backend.
type MouseButton uint16

const (
	ButtonLeft MouseButton = iota
	ButtonRight
	ButtonMiddle
	ButtonBack
	ButtonForward

	// buttonCount marks the first code not assigned to a standard button.
	buttonCount
)

// IsStandard reports whether b is one of the five standard buttons.
func (b MouseButton) IsStandard() bool {
	return b < buttonCount
}

// WheelAxis is the axis a Wheel event scrolled along.
type WheelAxis uint8

const (
	WheelVertical WheelAxis = iota
	WheelHorizontal
)
