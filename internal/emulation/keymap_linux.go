//go:build linux

package emulation

import "crosskvm/internal/types"

// canonicalToEvdevKey is the reverse of internal/capture's evdev key
// table: canonical KeyCode -> linux/input-event-codes.h KEY_* value, used
// to synthesise key events via uinput.
var canonicalToEvdevKey = map[types.KeyCode]uint16{
	types.KeyA: 30, types.KeyB: 48, types.KeyC: 46, types.KeyD: 32,
	types.KeyE: 18, types.KeyF: 33, types.KeyG: 34, types.KeyH: 35,
	types.KeyI: 23, types.KeyJ: 36, types.KeyK: 37, types.KeyL: 38,
	types.KeyM: 50, types.KeyN: 49, types.KeyO: 24, types.KeyP: 25,
	types.KeyQ: 16, types.KeyR: 19, types.KeyS: 31, types.KeyT: 20,
	types.KeyU: 22, types.KeyV: 47, types.KeyW: 17, types.KeyX: 45,
	types.KeyY: 21, types.KeyZ: 44,

	types.KeyDigit0: 11, types.KeyDigit1: 2, types.KeyDigit2: 3, types.KeyDigit3: 4,
	types.KeyDigit4: 5, types.KeyDigit5: 6, types.KeyDigit6: 7, types.KeyDigit7: 8,
	types.KeyDigit8: 9, types.KeyDigit9: 10,

	types.KeyF1: 59, types.KeyF2: 60, types.KeyF3: 61, types.KeyF4: 62,
	types.KeyF5: 63, types.KeyF6: 64, types.KeyF7: 65, types.KeyF8: 66,
	types.KeyF9: 67, types.KeyF10: 68, types.KeyF11: 87, types.KeyF12: 88,

	types.KeyLeftShift: 42, types.KeyRightShift: 54,
	types.KeyLeftCtrl: 29, types.KeyRightCtrl: 97,
	types.KeyLeftAlt: 56, types.KeyRightAlt: 100,
	types.KeyLeftMeta: 125, types.KeyRightMeta: 126,

	types.KeyEnter: 28, types.KeyEscape: 1, types.KeyBackspace: 14,
	types.KeyTab: 15, types.KeySpace: 57, types.KeyCapsLock: 58,
	types.KeyPrintScreen: 99, types.KeyScrollLock: 70, types.KeyPause: 119,
	types.KeyInsert: 110, types.KeyDelete: 111, types.KeyHome: 102,
	types.KeyEnd: 107, types.KeyPageUp: 104, types.KeyPageDown: 109,
	types.KeyArrowUp: 103, types.KeyArrowDown: 108,
	types.KeyArrowLeft: 105, types.KeyArrowRight: 106,

	types.KeyMinus: 12, types.KeyEqual: 13,
	types.KeyBracketLeft: 26, types.KeyBracketRight: 27,
	types.KeyBackslash: 43, types.KeySemicolon: 39,
	types.KeyQuote: 40, types.KeyBackquote: 41,
	types.KeyComma: 51, types.KeyPeriod: 52, types.KeySlash: 53,

	types.KeyNumLock: 69, types.KeyNumpadDivide: 98, types.KeyNumpadMultiply: 55,
	types.KeyNumpadSubtract: 74, types.KeyNumpadAdd: 78, types.KeyNumpadEnter: 96,
	types.KeyNumpad0: 82, types.KeyNumpad1: 79, types.KeyNumpad2: 80, types.KeyNumpad3: 81,
	types.KeyNumpad4: 75, types.KeyNumpad5: 76, types.KeyNumpad6: 77,
	types.KeyNumpad7: 71, types.KeyNumpad8: 72, types.KeyNumpad9: 73,
	types.KeyNumpadDecimal: 83,

	types.KeyMute: 113, types.KeyVolumeUp: 115, types.KeyVolumeDown: 114,
}

// evdevKeyTableReverse is the set of KEY_* codes this emulator may
// synthesise, used to register UI_SET_KEYBIT capabilities on a new
// virtual device.
var evdevKeyTableReverse = invertKeyTable()

func invertKeyTable() map[uint16]types.KeyCode {
	out := make(map[uint16]types.KeyCode, len(canonicalToEvdevKey))
	for canonical, code := range canonicalToEvdevKey {
		out[code] = canonical
	}
	return out
}

// canonicalToEvdevButton maps canonical MouseButton values to
// linux/input-event-codes.h BTN_* values.
var canonicalToEvdevButton = map[types.MouseButton]uint16{
	types.ButtonLeft:    btnLeft,
	types.ButtonRight:   btnRight,
	types.ButtonMiddle:  btnMiddle,
	types.ButtonBack:    btnSide,
	types.ButtonForward: btnExtra,
}
