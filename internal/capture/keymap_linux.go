//go:build linux

package capture

import "crosskvm/internal/types"

// evdevKeyTable maps linux/input-event-codes.h KEY_* values to the
// canonical keymap (internal/types.KeyCode), which itself follows the
// evdev numbering for named keys (spec.md §9 "Canonical keymap").
var evdevKeyTable = map[uint16]types.KeyCode{
	30: types.KeyA, 48: types.KeyB, 46: types.KeyC, 32: types.KeyD,
	18: types.KeyE, 33: types.KeyF, 34: types.KeyG, 35: types.KeyH,
	23: types.KeyI, 36: types.KeyJ, 37: types.KeyK, 38: types.KeyL,
	50: types.KeyM, 49: types.KeyN, 24: types.KeyO, 25: types.KeyP,
	16: types.KeyQ, 19: types.KeyR, 31: types.KeyS, 20: types.KeyT,
	22: types.KeyU, 47: types.KeyV, 17: types.KeyW, 45: types.KeyX,
	21: types.KeyY, 44: types.KeyZ,

	11: types.KeyDigit0, 2: types.KeyDigit1, 3: types.KeyDigit2, 4: types.KeyDigit3,
	5: types.KeyDigit4, 6: types.KeyDigit5, 7: types.KeyDigit6, 8: types.KeyDigit7,
	9: types.KeyDigit8, 10: types.KeyDigit9,

	59: types.KeyF1, 60: types.KeyF2, 61: types.KeyF3, 62: types.KeyF4,
	63: types.KeyF5, 64: types.KeyF6, 65: types.KeyF7, 66: types.KeyF8,
	67: types.KeyF9, 68: types.KeyF10, 87: types.KeyF11, 88: types.KeyF12,

	42: types.KeyLeftShift, 54: types.KeyRightShift,
	29: types.KeyLeftCtrl, 97: types.KeyRightCtrl,
	56: types.KeyLeftAlt, 100: types.KeyRightAlt,
	125: types.KeyLeftMeta, 126: types.KeyRightMeta,

	28: types.KeyEnter, 1: types.KeyEscape, 14: types.KeyBackspace,
	15: types.KeyTab, 57: types.KeySpace, 58: types.KeyCapsLock,
	99: types.KeyPrintScreen, 70: types.KeyScrollLock, 119: types.KeyPause,
	110: types.KeyInsert, 111: types.KeyDelete, 102: types.KeyHome,
	107: types.KeyEnd, 104: types.KeyPageUp, 109: types.KeyPageDown,
	103: types.KeyArrowUp, 108: types.KeyArrowDown,
	105: types.KeyArrowLeft, 106: types.KeyArrowRight,

	12: types.KeyMinus, 13: types.KeyEqual,
	26: types.KeyBracketLeft, 27: types.KeyBracketRight,
	43: types.KeyBackslash, 39: types.KeySemicolon,
	40: types.KeyQuote, 41: types.KeyBackquote,
	51: types.KeyComma, 52: types.KeyPeriod, 53: types.KeySlash,

	69: types.KeyNumLock, 98: types.KeyNumpadDivide, 55: types.KeyNumpadMultiply,
	74: types.KeyNumpadSubtract, 78: types.KeyNumpadAdd, 96: types.KeyNumpadEnter,
	82: types.KeyNumpad0, 79: types.KeyNumpad1, 80: types.KeyNumpad2, 81: types.KeyNumpad3,
	75: types.KeyNumpad4, 76: types.KeyNumpad5, 77: types.KeyNumpad6,
	71: types.KeyNumpad7, 72: types.KeyNumpad8, 73: types.KeyNumpad9,
	83: types.KeyNumpadDecimal,

	113: types.KeyMute, 115: types.KeyVolumeUp, 114: types.KeyVolumeDown,
}
