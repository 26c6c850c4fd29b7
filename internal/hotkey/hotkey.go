// Package hotkey matches the configured release chord against captured
// key events (spec.md §4.7 "Release hotkey"). Unlike the teacher's
// internal/hotkey, which registers its own OS-level global hook per
// platform, this package never touches the OS: internal/capture already
// owns the one platform-specific key observation path, emitting canonical
// types.KeyCode values, and a second independent hook would both duplicate
// that work and risk seeing a different (native, pre-translation) keyset.
// Matching here is pure chord-state tracking over whatever capture reports.
package hotkey

import (
	"fmt"
	"strings"
	"sync"

	"crosskvm/internal/types"
)

// Matcher tracks which keys of a configured chord are currently held and
// reports when the full chord becomes pressed.
type Matcher struct {
	mu    sync.Mutex
	chord map[types.KeyCode]bool
	held  map[types.KeyCode]bool
}

// DefaultChord is Ctrl+Shift+Escape (§4.7).
var DefaultChord = []types.KeyCode{types.KeyLeftCtrl, types.KeyLeftShift, types.KeyEscape}

// New builds a Matcher for chord, a set of keys that must be held
// simultaneously.
func New(chord []types.KeyCode) *Matcher {
	m := &Matcher{
		chord: make(map[types.KeyCode]bool, len(chord)),
		held:  make(map[types.KeyCode]bool),
	}
	for _, k := range chord {
		m.chord[k] = true
	}
	return m
}

// Observe updates held-key state from a key event and reports whether this
// event completed the chord (i.e. every chord key is now held, and this
// event was the last one needed — so the match fires exactly once per
// press, not once per held tick).
func (m *Matcher) Observe(code types.KeyCode, pressed bool) (matched bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasComplete := m.isComplete()
	if pressed {
		m.held[code] = true
	} else {
		delete(m.held, code)
	}
	return !wasComplete && m.isComplete()
}

func (m *Matcher) isComplete() bool {
	if len(m.chord) == 0 {
		return false
	}
	for k := range m.chord {
		if !m.held[k] {
			return false
		}
	}
	return true
}

// byName resolves the subset of canonical key names a release chord is
// realistically built from. It deliberately covers only modifiers,
// Escape, letters, and digits rather than the full KeyCode space.
var byName = map[string]types.KeyCode{
	"CTRL": types.KeyLeftCtrl, "LEFTCTRL": types.KeyLeftCtrl, "RIGHTCTRL": types.KeyRightCtrl,
	"SHIFT": types.KeyLeftShift, "LEFTSHIFT": types.KeyLeftShift, "RIGHTSHIFT": types.KeyRightShift,
	"ALT": types.KeyLeftAlt, "LEFTALT": types.KeyLeftAlt, "RIGHTALT": types.KeyRightAlt,
	"META": types.KeyLeftMeta, "WIN": types.KeyLeftMeta, "CMD": types.KeyLeftMeta,
	"ESC": types.KeyEscape, "ESCAPE": types.KeyEscape,
}

func init() {
	for i := 0; i < 26; i++ {
		byName[string(rune('A'+i))] = types.KeyA + types.KeyCode(i)
	}
	for i := 0; i < 10; i++ {
		byName[string(rune('0'+i))] = types.KeyDigit0 + types.KeyCode(i)
	}
}

// ParseChord parses a "Ctrl+Shift+Escape"-style string into a KeyCode
// chord, mirroring the teacher's "+"-separated hotkey string format
// (internal/hotkey.Manager.Register) but resolved against the canonical
// keymap rather than matched as free-form strings.
func ParseChord(s string) ([]types.KeyCode, error) {
	parts := strings.Split(s, "+")
	chord := make([]types.KeyCode, 0, len(parts))
	for _, p := range parts {
		name := strings.ToUpper(strings.TrimSpace(p))
		code, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("hotkey: unrecognised key name %q", p)
		}
		chord = append(chord, code)
	}
	return chord, nil
}
