package hotkey

import (
	"testing"

	"crosskvm/internal/types"
)

func TestMatcherFiresOnceWhenChordCompletes(t *testing.T) {
	m := New(DefaultChord)

	if matched := m.Observe(types.KeyLeftCtrl, true); matched {
		t.Fatal("should not match with only one key held")
	}
	if matched := m.Observe(types.KeyLeftShift, true); matched {
		t.Fatal("should not match with two of three keys held")
	}
	if matched := m.Observe(types.KeyEscape, true); !matched {
		t.Fatal("expected chord to match on the third key")
	}
	// Still holding doesn't refire a held key's repeat.
	if matched := m.Observe(types.KeyEscape, true); matched {
		t.Fatal("should not refire while already complete")
	}
}

func TestMatcherResetsOnRelease(t *testing.T) {
	m := New(DefaultChord)
	m.Observe(types.KeyLeftCtrl, true)
	m.Observe(types.KeyLeftShift, true)
	m.Observe(types.KeyEscape, true)

	m.Observe(types.KeyEscape, false)
	if matched := m.Observe(types.KeyEscape, true); !matched {
		t.Fatal("expected chord to match again after release and re-press")
	}
}

func TestParseChord(t *testing.T) {
	chord, err := ParseChord("Ctrl+Shift+Escape")
	if err != nil {
		t.Fatalf("ParseChord: %v", err)
	}
	want := []types.KeyCode{types.KeyLeftCtrl, types.KeyLeftShift, types.KeyEscape}
	if len(chord) != len(want) {
		t.Fatalf("chord = %v, want %v", chord, want)
	}
	for i := range want {
		if chord[i] != want[i] {
			t.Fatalf("chord[%d] = %v, want %v", i, chord[i], want[i])
		}
	}
}

func TestParseChordUnknownKey(t *testing.T) {
	if _, err := ParseChord("Ctrl+Banana"); err == nil {
		t.Fatal("expected unrecognised key name to error")
	}
}
