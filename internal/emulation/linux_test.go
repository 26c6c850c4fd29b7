//go:build linux

package emulation

import (
	"testing"

	"crosskvm/internal/types"
)

func TestCanonicalToEvdevKeyCoversNamedKeys(t *testing.T) {
	if len(canonicalToEvdevKey) == 0 {
		t.Fatal("expected a non-empty canonical key table")
	}
	if _, ok := canonicalToEvdevKey[types.KeyA]; !ok {
		t.Error("expected KeyA to have an evdev mapping")
	}
}

func TestInvertKeyTableRoundTrip(t *testing.T) {
	for canonical, code := range canonicalToEvdevKey {
		if evdevKeyTableReverse[code] != canonical {
			t.Errorf("expected reverse table to map evdev code %d back to %v", code, canonical)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(-5, 0, 100); got != 0 {
		t.Errorf("expected clamp(-5, 0, 100) == 0, got %d", got)
	}
	if got := clamp(200, 0, 100); got != 100 {
		t.Errorf("expected clamp(200, 0, 100) == 100, got %d", got)
	}
	if got := clamp(50, 0, 100); got != 50 {
		t.Errorf("expected clamp(50, 0, 100) == 50, got %d", got)
	}
}
