//go:build linux

package capture

import (
	"testing"

	"crosskvm/internal/types"
)

func TestTranslateKeyEvent(t *testing.T) {
	evt := inputEvent{Type: evKey, Code: 30, Value: 1} // KEY_A down
	got, ok := translate(evt)
	if !ok {
		t.Fatal("expected translate to succeed for KEY_A down")
	}
	if got.Kind != types.EventKeyDown || got.Code != types.KeyA {
		t.Errorf("expected KeyDown(A), got %+v", got)
	}
}

func TestTranslateUnknownKeyPreservesRawCode(t *testing.T) {
	evt := inputEvent{Type: evKey, Code: 9999, Value: 1}
	got, ok := translate(evt)
	if !ok {
		t.Fatal("expected translate to succeed for an unknown key code")
	}
	if got.Code != types.KeyUnknown || got.RawCode != 9999 {
		t.Errorf("expected KeyUnknown with RawCode 9999, got %+v", got)
	}
}

func TestTranslateRelativeMotion(t *testing.T) {
	evt := inputEvent{Type: evRel, Code: relX, Value: 7}
	got, ok := translate(evt)
	if !ok || got.Kind != types.EventPointerRel || got.DX != 7 {
		t.Errorf("expected PointerRel{DX:7}, got %+v (ok=%v)", got, ok)
	}
}

func TestTranslateSyncReport(t *testing.T) {
	evt := inputEvent{Type: evSyn, Code: synReport}
	got, ok := translate(evt)
	if !ok || got.Kind != types.EventSync {
		t.Errorf("expected Sync event, got %+v (ok=%v)", got, ok)
	}
}

func TestEvdevButtonMapping(t *testing.T) {
	evt := inputEvent{Type: evKey, Code: btnLeft, Value: 1}
	got, ok := translate(evt)
	if !ok || got.Kind != types.EventButton || got.Button != types.ButtonLeft || !got.Pressed {
		t.Errorf("expected Button(Left, pressed), got %+v (ok=%v)", got, ok)
	}
}
