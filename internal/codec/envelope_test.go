package codec

import (
	"bytes"
	"io"
	"testing"

	"crosskvm/internal/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	machineId := types.NewMachineId()
	cases := []any{
		types.Hello{
			Version:   types.CurrentProtocolVersion,
			MachineId: machineId,
			Name:      "desk-left",
			Screen:    types.Screen{Name: "DP-1", Width: 1920, Height: 1080},
		},
		types.Welcome{
			Version:   types.CurrentProtocolVersion,
			MachineId: machineId,
			Name:      "desk-right",
			Screen:    types.Screen{Name: "HDMI-1", Width: 2560, Height: 1440},
		},
		types.DeviceAnnounce{Device: types.DeviceInfo{
			DeviceId:     7,
			Kind:         types.DeviceMouse,
			Name:         "Logitech MX",
			Capabilities: []types.DeviceCapability{types.CapRelativeMouse, types.CapScroll},
			VendorId:     0x046d,
			ProductId:    0x4082,
		}},
		types.DeviceGone{DeviceId: 7},
		types.ScreenUpdate{Screen: types.Screen{Name: "DP-1", Width: 3840, Height: 2160}},
		types.Enter{Edge: types.Right, Position: 512},
		types.EnterAck{StreamId: 99},
		types.Leave{Edge: types.Left, Position: 12},
		types.Ping{Seq: 42},
		types.Pong{Seq: 42},
		types.Bye{Reason: "shutting down"},
		types.EventBatch{
			DeviceId:    3,
			TimestampUs: 123456789,
			Events: []types.InputEvent{
				types.KeyDownEvent(types.KeyA),
				types.KeyUpEvent(types.KeyA),
				types.UnknownKeyDownEvent(0xffee),
				types.PointerRelEvent(-3, 7),
				types.PointerAbsEvent(100, 200),
				types.ButtonEvent(types.ButtonLeft, true),
				types.WheelEvent(types.WheelVertical, -1),
				types.SyncEvent(),
			},
		},
		types.ClipboardOffer{Formats: []types.ClipboardFormat{types.ClipboardPlainText, types.ClipboardHTML}, SizeHint: 1024},
		types.ClipboardRequest{Format: types.ClipboardPNG},
		types.ClipboardData{Format: types.ClipboardPlainText, Data: []byte("hello, clipboard")},
	}

	for _, original := range cases {
		payload, err := Encode(original)
		if err != nil {
			t.Fatalf("Encode(%T) failed: %v", original, err)
		}
		kind, decoded, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode(%T) failed: %v", original, err)
		}
		if decoded != nil && !deepEqualMessage(original, decoded) {
			t.Errorf("round trip mismatch for %T:\n got  %#v\n want %#v", original, decoded, original)
		}
		_ = kind
	}
}

// deepEqualMessage avoids importing reflect's DeepEqual subtleties around
// nil vs empty slices by normalising both sides through re-encoding.
func deepEqualMessage(a, b any) bool {
	ea, err := Encode(a)
	if err != nil {
		return false
	}
	eb, err := Encode(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

func TestWriteReadMessage(t *testing.T) {
	var buf bytes.Buffer
	msg := types.Ping{Seq: 7}
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	kind, decoded, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if kind != types.MsgPing {
		t.Errorf("expected MsgPing, got %v", kind)
	}
	got, ok := decoded.(types.Ping)
	if !ok || got.Seq != 7 {
		t.Errorf("expected Ping{Seq:7}, got %#v", decoded)
	}
}

func TestReadFrameTruncatedHeader(t *testing.T) {
	r := bytes.NewReader([]byte{0x00, 0x00})
	_, err := ReadFrame(r)
	if err == nil {
		t.Fatal("expected error on truncated header, got nil")
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x10}) // declares 16 bytes
	buf.Write([]byte{0x01, 0x02, 0x03})       // only 3 supplied
	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected error on truncated payload, got nil")
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	r := bytes.NewReader(nil)
	_, err := ReadFrame(r)
	if err != io.EOF {
		t.Errorf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReadFrameOversize(t *testing.T) {
	var header [4]byte
	header[0] = 0xff // declares a length far beyond MaxPayloadSize
	r := bytes.NewReader(header[:])
	_, err := ReadFrame(r)
	if err == nil {
		t.Fatal("expected oversize error, got nil")
	}
	var tooLarge *ErrFrameTooLarge
	if !isFrameTooLarge(err, &tooLarge) {
		t.Errorf("expected *ErrFrameTooLarge, got %T: %v", err, err)
	}
}

func isFrameTooLarge(err error, target **ErrFrameTooLarge) bool {
	if e, ok := err.(*ErrFrameTooLarge); ok {
		*target = e
		return true
	}
	return false
}

func TestDecodeUnknownKind(t *testing.T) {
	_, _, err := Decode([]byte{0xff})
	if err == nil {
		t.Fatal("expected error decoding unknown message kind, got nil")
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	_, _, err := Decode(nil)
	if err == nil {
		t.Fatal("expected error decoding empty payload, got nil")
	}
}
