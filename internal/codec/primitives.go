package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"crosskvm/internal/types"
)

// writer accumulates an envelope payload. All multi-byte integers are
// written little-endian (the frame length prefix in frame.go stays
// big-endian).
type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) u16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); w.buf.Write(b[:]) }
func (w *writer) u32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); w.buf.Write(b[:]) }
func (w *writer) u64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); w.buf.Write(b[:]) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }
func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *writer) str(s string) {
	w.bytes([]byte(s))
}

func (w *writer) raw16(b [16]byte) { w.buf.Write(b[:]) }
func (w *writer) raw32(b [32]byte) { w.buf.Write(b[:]) }

func (w *writer) machineId(id types.MachineId) { w.raw16(id) }

func (w *writer) screen(s types.Screen) {
	w.str(s.Name)
	w.i32(s.Width)
	w.i32(s.Height)
}

func (w *writer) position(p types.Position) { w.u8(uint8(p)) }

func (w *writer) version(v types.ProtocolVersion) {
	w.u16(v.Major)
	w.u16(v.Minor)
}

func (w *writer) deviceInfo(d types.DeviceInfo) {
	w.u32(uint32(d.DeviceId))
	w.u8(uint8(d.Kind))
	w.str(d.Name)
	w.u8(uint8(len(d.Capabilities)))
	for _, c := range d.Capabilities {
		w.u8(uint8(c))
	}
	w.u16(d.VendorId)
	w.u16(d.ProductId)
}

func (w *writer) inputEvent(e types.InputEvent) {
	w.u8(uint8(e.Kind))
	switch e.Kind {
	case types.EventKeyDown, types.EventKeyUp:
		w.u16(uint16(e.Code))
		w.u32(e.RawCode)
	case types.EventPointerRel:
		w.i32(e.DX)
		w.i32(e.DY)
	case types.EventPointerAbs:
		w.i32(e.X)
		w.i32(e.Y)
	case types.EventButton:
		w.u16(uint16(e.Button))
		w.bool(e.Pressed)
	case types.EventWheel:
		w.u8(uint8(e.Axis))
		w.i32(e.WheelValue)
	case types.EventSync:
		// no payload
	}
}

func (w *writer) eventBatch(b types.EventBatch) {
	w.u32(uint32(b.DeviceId))
	w.u64(b.TimestampUs)
	w.u32(uint32(len(b.Events)))
	for _, e := range b.Events {
		w.inputEvent(e)
	}
}

// reader consumes an envelope payload sequentially, surfacing short reads
// as errors rather than returning partial/zero values silently (spec.md §8:
// codec round-trips must reject truncated input, never guess).
type reader struct {
	r   *bytes.Reader
	err error
}

func newReader(payload []byte) *reader {
	return &reader{r: bytes.NewReader(payload)}
}

func (r *reader) fail(context string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("codec: %s: %w", context, err)
	}
}

func (r *reader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail("read u8", io.ErrUnexpectedEOF)
		return 0
	}
	return b
}

func (r *reader) u16() uint16 {
	var b [2]byte
	r.readFull(b[:], "read u16")
	return binary.LittleEndian.Uint16(b[:])
}

func (r *reader) u32() uint32 {
	var b [4]byte
	r.readFull(b[:], "read u32")
	return binary.LittleEndian.Uint32(b[:])
}

func (r *reader) u64() uint64 {
	var b [8]byte
	r.readFull(b[:], "read u64")
	return binary.LittleEndian.Uint64(b[:])
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) boolean() bool { return r.u8() != 0 }

func (r *reader) readFull(b []byte, context string) {
	if r.err != nil {
		return
	}
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.fail(context, io.ErrUnexpectedEOF)
	}
}

func (r *reader) bytesField() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if int(n) > r.r.Len() {
		r.fail("read bytes field", io.ErrUnexpectedEOF)
		return nil
	}
	b := make([]byte, n)
	r.readFull(b, "read bytes field")
	return b
}

func (r *reader) str() string { return string(r.bytesField()) }

func (r *reader) raw16() [16]byte {
	var b [16]byte
	r.readFull(b[:], "read 16-byte field")
	return b
}

func (r *reader) raw32() [32]byte {
	var b [32]byte
	r.readFull(b[:], "read 32-byte field")
	return b
}

func (r *reader) machineId() types.MachineId { return types.MachineId(r.raw16()) }

func (r *reader) screen() types.Screen {
	name := r.str()
	width := r.i32()
	height := r.i32()
	return types.Screen{Name: name, Width: width, Height: height}
}

func (r *reader) position() types.Position { return types.Position(r.u8()) }

func (r *reader) version() types.ProtocolVersion {
	return types.ProtocolVersion{Major: r.u16(), Minor: r.u16()}
}

func (r *reader) deviceInfo() types.DeviceInfo {
	id := types.DeviceId(r.u32())
	kind := types.DeviceKind(r.u8())
	name := r.str()
	capCount := r.u8()
	caps := make([]types.DeviceCapability, 0, capCount)
	for i := uint8(0); i < capCount; i++ {
		caps = append(caps, types.DeviceCapability(r.u8()))
	}
	vendor := r.u16()
	product := r.u16()
	return types.DeviceInfo{
		DeviceId:     id,
		Kind:         kind,
		Name:         name,
		Capabilities: caps,
		VendorId:     vendor,
		ProductId:    product,
	}
}

func (r *reader) inputEvent() types.InputEvent {
	kind := types.EventKind(r.u8())
	e := types.InputEvent{Kind: kind}
	switch kind {
	case types.EventKeyDown, types.EventKeyUp:
		e.Code = types.KeyCode(r.u16())
		e.RawCode = r.u32()
	case types.EventPointerRel:
		e.DX = r.i32()
		e.DY = r.i32()
	case types.EventPointerAbs:
		e.X = r.i32()
		e.Y = r.i32()
	case types.EventButton:
		e.Button = types.MouseButton(r.u16())
		e.Pressed = r.boolean()
	case types.EventWheel:
		e.Axis = types.WheelAxis(r.u8())
		e.WheelValue = r.i32()
	case types.EventSync:
		// no payload
	default:
		r.fail("decode event", fmt.Errorf("unknown event kind %d", kind))
	}
	return e
}

func (r *reader) eventBatch() types.EventBatch {
	deviceId := types.DeviceId(r.u32())
	ts := r.u64()
	count := r.u32()
	if r.err != nil {
		return types.EventBatch{}
	}
	events := make([]types.InputEvent, 0, count)
	for i := uint32(0); i < count; i++ {
		events = append(events, r.inputEvent())
		if r.err != nil {
			break
		}
	}
	return types.EventBatch{DeviceId: deviceId, TimestampUs: ts, Events: events}
}

// done reports a trailing-bytes error if the payload was not fully consumed,
// which would otherwise hide a version skew between encoder and decoder.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.r.Len() != 0 {
		return fmt.Errorf("codec: %d trailing bytes after decode", r.r.Len())
	}
	return nil
}
