package codec

import (
	"fmt"
	"io"

	"crosskvm/internal/types"
)

// Encode serialises msg into a self-describing envelope: a one-byte
// MessageKind tag followed by the type-specific body, matching the teacher's
// tagged-packet approach (internal/protocol/udp.go) generalised to a
// variable-length, stream-framed payload.
func Encode(msg any) ([]byte, error) {
	w := &writer{}
	switch m := msg.(type) {
	case types.Hello:
		w.u8(uint8(types.MsgHello))
		w.version(m.Version)
		w.machineId(m.MachineId)
		w.str(m.Name)
		w.screen(m.Screen)
	case types.Welcome:
		w.u8(uint8(types.MsgWelcome))
		w.version(m.Version)
		w.machineId(m.MachineId)
		w.str(m.Name)
		w.screen(m.Screen)
	case types.DeviceAnnounce:
		w.u8(uint8(types.MsgDeviceAnnounce))
		w.deviceInfo(m.Device)
	case types.DeviceGone:
		w.u8(uint8(types.MsgDeviceGone))
		w.u32(uint32(m.DeviceId))
	case types.ScreenUpdate:
		w.u8(uint8(types.MsgScreenUpdate))
		w.screen(m.Screen)
	case types.Enter:
		w.u8(uint8(types.MsgEnter))
		w.position(m.Edge)
		w.i32(m.Position)
	case types.EnterAck:
		w.u8(uint8(types.MsgEnterAck))
		w.u64(m.StreamId)
	case types.Leave:
		w.u8(uint8(types.MsgLeave))
		w.position(m.Edge)
		w.i32(m.Position)
	case types.Ping:
		w.u8(uint8(types.MsgPing))
		w.u32(m.Seq)
	case types.Pong:
		w.u8(uint8(types.MsgPong))
		w.u32(m.Seq)
	case types.Bye:
		w.u8(uint8(types.MsgBye))
		w.str(m.Reason)
	case types.EventBatch:
		w.u8(uint8(types.MsgEventBatch))
		w.eventBatch(m)
	case types.ClipboardOffer:
		w.u8(uint8(types.MsgClipboardOffer))
		w.u8(uint8(len(m.Formats)))
		for _, f := range m.Formats {
			w.u8(uint8(f))
		}
		w.u64(m.SizeHint)
	case types.ClipboardRequest:
		w.u8(uint8(types.MsgClipboardRequest))
		w.u8(uint8(m.Format))
	case types.ClipboardData:
		w.u8(uint8(types.MsgClipboardData))
		w.u8(uint8(m.Format))
		w.bytes(m.Data)
	default:
		return nil, fmt.Errorf("codec: encode: unsupported message type %T", msg)
	}
	return w.buf.Bytes(), nil
}

// Decode parses an envelope previously produced by Encode, returning the
// concrete message value (as `any`) and its MessageKind tag.
func Decode(payload []byte) (types.MessageKind, any, error) {
	if len(payload) == 0 {
		return 0, nil, fmt.Errorf("codec: decode: empty payload")
	}
	r := newReader(payload[1:])
	kind := types.MessageKind(payload[0])

	var msg any
	switch kind {
	case types.MsgHello:
		msg = types.Hello{Version: r.version(), MachineId: r.machineId(), Name: r.str(), Screen: r.screen()}
	case types.MsgWelcome:
		msg = types.Welcome{Version: r.version(), MachineId: r.machineId(), Name: r.str(), Screen: r.screen()}
	case types.MsgDeviceAnnounce:
		msg = types.DeviceAnnounce{Device: r.deviceInfo()}
	case types.MsgDeviceGone:
		msg = types.DeviceGone{DeviceId: types.DeviceId(r.u32())}
	case types.MsgScreenUpdate:
		msg = types.ScreenUpdate{Screen: r.screen()}
	case types.MsgEnter:
		msg = types.Enter{Edge: r.position(), Position: r.i32()}
	case types.MsgEnterAck:
		msg = types.EnterAck{StreamId: r.u64()}
	case types.MsgLeave:
		msg = types.Leave{Edge: r.position(), Position: r.i32()}
	case types.MsgPing:
		msg = types.Ping{Seq: r.u32()}
	case types.MsgPong:
		msg = types.Pong{Seq: r.u32()}
	case types.MsgBye:
		msg = types.Bye{Reason: r.str()}
	case types.MsgEventBatch:
		msg = r.eventBatch()
	case types.MsgClipboardOffer:
		count := r.u8()
		formats := make([]types.ClipboardFormat, 0, count)
		for i := uint8(0); i < count; i++ {
			formats = append(formats, types.ClipboardFormat(r.u8()))
		}
		msg = types.ClipboardOffer{Formats: formats, SizeHint: r.u64()}
	case types.MsgClipboardRequest:
		msg = types.ClipboardRequest{Format: types.ClipboardFormat(r.u8())}
	case types.MsgClipboardData:
		format := types.ClipboardFormat(r.u8())
		msg = types.ClipboardData{Format: format, Data: r.bytesField()}
	default:
		return kind, nil, fmt.Errorf("codec: decode: unknown message kind %d", kind)
	}

	if err := r.done(); err != nil {
		return kind, nil, err
	}
	return kind, msg, nil
}

// WriteMessage frames and writes msg to w in one step.
func WriteMessage(w io.Writer, msg any) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadMessage reads one frame from r and decodes it.
func ReadMessage(r io.Reader) (types.MessageKind, any, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return 0, nil, err
	}
	return Decode(payload)
}
