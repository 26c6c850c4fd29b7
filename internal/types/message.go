package types

import "strconv"

// ProtocolVersion gates wire compatibility (§4.2 step 3). It is also where
// the canonical keymap choice (internal/types/keycode.go) is pinned: a
// future remap of KeyCode values would need a minor-version bump at least.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// CurrentProtocolVersion is the version this build of crosskvm speaks.
var CurrentProtocolVersion = ProtocolVersion{Major: 0, Minor: 1}

func (v ProtocolVersion) String() string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor))
}

// MessageKind is the first byte of every envelope (§4.1).
type MessageKind uint8

const (
	MsgHello MessageKind = iota
	MsgWelcome
	MsgDeviceAnnounce
	MsgDeviceGone
	MsgScreenUpdate
	MsgEnter
	MsgEnterAck
	MsgLeave
	MsgPing
	MsgPong
	MsgBye
	MsgEventBatch
	MsgClipboardOffer
	MsgClipboardRequest
	MsgClipboardData
)

// Hello is the initiator's first message on the control stream (§4.2 step 1).
type Hello struct {
	Version   ProtocolVersion
	MachineId MachineId
	Name      string
	Screen    Screen
}

// Welcome is the responder's reply to Hello (§4.2 step 4).
type Welcome struct {
	Version   ProtocolVersion
	MachineId MachineId
	Name      string
	Screen    Screen
}

// DeviceAnnounce introduces a physical input device to the peer currently
// receiving its events (§3 Lifecycles, §6).
type DeviceAnnounce struct {
	Device DeviceInfo
}

// DeviceGone retracts a previously announced device (§3 Lifecycles).
type DeviceGone struct {
	DeviceId DeviceId
}

// ScreenUpdate announces a geometry change (hotplug/resolution change, §6).
type ScreenUpdate struct {
	Screen Screen
}

// Enter requests a handover to the receiving peer (§4.7).
type Enter struct {
	Edge     Position
	Position int32
}

// EnterAck confirms a handover was accepted and names the input stream the
// sender should expect events on (§4.2 step 6, §4.7).
type EnterAck struct {
	StreamId uint64
}

// Bye announces an orderly shutdown of the control stream (§4.2, §7).
type Bye struct {
	Reason string
}

// Leave returns control to the sender (§4.7).
type Leave struct {
	Edge     Position
	Position int32
}

// Ping is a keepalive probe (§4.2).
type Ping struct {
	Seq uint32
}

// Pong answers a Ping with the same sequence number.
type Pong struct {
	Seq uint32
}

// ClipboardFormat names a clipboard content encoding.
type ClipboardFormat uint8

const (
	ClipboardPlainText ClipboardFormat = iota
	ClipboardHTML
	ClipboardPNG
)

func (f ClipboardFormat) String() string {
	switch f {
	case ClipboardPlainText:
		return "PlainText"
	case ClipboardHTML:
		return "HTML"
	case ClipboardPNG:
		return "PNG"
	default:
		return "ClipboardFormat(?)"
	}
}

// ClipboardOffer advertises available clipboard content (§6).
type ClipboardOffer struct {
	Formats  []ClipboardFormat
	SizeHint uint64
}

// ClipboardRequest asks for clipboard content in a specific format.
type ClipboardRequest struct {
	Format ClipboardFormat
}

// ClipboardData carries the negotiated clipboard payload.
type ClipboardData struct {
	Format ClipboardFormat
	Data   []byte
}

// ClipboardContent is the local (off-wire) representation of a clipboard
// snapshot a Provider (internal/clipboard) reads from or writes to the OS
// clipboard; ClipboardData is its wire counterpart once negotiated.
type ClipboardContent struct {
	Format ClipboardFormat
	Data   []byte
}

// TextClipboard builds ClipboardPlainText content from a string.
func TextClipboard(s string) ClipboardContent {
	return ClipboardContent{Format: ClipboardPlainText, Data: []byte(s)}
}

// AsText returns c's data as a string if it is plain text.
func (c ClipboardContent) AsText() (string, bool) {
	if c.Format != ClipboardPlainText {
		return "", false
	}
	return string(c.Data), true
}

// Size is the byte length of c's payload.
func (c ClipboardContent) Size() int { return len(c.Data) }

// PeerIdentity names a configured peer: its address and the fingerprint
// pinned to it (§3, §4.5). Mutable only via configuration reload.
type PeerIdentity struct {
	Name              string
	SocketAddress     string
	PinnedFingerprint [32]byte
	HasPin            bool
}
