package session

import (
	"context"
	"fmt"
	"log"

	"crosskvm/internal/kvmerr"
	"crosskvm/internal/transport"
	"crosskvm/internal/types"
)

// Peer is one session with a single remote machine: the QUIC connection,
// its control stream, and whichever input stream is currently open for a
// handover in progress (§4.8). Grounded on
// original_source/crates/cross-control-daemon/src/session.rs's PeerSession,
// translated from tokio tasks reading/writing channels to a single reader
// goroutine per stream feeding the supervisor's central event loop.
type Peer struct {
	Name string // configured peer name; set before the handshake completes

	MachineId types.MachineId
	RemoteName string
	RemoteScreen types.Screen

	state State

	conn      *transport.PeerConnection
	controlTx *transport.MessageSender
	controlRx *transport.MessageReceiver

	inputTx *transport.MessageSender
	inputRx *transport.MessageReceiver

	clipboardTx *transport.MessageSender
	clipboardRx *transport.MessageReceiver

	// pongCh delivers inbound Pong sequence numbers to the keepalive ping
	// loop (§4.2, §5): buffered so controlReadLoop never blocks handing
	// one off, even if the ping loop isn't waiting for it right now.
	pongCh chan uint32

	// DeviceMap translates a remote DeviceId to the VirtualDeviceId this
	// machine's emulator created for it (§4.4).
	DeviceMap map[types.DeviceId]types.VirtualDeviceId

	// RemoteDevices lists every device the remote peer has announced.
	RemoteDevices []types.DeviceInfo

	logger *log.Logger
}

// newPeer wraps an established connection, before the handshake runs.
func newPeer(name string, conn *transport.PeerConnection, controlTx *transport.MessageSender, controlRx *transport.MessageReceiver) *Peer {
	return &Peer{
		Name:      name,
		state:     Connected,
		conn:      conn,
		controlTx: controlTx,
		controlRx: controlRx,
		pongCh:    make(chan uint32, 1),
		DeviceMap: make(map[types.DeviceId]types.VirtualDeviceId),
		logger:    log.New(log.Writer(), "session["+name+"]: ", log.LstdFlags),
	}
}

// State returns the session's current lifecycle state.
func (p *Peer) State() State { return p.state }

// RemoteAddr returns the peer's network address.
func (p *Peer) RemoteAddr() string { return p.conn.RemoteAddr().String() }

// HandshakeInitiator performs the dialer side of the handshake: send
// Hello, receive Welcome (§4.2 steps 1-5).
func (p *Peer) HandshakeInitiator(ctx context.Context, ourId types.MachineId, ourName string, ourScreen types.Screen) error {
	hello := types.Hello{
		Version:   types.CurrentProtocolVersion,
		MachineId: ourId,
		Name:      ourName,
		Screen:    ourScreen,
	}
	if err := p.controlTx.Send(hello); err != nil {
		return p.protocolErr(err)
	}
	p.state = HelloSent
	p.logger.Print("sent Hello")

	kind, msg, err := p.controlRx.Recv()
	if err != nil {
		return p.protocolErr(err)
	}
	if kind != types.MsgWelcome {
		return &kvmerr.ProtocolError{Peer: p.Name, Err: fmt.Errorf("expected Welcome, got message kind %d", kind)}
	}
	welcome := msg.(types.Welcome)
	if err := p.verifyVersion(welcome.Version); err != nil {
		return err
	}
	p.MachineId = welcome.MachineId
	p.RemoteName = welcome.Name
	p.RemoteScreen = welcome.Screen
	p.state = Idle
	p.logger.Printf("handshake complete (initiator), peer=%s id=%s", welcome.Name, welcome.MachineId)
	return nil
}

// HandshakeResponder performs the listener side of the handshake: receive
// Hello, send Welcome.
func (p *Peer) HandshakeResponder(ctx context.Context, ourId types.MachineId, ourName string, ourScreen types.Screen) error {
	kind, msg, err := p.controlRx.Recv()
	if err != nil {
		return p.protocolErr(err)
	}
	if kind != types.MsgHello {
		return &kvmerr.ProtocolError{Peer: p.Name, Err: fmt.Errorf("expected Hello, got message kind %d", kind)}
	}
	hello := msg.(types.Hello)
	if err := p.verifyVersion(hello.Version); err != nil {
		return err
	}
	p.MachineId = hello.MachineId
	p.RemoteName = hello.Name
	p.RemoteScreen = hello.Screen

	welcome := types.Welcome{
		Version:   types.CurrentProtocolVersion,
		MachineId: ourId,
		Name:      ourName,
		Screen:    ourScreen,
	}
	if err := p.controlTx.Send(welcome); err != nil {
		return p.protocolErr(err)
	}
	p.state = Idle
	p.logger.Printf("handshake complete (responder), peer=%s id=%s", hello.Name, hello.MachineId)
	return nil
}

func (p *Peer) verifyVersion(theirs types.ProtocolVersion) error {
	if theirs.Major != types.CurrentProtocolVersion.Major {
		return &kvmerr.VersionError{Peer: p.Name, Ours: types.CurrentProtocolVersion.String(), Theirs: theirs.String()}
	}
	return nil
}

// AnnounceDevices sends a DeviceAnnounce for each of our local devices.
func (p *Peer) AnnounceDevices(devices []types.DeviceInfo) error {
	for _, d := range devices {
		if err := p.controlTx.Send(types.DeviceAnnounce{Device: d}); err != nil {
			return p.protocolErr(err)
		}
		p.logger.Printf("announced device %q", d.Name)
	}
	return nil
}

// AnnounceDeviceGone sends a DeviceGone for a device that hot-unplugged.
func (p *Peer) AnnounceDeviceGone(deviceId types.DeviceId) error {
	if err := p.controlTx.Send(types.DeviceGone{DeviceId: deviceId}); err != nil {
		return p.protocolErr(err)
	}
	return nil
}

// SendEnter requests a handover to this peer, opening the input stream
// before Enter is sent so it is already available when the peer accepts
// it upon receiving Enter (§4.7).
func (p *Peer) SendEnter(ctx context.Context, edge types.Position, position int32) error {
	if !p.state.CanEnterControlling() {
		return &kvmerr.ProtocolError{Peer: p.Name, Err: fmt.Errorf("cannot Enter from state %s", p.state)}
	}
	tx, err := p.conn.OpenInputStream(ctx)
	if err != nil {
		return err
	}
	p.inputTx = tx

	if err := p.controlTx.Send(types.Enter{Edge: edge, Position: position}); err != nil {
		return p.protocolErr(err)
	}
	p.state = Controlling
	p.logger.Print("sent Enter, awaiting EnterAck")
	return nil
}

// HandleEnter acknowledges an inbound Enter and accepts the input stream
// the sender opened for it. Called from the supervisor's control-reader
// goroutine for this peer.
func (p *Peer) HandleEnter(ctx context.Context, streamId uint64) error {
	if !p.state.CanEnterControlled() {
		return &kvmerr.ProtocolError{Peer: p.Name, Err: fmt.Errorf("cannot be controlled from state %s", p.state)}
	}
	if err := p.controlTx.Send(types.EnterAck{StreamId: streamId}); err != nil {
		return p.protocolErr(err)
	}
	rx, err := p.conn.AcceptInputStream(ctx)
	if err != nil {
		return err
	}
	p.inputRx = rx
	p.state = Controlled
	p.logger.Print("now being controlled by remote")
	return nil
}

// SetControlling transitions to Controlling once this machine's own
// EnterAck arrives on the control stream.
func (p *Peer) SetControlling() {
	p.state = Controlling
	p.logger.Print("now controlling remote")
}

// InputReceiver returns the open input stream reader, or nil if none is
// open (used by the supervisor's per-peer input reader goroutine).
func (p *Peer) InputReceiver() *transport.MessageReceiver { return p.inputRx }

// Leave sends Leave and returns this session to Idle, closing the input
// stream this machine had open.
func (p *Peer) Leave(edge types.Position, position int32) error {
	if err := p.controlTx.Send(types.Leave{Edge: edge, Position: position}); err != nil {
		return p.protocolErr(err)
	}
	if p.inputTx != nil {
		_ = p.inputTx.Close()
		p.inputTx = nil
	}
	p.state = Idle
	p.logger.Print("left remote control")
	return nil
}

// HandleLeave processes an inbound Leave: the remote released control.
func (p *Peer) HandleLeave() {
	p.inputRx = nil
	p.state = Idle
	p.logger.Print("remote released control")
}

// SendEventBatch forwards one batch on the open input stream.
func (p *Peer) SendEventBatch(batch types.EventBatch) error {
	if p.inputTx == nil {
		p.logger.Print("dropped event batch: no open input stream")
		return nil
	}
	if err := p.inputTx.Send(batch); err != nil {
		return p.protocolErr(err)
	}
	return nil
}

// SendClipboardOffer advertises available local clipboard content on the
// control stream (§6).
func (p *Peer) SendClipboardOffer(offer types.ClipboardOffer) error {
	if err := p.controlTx.Send(offer); err != nil {
		return p.protocolErr(err)
	}
	return nil
}

// SendClipboardRequest asks the peer for clipboard content in format,
// opening the ephemeral clipboard stream the Data reply will arrive on.
func (p *Peer) SendClipboardRequest(ctx context.Context, format types.ClipboardFormat) error {
	tx, rx, err := p.conn.OpenClipboardStream(ctx)
	if err != nil {
		return err
	}
	p.clipboardTx, p.clipboardRx = tx, rx
	if err := p.controlTx.Send(types.ClipboardRequest{Format: format}); err != nil {
		return p.protocolErr(err)
	}
	return nil
}

// AcceptClipboardRequest accepts the clipboard stream the peer opened
// after its Request, so Data can be sent back on it.
func (p *Peer) AcceptClipboardRequest(ctx context.Context) error {
	tx, rx, err := p.conn.AcceptClipboardStream(ctx)
	if err != nil {
		return err
	}
	p.clipboardTx, p.clipboardRx = tx, rx
	return nil
}

// SendClipboardData sends the negotiated payload on the open clipboard
// stream and closes it: the stream is ephemeral, scoped to one Data reply.
func (p *Peer) SendClipboardData(data types.ClipboardData) error {
	if p.clipboardTx == nil {
		return fmt.Errorf("clipboard: no open stream to peer %q", p.Name)
	}
	err := p.clipboardTx.Send(data)
	_ = p.clipboardTx.Close()
	p.clipboardTx = nil
	if err != nil {
		return p.protocolErr(err)
	}
	return nil
}

// RecvClipboardData reads the Data reply on the open clipboard stream.
func (p *Peer) RecvClipboardData() (types.ClipboardData, error) {
	if p.clipboardRx == nil {
		return types.ClipboardData{}, fmt.Errorf("clipboard: no open stream from peer %q", p.Name)
	}
	kind, msg, err := p.clipboardRx.Recv()
	p.clipboardRx = nil
	if err != nil {
		return types.ClipboardData{}, err
	}
	if kind != types.MsgClipboardData {
		return types.ClipboardData{}, &kvmerr.ProtocolError{Peer: p.Name, Err: fmt.Errorf("expected ClipboardData, got message kind %d", kind)}
	}
	return msg.(types.ClipboardData), nil
}

// SendPing sends a keepalive probe on the control stream.
func (p *Peer) SendPing(seq uint32) error {
	if err := p.controlTx.Send(types.Ping{Seq: seq}); err != nil {
		return p.protocolErr(err)
	}
	return nil
}

// SendPong answers a keepalive probe.
func (p *Peer) SendPong(seq uint32) error {
	if err := p.controlTx.Send(types.Pong{Seq: seq}); err != nil {
		return p.protocolErr(err)
	}
	return nil
}

// Disconnect announces an orderly shutdown and closes the connection.
func (p *Peer) Disconnect(reason string) error {
	p.state = Disconnecting
	_ = p.controlTx.Send(types.Bye{Reason: reason})
	p.logger.Printf("disconnected: %s", reason)
	return p.conn.Close()
}

func (p *Peer) protocolErr(err error) error {
	if _, ok := err.(*kvmerr.ProtocolError); ok {
		return err
	}
	return &kvmerr.ProtocolError{Peer: p.Name, Err: err}
}
