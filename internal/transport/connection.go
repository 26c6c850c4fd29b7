package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/quic-go/quic-go"

	"crosskvm/internal/codec"
	"crosskvm/internal/kvmerr"
	"crosskvm/internal/types"
)

// PeerConnection is one established QUIC connection to a peer (§4.2).
// The control stream is opened once per connection and kept for its
// lifetime; input and clipboard streams are opened/accepted per handover.
type PeerConnection struct {
	conn quic.Connection
}

// RemoteAddr returns the peer's network address.
func (p *PeerConnection) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

// OpenControlStream opens the persistent bidirectional control stream
// (initiator side of the handshake, §4.2 step 1).
func (p *PeerConnection) OpenControlStream(ctx context.Context) (*MessageSender, *MessageReceiver, error) {
	stream, err := p.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, nil, p.transportErr("open control stream", err)
	}
	return newSender(stream), newReceiver(stream), nil
}

// AcceptControlStream accepts the persistent bidirectional control stream
// (responder side of the handshake).
func (p *PeerConnection) AcceptControlStream(ctx context.Context) (*MessageSender, *MessageReceiver, error) {
	stream, err := p.conn.AcceptStream(ctx)
	if err != nil {
		return nil, nil, p.transportErr("accept control stream", err)
	}
	return newSender(stream), newReceiver(stream), nil
}

// OpenInputStream opens a new unidirectional input stream for a handover
// this machine is initiating (§4.7 Pending -> Remote).
func (p *PeerConnection) OpenInputStream(ctx context.Context) (*MessageSender, error) {
	stream, err := p.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, p.transportErr("open input stream", err)
	}
	return newSender(stream), nil
}

// AcceptInputStream accepts an inbound unidirectional input stream opened
// by the peer.
func (p *PeerConnection) AcceptInputStream(ctx context.Context) (*MessageReceiver, error) {
	stream, err := p.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, p.transportErr("accept input stream", err)
	}
	return newReceiver(stream), nil
}

// OpenClipboardStream opens the ephemeral bidirectional clipboard stream
// after an Offer/Request negotiation on the control stream.
func (p *PeerConnection) OpenClipboardStream(ctx context.Context) (*MessageSender, *MessageReceiver, error) {
	stream, err := p.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, nil, p.transportErr("open clipboard stream", err)
	}
	return newSender(stream), newReceiver(stream), nil
}

// AcceptClipboardStream accepts an inbound ephemeral clipboard stream.
func (p *PeerConnection) AcceptClipboardStream(ctx context.Context) (*MessageSender, *MessageReceiver, error) {
	stream, err := p.conn.AcceptStream(ctx)
	if err != nil {
		return nil, nil, p.transportErr("accept clipboard stream", err)
	}
	return newSender(stream), newReceiver(stream), nil
}

// Close closes the connection gracefully with an application-level code.
func (p *PeerConnection) Close() error {
	return p.conn.CloseWithError(0, "bye")
}

func (p *PeerConnection) transportErr(op string, err error) error {
	return &kvmerr.TransportError{Peer: p.conn.RemoteAddr().String(), Err: fmt.Errorf("%s: %w", op, err)}
}

// MessageSender writes framed, encoded messages onto a QUIC send-capable
// stream (control, input, or clipboard), per the codec envelope in
// internal/codec.
type MessageSender struct {
	stream sendCloser
}

// sendCloser is satisfied by both quic.Stream (bidi) and quic.SendStream
// (uni): both expose Write and a Close that half-closes the send side.
type sendCloser interface {
	Write([]byte) (int, error)
	Close() error
}

func newSender(s sendCloser) *MessageSender { return &MessageSender{stream: s} }

// Send encodes and frames msg, writing it to the stream.
func (s *MessageSender) Send(msg any) error {
	if err := codec.WriteMessage(s.stream, msg); err != nil {
		return &kvmerr.ProtocolError{Err: err}
	}
	return nil
}

// Close half-closes the send side of the stream (graceful "no more data").
func (s *MessageSender) Close() error {
	return s.stream.Close()
}

// MessageReceiver reads framed, decoded messages from a QUIC
// receive-capable stream.
type MessageReceiver struct {
	stream recvCanceler
}

// recvCanceler is satisfied by both quic.Stream and quic.ReceiveStream.
type recvCanceler interface {
	Read([]byte) (int, error)
}

func newReceiver(s recvCanceler) *MessageReceiver { return &MessageReceiver{stream: s} }

// Recv reads and decodes the next message. It returns io.EOF (via the
// underlying codec) when the peer has cleanly closed the stream.
func (r *MessageReceiver) Recv() (types.MessageKind, any, error) {
	return codec.ReadMessage(readerFunc(r.stream.Read))
}

// readerFunc adapts a bare Read method to io.Reader.
type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
