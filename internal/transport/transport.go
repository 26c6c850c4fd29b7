// Package transport is the QUIC/TLS 1.3 transport layer (spec.md §4.2): one
// endpoint per daemon that both accepts and initiates connections, with a
// persistent bidirectional control stream, per-handover unidirectional
// input streams, and an ephemeral bidirectional clipboard stream.
//
// Grounded on original_source/crates/cross-control-protocol/src/
// {transport.rs,connection.rs,tls.rs} (quinn + rustls), translated to the
// ecosystem's QUIC library, github.com/quic-go/quic-go — the direct Go
// analogue of quinn and the only QUIC implementation in the retrieval
// pack's transitive reach. Unlike the prototype's "skip verification,
// Phase 2 will pin" placeholder, fingerprint verification is wired in from
// the start via VerifyConnection (see PinVerifier).
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/quic-go/quic-go"

	"crosskvm/internal/kvmerr"
)

// ALPN is the application-layer protocol negotiated over TLS; it doubles
// as a coarse wire-compatibility gate below the Hello/Welcome handshake.
const ALPN = "crosskvm/1"

// PinVerifier decides whether a leaf certificate is acceptable for a named
// peer (spec.md §4.2 step 2, §4.5). It is supplied by the caller (the
// session layer, which owns the trust store) rather than baked into the
// transport, so the transport stays ignorant of pairing policy.
type PinVerifier func(peerName string, leafDER []byte) error

// QuicTransport is a single QUIC endpoint used both to accept inbound
// connections and to dial outbound ones.
type QuicTransport struct {
	listener *quic.Listener
}

// Listen binds a QUIC endpoint on addr presenting cert for inbound
// connections. It does not itself verify client certificates (crosskvm
// peers are symmetric; the dialer is the one that must confirm the
// listener's identity against its pin).
func Listen(addr string, cert tls.Certificate) (*QuicTransport, error) {
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
	}
	listener, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, &kvmerr.TransportError{Peer: addr, Err: fmt.Errorf("listen: %w", err)}
	}
	return &QuicTransport{listener: listener}, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 0, // crosskvm runs its own Ping/Pong at the message layer (§4.2)
	}
}

// Accept waits for and returns the next inbound connection.
func (t *QuicTransport) Accept(ctx context.Context) (*PeerConnection, error) {
	conn, err := t.listener.Accept(ctx)
	if err != nil {
		return nil, &kvmerr.TransportError{Peer: "listener", Err: err}
	}
	return &PeerConnection{conn: conn}, nil
}

// Addr returns the address the transport is listening on.
func (t *QuicTransport) Addr() string {
	return t.listener.Addr().String()
}

// Close shuts the transport down, closing the underlying endpoint.
func (t *QuicTransport) Close() error {
	return t.listener.Close()
}

// Dial connects to addr as peerName, presenting cert as the client
// certificate and verifying the responder's leaf certificate with verify
// before the connection is considered established. A verification failure
// surfaces as *kvmerr.TrustError and no QUIC handshake data is trusted.
func Dial(ctx context.Context, addr, peerName string, cert tls.Certificate, verify PinVerifier) (*PeerConnection, error) {
	var trustErr error
	tlsConf := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true, // custom verification below replaces Go's CA-based checks (§4.5: pin, not CA, is the trust anchor)
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				trustErr = &kvmerr.TrustError{Peer: peerName, Reason: "no certificate presented"}
				return trustErr
			}
			if err := verify(peerName, rawCerts[0]); err != nil {
				trustErr = &kvmerr.TrustError{Peer: peerName, Reason: err.Error()}
				return trustErr
			}
			return nil
		},
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		if trustErr != nil {
			return nil, trustErr
		}
		return nil, &kvmerr.TransportError{Peer: peerName, Err: fmt.Errorf("dial: %w", err)}
	}
	return &PeerConnection{conn: conn}, nil
}
