package transport

import (
	"context"
	"testing"
	"time"

	"crosskvm/internal/pki"
	"crosskvm/internal/types"
)

func TestListenDialRoundTrip(t *testing.T) {
	serverCert, serverFP, err := pki.LoadOrGenerate(t.TempDir(), "desk-left")
	if err != nil {
		t.Fatalf("server cert generation failed: %v", err)
	}
	clientCert, _, err := pki.LoadOrGenerate(t.TempDir(), "desk-right")
	if err != nil {
		t.Fatalf("client cert generation failed: %v", err)
	}

	listener, err := Listen("127.0.0.1:0", serverCert)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan *PeerConnection, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept(ctx)
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- conn
	}()

	verify := func(peerName string, leafDER []byte) error {
		if pki.Fingerprint(leafDER) != serverFP {
			t.Errorf("unexpected leaf fingerprint for peer %q", peerName)
		}
		return nil
	}

	clientConn, err := Dial(ctx, listener.Addr(), "desk-left", clientCert, verify)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	var serverConn *PeerConnection
	select {
	case serverConn = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("Accept failed: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for Accept")
	}

	clientSend, _, err := clientConn.OpenControlStream(ctx)
	if err != nil {
		t.Fatalf("OpenControlStream failed: %v", err)
	}
	// The peer only learns of a QUIC stream once data is written on it, so
	// the Hello goes out before the server side accepts the stream.
	hello := types.Hello{
		Version:   types.CurrentProtocolVersion,
		MachineId: types.NewMachineId(),
		Name:      "desk-right",
		Screen:    types.Screen{Name: "DP-1", Width: 1920, Height: 1080},
	}
	if err := clientSend.Send(hello); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_, serverRecv, err := serverConn.AcceptControlStream(ctx)
	if err != nil {
		t.Fatalf("AcceptControlStream failed: %v", err)
	}

	kind, msg, err := serverRecv.Recv()
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if kind != types.MsgHello {
		t.Errorf("expected MsgHello, got %v", kind)
	}
	got, ok := msg.(types.Hello)
	if !ok || got.Name != "desk-right" {
		t.Errorf("expected Hello{Name: desk-right}, got %#v", msg)
	}
}

func TestDialRejectsFingerprintMismatch(t *testing.T) {
	serverCert, _, err := pki.LoadOrGenerate(t.TempDir(), "desk-left")
	if err != nil {
		t.Fatalf("server cert generation failed: %v", err)
	}
	clientCert, _, err := pki.LoadOrGenerate(t.TempDir(), "desk-right")
	if err != nil {
		t.Fatalf("client cert generation failed: %v", err)
	}

	listener, err := Listen("127.0.0.1:0", serverCert)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_, _ = listener.Accept(ctx)
	}()

	verify := func(peerName string, leafDER []byte) error {
		return &mismatchError{}
	}

	if _, err := Dial(ctx, listener.Addr(), "desk-left", clientCert, verify); err == nil {
		t.Fatal("expected Dial to fail on fingerprint mismatch")
	}
}

type mismatchError struct{}

func (*mismatchError) Error() string { return "fingerprint mismatch" }
