package session

import (
	"testing"
	"time"

	"crosskvm/internal/barrier"
	"crosskvm/internal/capture"
	"crosskvm/internal/emulation"
	"crosskvm/internal/pki"
	"crosskvm/internal/topology"
	"crosskvm/internal/trust"
	"crosskvm/internal/types"
)

// newTestSupervisor builds a Supervisor with a real loopback QUIC listener
// (internal/transport is cheap to bind locally) but mock capture/emulation
// backends, so the central loop can be driven deterministically without a
// real input device or a second machine.
func newTestSupervisor(t *testing.T) (*Supervisor, *capture.MockSource, *emulation.MockEmulator) {
	t.Helper()

	dir := t.TempDir()
	cert, _, err := pki.LoadOrGenerate(dir, "local")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	trustStore, err := trust.Load(dir)
	if err != nil {
		t.Fatalf("trust.Load: %v", err)
	}
	topo, err := topology.New([]types.Screen{{Name: "local", Width: 1920, Height: 1080}}, nil)
	if err != nil {
		t.Fatalf("topology.New: %v", err)
	}
	if err := topo.SetLocal("local"); err != nil {
		t.Fatalf("SetLocal: %v", err)
	}

	src := capture.NewMockSource()
	emu := emulation.NewMockEmulator()

	sup, err := NewSupervisor(
		types.NewMachineId(), "local",
		types.Screen{Name: "local", Width: 1920, Height: 1080},
		cert, trustStore, topo, map[string]string{},
		"127.0.0.1:0", src, emu, nil, nil,
	)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	return sup, src, emu
}

func TestJitterStaysWithinFraction(t *testing.T) {
	base := 500 * time.Millisecond
	for i := 0; i < 200; i++ {
		got := jitter(base)
		lo := time.Duration(float64(base) * (1 - jitterFrac))
		hi := time.Duration(float64(base) * (1 + jitterFrac))
		if got < lo || got > hi {
			t.Fatalf("jitter(%v) = %v, want within [%v, %v]", base, got, lo, hi)
		}
	}
}

func TestNextStreamIdMonotonic(t *testing.T) {
	a := nextStreamId()
	b := nextStreamId()
	if b <= a {
		t.Fatalf("nextStreamId not monotonic: %d then %d", a, b)
	}
}

func TestHandleCaptureEventTracksKnownDevices(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	defer sup.transport.Close()

	dev := types.DeviceInfo{DeviceId: 7, Name: "kbd0"}
	sup.handleCaptureEvent(capture.Event{Kind: capture.EventDeviceAnnounce, DeviceId: 7, Device: dev})

	sup.mu.Lock()
	_, known := sup.knownDevices[7]
	sup.mu.Unlock()
	if !known {
		t.Fatal("expected device 7 to be tracked after DeviceAnnounce")
	}

	sup.handleCaptureEvent(capture.Event{Kind: capture.EventDeviceGone, DeviceId: 7})
	sup.mu.Lock()
	_, known = sup.knownDevices[7]
	sup.mu.Unlock()
	if known {
		t.Fatal("expected device 7 to be forgotten after DeviceGone")
	}
}

func TestSetAllDevicesFansOutToEveryKnownDevice(t *testing.T) {
	sup, src, _ := newTestSupervisor(t)
	defer sup.transport.Close()

	sup.handleCaptureEvent(capture.Event{Kind: capture.EventDeviceAnnounce, DeviceId: 1, Device: types.DeviceInfo{DeviceId: 1}})
	sup.handleCaptureEvent(capture.Event{Kind: capture.EventDeviceAnnounce, DeviceId: 2, Device: types.DeviceInfo{DeviceId: 2}})

	sup.setAllDevices(capture.Grab)
	if src.ModeOf(1) != capture.Grab || src.ModeOf(2) != capture.Grab {
		t.Fatalf("expected both devices grabbed, got modes %v", src.Modes)
	}

	sup.setAllDevices(capture.Observe)
	if src.ModeOf(1) != capture.Observe || src.ModeOf(2) != capture.Observe {
		t.Fatalf("expected both devices released, got modes %v", src.Modes)
	}
}

// TestHotkeyChordConsumesKeyEvents exercises the path handleCaptureEvent ->
// hotkey.Matcher -> barrier.Machine.Handle(ReleaseHotkey) and checks only
// that completing the chord does not panic. handleCaptureEvent returns
// before building a LocalEvent for the key that completes the chord; this
// test does not observe that.
func TestHotkeyChordConsumesKeyEvents(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	defer sup.transport.Close()

	down := func(code types.KeyCode) capture.Event {
		return capture.Event{Kind: capture.EventInput, Input: types.InputEvent{Kind: types.EventKeyDown, Code: code}}
	}
	sup.handleCaptureEvent(down(types.KeyLeftCtrl))
	sup.handleCaptureEvent(down(types.KeyLeftShift))
	sup.handleCaptureEvent(down(types.KeyEscape)) // completes the default chord; must not panic
}

func TestWithPeerDropsEffectForUnknownPeer(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	defer sup.transport.Close()

	called := false
	sup.withPeer("nobody", func(p *Peer) error { called = true; return nil })
	if called {
		t.Fatal("fn must not run for a peer name the Supervisor never registered")
	}
}

// TestAwaitPongMatchesSeq exercises the common keepalive path: a Pong with
// the expected seq arrives before the deadline.
func TestAwaitPongMatchesSeq(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	defer sup.transport.Close()

	p := &Peer{pongCh: make(chan uint32, 1)}
	p.pongCh <- 3
	if !sup.awaitPong(p, 3, nil, 50*time.Millisecond) {
		t.Fatal("expected awaitPong to return true for a matching Pong")
	}
}

// TestAwaitPongDiscardsStaleSeq ensures a Pong left over from an earlier,
// already-answered probe doesn't satisfy a later one.
func TestAwaitPongDiscardsStaleSeq(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	defer sup.transport.Close()

	p := &Peer{pongCh: make(chan uint32, 1)}
	p.pongCh <- 1 // stale: answers a probe before this one
	if sup.awaitPong(p, 2, nil, 20*time.Millisecond) {
		t.Fatal("expected awaitPong to ignore a stale Pong seq and time out")
	}
}

// TestAwaitPongTimesOutWithoutPong covers the keepalive-failure path §5
// relies on to detect a dead, otherwise-silent peer.
func TestAwaitPongTimesOutWithoutPong(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	defer sup.transport.Close()

	p := &Peer{pongCh: make(chan uint32, 1)}
	if sup.awaitPong(p, 1, nil, 20*time.Millisecond) {
		t.Fatal("expected awaitPong to time out when no Pong ever arrives")
	}
}

func TestDispatchGrabAllAndReleaseAllReachCapture(t *testing.T) {
	sup, src, _ := newTestSupervisor(t)
	defer sup.transport.Close()

	sup.handleCaptureEvent(capture.Event{Kind: capture.EventDeviceAnnounce, DeviceId: 9, Device: types.DeviceInfo{DeviceId: 9}})
	sup.dispatch([]barrier.Effect{{Kind: barrier.EffectGrabAll}})
	if src.ModeOf(9) != capture.Grab {
		t.Fatalf("EffectGrabAll did not reach capture.SetMode, got %v", src.ModeOf(9))
	}
	sup.dispatch([]barrier.Effect{{Kind: barrier.EffectReleaseAll}})
	if src.ModeOf(9) != capture.Observe {
		t.Fatalf("EffectReleaseAll did not reach capture.SetMode, got %v", src.ModeOf(9))
	}
}
