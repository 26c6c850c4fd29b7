// Package barrier implements the core barrier-crossing state machine
// (spec.md §4.7): per local machine, it decides when the user's cursor
// handing off to a screen owned by a peer, forwards subsequent input
// there, and brings control back when the cursor returns.
//
// Machine is a pure, single-threaded functional core: Handle takes one
// Input and returns the Effects the caller (internal/session) must carry
// out, plus the machine's updated state. Nothing here touches a socket,
// a timer, or a device directly — per spec.md §9 ("Single-writer state"),
// BarrierState and the virtual cursor belong to exactly one task, and
// that discipline is easiest to keep (and to test) if the state machine
// itself never blocks on I/O. The goroutine/channel/ticker plumbing that
// drives Handle sequentially is grounded on the teacher's
// internal/switcher.Switcher (a single mutex-guarded coordinator with
// callback-driven effects), adapted here to message passing instead of
// shared mutable state.
package barrier

import (
	"time"

	"crosskvm/internal/topology"
	"crosskvm/internal/types"
)

// MaxBufferedEvents is the hard cap on events queued during a handover
// (§4.7 "Event buffering during Pending").
const MaxBufferedEvents = 1024

// Phase is one of the four BarrierState variants (§4.7).
type Phase uint8

const (
	Local Phase = iota
	Pending
	Remote
	Releasing
)

func (p Phase) String() string {
	switch p {
	case Local:
		return "Local"
	case Pending:
		return "Pending"
	case Remote:
		return "Remote"
	case Releasing:
		return "Releasing"
	default:
		return "Phase(?)"
	}
}

// State is the machine's current BarrierState.
type State struct {
	Phase Phase

	// Target is the peer currently being handed off to / forwarded to /
	// released from. Empty when Phase == Local.
	Target string

	// ChainFrom is non-empty when Pending was entered directly from
	// Remote (a chained crossing, §4.7 "generalises to chained
	// handovers") rather than from Local. It changes timeout/disconnect
	// handling: a chain failure must still fully release grabs, since
	// they were acquired on the original Local -> Remote transition and
	// were never released (§9 "Grab reentry").
	ChainFrom string

	// StreamId names the open input stream while Remote.
	StreamId uint64

	Since time.Time
}

// InputKind discriminates the events Handle accepts.
type InputKind uint8

const (
	// LocalEvent: a captured local event, in device order. Buffered
	// while Pending, forwarded while Remote, applied locally (by the
	// caller, outside the machine) while Local.
	LocalEvent InputKind = iota
	// EnterAck: the target peer accepted a handover request.
	EnterAck
	// PendingTimeout: the 1 s EnterAck deadline elapsed.
	PendingTimeout
	// PeerDisconnect: the session for Target was lost.
	PeerDisconnect
	// ReleaseHotkey: the configured release chord was detected by
	// capture (§4.7 "Release hotkey") — its own key events are never
	// forwarded and never appear here.
	ReleaseHotkey
	// StreamClosed: the input stream to Target finished closing,
	// completing a Releasing -> Local transition.
	StreamClosed
)

// Input is one event delivered to Handle.
type Input struct {
	Kind     InputKind
	DeviceId types.DeviceId
	Event    types.InputEvent // valid when Kind == LocalEvent

	// Peer names the session the event came from. Required for EnterAck,
	// PeerDisconnect, and StreamClosed: the caller fans in control-plane
	// signals from every session, and a stale or unrelated peer's signal
	// must never perturb a handover in flight with a different peer.
	Peer string
}

// EffectKind discriminates the variants of Effect.
type EffectKind uint8

const (
	EffectSendEnter EffectKind = iota
	EffectSendLeave
	EffectSendEventBatch
	EffectGrabAll
	EffectReleaseAll
	EffectOpenInputStream
	EffectCloseInputStream
	EffectStartPendingTimer
	EffectStopPendingTimer
	EffectLog
)

// Effect is one action Handle asks the caller to perform. Effects are
// returned in the order they must be carried out.
type Effect struct {
	Kind EffectKind

	Peer     string
	Edge     types.Position
	Position int32
	Batch    types.EventBatch
	Message  string
}

// Machine is the owner-side barrier state machine for one local machine.
type Machine struct {
	topo        *topology.Topology
	localScreen string
	// screenOf maps every screen name in topo to the peer name that owns
	// it. The local machine's own screen(s) are absent (or map to "").
	screenOf map[string]string

	state State

	buffer       map[types.DeviceId][]types.InputEvent
	bufferedN    int
	droppedCount uint64
}

// New constructs a Machine starting in Local on localScreen.
func New(topo *topology.Topology, localScreen string, screenOf map[string]string) *Machine {
	return &Machine{
		topo:        topo,
		localScreen: localScreen,
		screenOf:    screenOf,
		state:       State{Phase: Local},
		buffer:      make(map[types.DeviceId][]types.InputEvent),
	}
}

// State returns the machine's current BarrierState.
func (m *Machine) State() State { return m.state }

// DroppedEventCount returns how many buffered events have been dropped to
// overflow across the machine's lifetime (§4.7 buffer cap).
func (m *Machine) DroppedEventCount() uint64 { return m.droppedCount }

// Handle processes one Input and returns the Effects to carry out. It
// never blocks and never touches a clock itself: timeouts and stream
// closures are reported to it as Inputs by the caller.
func (m *Machine) Handle(in Input) []Effect {
	switch m.state.Phase {
	case Local:
		return m.handleLocal(in)
	case Pending:
		return m.handlePending(in)
	case Remote:
		return m.handleRemote(in)
	case Releasing:
		return m.handleReleasing(in)
	default:
		return nil
	}
}

func (m *Machine) handleLocal(in Input) []Effect {
	if in.Kind != LocalEvent || !in.Event.IsMotion() {
		return nil // Local: everything else already reaches the OS directly
	}
	dx, dy := motionDelta(in.Event)
	result := m.topo.Step(dx, dy)
	if !result.Crossed {
		return nil
	}

	target := m.screenOf[result.To]
	if target == "" {
		// Crossed onto an unmapped/local screen: treat as staying local.
		return nil
	}

	// Commit the crossing in the topology immediately: the owner keeps
	// feeding it every subsequent delta regardless of handshake state
	// (§4.7), so later Step calls must already evaluate against the new
	// screen's geometry rather than the one just left.
	_ = m.topo.EnterScreen(result.To, result.EntryEdge, result.EntryPos)

	m.state = State{Phase: Pending, Target: target, Since: time.Time{}}
	m.resetBuffer()

	return []Effect{
		{Kind: EffectSendEnter, Peer: target, Edge: result.EntryEdge, Position: result.EntryPos},
		{Kind: EffectStartPendingTimer, Peer: target},
	}
}

func (m *Machine) handlePending(in Input) []Effect {
	switch in.Kind {
	case LocalEvent:
		m.bufferEvent(in.DeviceId, in.Event)
		return nil

	case EnterAck:
		if in.Peer != m.state.Target {
			return nil // stale or unrelated ack
		}
		target := m.state.Target
		chained := m.state.ChainFrom != ""
		flushed := m.flushBuffer(target)

		m.state = State{Phase: Remote, Target: target}

		effects := make([]Effect, 0, len(flushed)+4)
		if !chained {
			effects = append(effects, Effect{Kind: EffectGrabAll})
		}
		effects = append(effects, Effect{Kind: EffectOpenInputStream, Peer: target})
		effects = append(effects, flushed...)
		effects = append(effects, Effect{Kind: EffectStopPendingTimer, Peer: target})
		return effects

	case PendingTimeout:
		target := m.state.Target
		chained := m.state.ChainFrom != ""
		m.resetBuffer()
		m.state = State{Phase: Local}

		effects := []Effect{{Kind: EffectLog, Peer: target, Message: "handover timed out awaiting EnterAck"}}
		if chained {
			effects = append(effects, Effect{Kind: EffectReleaseAll})
		}
		return effects

	case PeerDisconnect:
		if in.Peer != m.state.Target {
			return nil // a different peer dropped; doesn't affect this handover
		}
		target := m.state.Target
		chained := m.state.ChainFrom != ""
		m.resetBuffer()
		m.state = State{Phase: Local}

		effects := []Effect{{Kind: EffectLog, Peer: target, Message: "peer disconnected during handover"}}
		if chained {
			effects = append(effects, Effect{Kind: EffectReleaseAll})
		}
		return effects

	default:
		return nil
	}
}

func (m *Machine) handleRemote(in Input) []Effect {
	target := m.state.Target

	switch in.Kind {
	case LocalEvent:
		if !in.Event.IsMotion() {
			return []Effect{{Kind: EffectSendEventBatch, Peer: target, Batch: singleEventBatch(in.DeviceId, in.Event)}}
		}

		dx, dy := motionDelta(in.Event)
		result := m.topo.Step(dx, dy)
		if !result.Crossed {
			return []Effect{{Kind: EffectSendEventBatch, Peer: target, Batch: singleEventBatch(in.DeviceId, in.Event)}}
		}

		_ = m.topo.EnterScreen(result.To, result.EntryEdge, result.EntryPos)

		if result.To == m.localScreen {
			m.state = State{Phase: Releasing, Target: target}
			return []Effect{
				{Kind: EffectSendLeave, Peer: target, Edge: result.EntryEdge, Position: result.EntryPos},
				{Kind: EffectReleaseAll},
				{Kind: EffectCloseInputStream, Peer: target},
			}
		}

		newTarget := m.screenOf[result.To]
		if newTarget == target || newTarget == "" {
			// Same peer (multi-screen machine) or an unmapped screen:
			// routing target is unchanged.
			return []Effect{{Kind: EffectSendEventBatch, Peer: target, Batch: singleEventBatch(in.DeviceId, in.Event)}}
		}

		// Chained crossing to a different peer (§4.7, §8 scenario 6).
		m.state = State{Phase: Pending, Target: newTarget, ChainFrom: target}
		m.resetBuffer()
		return []Effect{
			{Kind: EffectSendLeave, Peer: target, Edge: result.EntryEdge, Position: result.EntryPos},
			{Kind: EffectCloseInputStream, Peer: target},
			{Kind: EffectSendEnter, Peer: newTarget, Edge: result.EntryEdge, Position: result.EntryPos},
			{Kind: EffectStartPendingTimer, Peer: newTarget},
		}

	case ReleaseHotkey:
		m.state = State{Phase: Releasing, Target: target}
		return []Effect{
			{Kind: EffectSendLeave, Peer: target},
			{Kind: EffectReleaseAll},
			{Kind: EffectCloseInputStream, Peer: target},
		}

	case PeerDisconnect:
		if in.Peer != target {
			return nil // an unrelated peer dropped
		}
		m.state = State{Phase: Local}
		return []Effect{
			{Kind: EffectReleaseAll},
			{Kind: EffectLog, Peer: target, Message: "peer disconnected while remote"},
		}

	default:
		return nil
	}
}

func (m *Machine) handleReleasing(in Input) []Effect {
	if in.Kind == StreamClosed && in.Peer == m.state.Target {
		m.state = State{Phase: Local}
	}
	return nil
}

func (m *Machine) resetBuffer() {
	m.buffer = make(map[types.DeviceId][]types.InputEvent)
	m.bufferedN = 0
}

func (m *Machine) bufferEvent(deviceId types.DeviceId, event types.InputEvent) {
	if m.bufferedN >= MaxBufferedEvents {
		dropOldest(m.buffer)
		m.droppedCount++
		m.bufferedN--
	}
	m.buffer[deviceId] = append(m.buffer[deviceId], event)
	m.bufferedN++
}

// dropOldest removes the single oldest buffered event across all devices.
// With event ordering only meaningful within one device's slice, "oldest"
// is approximated by dropping from the device with the longest queue,
// which is sufficient to bound memory without reordering any one
// device's stream.
func dropOldest(buffer map[types.DeviceId][]types.InputEvent) {
	var longest types.DeviceId
	max := -1
	for id, events := range buffer {
		if len(events) > max {
			max = len(events)
			longest = id
		}
	}
	if max <= 0 {
		return
	}
	buffer[longest] = buffer[longest][1:]
}

// flushBuffer drains the buffer into SendEventBatch effects, one per
// device, in original per-device order, followed by a Sync on the last
// batch (§4.7 "drained onto the new input stream in original order with
// a single Sync at the end of the flushed batch").
func (m *Machine) flushBuffer(peer string) []Effect {
	effects := make([]Effect, 0, len(m.buffer))
	deviceIds := make([]types.DeviceId, 0, len(m.buffer))
	for id := range m.buffer {
		deviceIds = append(deviceIds, id)
	}
	sortDeviceIds(deviceIds)

	for i, id := range deviceIds {
		events := m.buffer[id]
		if i == len(deviceIds)-1 {
			events = append(events, types.SyncEvent())
		}
		effects = append(effects, Effect{
			Kind: EffectSendEventBatch,
			Peer: peer,
			Batch: types.EventBatch{
				DeviceId: id,
				Events:   events,
			},
		})
	}
	if len(deviceIds) == 0 {
		// Nothing was buffered; still emit a bare Sync so the receiver
		// has a clean frame boundary before live traffic starts.
		effects = append(effects, Effect{
			Kind:  EffectSendEventBatch,
			Peer:  peer,
			Batch: types.EventBatch{Events: []types.InputEvent{types.SyncEvent()}},
		})
	}

	m.resetBuffer()
	return effects
}

func sortDeviceIds(ids []types.DeviceId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func singleEventBatch(deviceId types.DeviceId, event types.InputEvent) types.EventBatch {
	return types.EventBatch{DeviceId: deviceId, Events: []types.InputEvent{event}}
}

func motionDelta(e types.InputEvent) (int32, int32) {
	if e.Kind == types.EventPointerAbs {
		return e.X, e.Y
	}
	return e.DX, e.DY
}
