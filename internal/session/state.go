// Package session is the session supervisor (spec.md §4.8): one task per
// configured peer, owning the QUIC connection, the handshake, and the
// control/input/clipboard streams. It is the only component that touches a
// socket; it relays inbound control messages and disconnects into
// internal/barrier.Input values and carries out the internal/barrier.Effect
// values the state machine returns.
package session

// State is a per-connection lifecycle state (supplemented feature 4, folded
// in from original_source/crates/cross-control-daemon/src/state.rs), kept
// distinct from barrier.State: State tracks whether a handshake has
// completed and whether *this* session is presently forwarding or receiving
// input, while barrier.State tracks cursor ownership across the whole
// topology. A session sits in Controlling/Controlled for as long as the
// barrier machine's Remote phase targets (or is targeted by) it.
type State uint8

const (
	// Connected: transport connected, handshake not yet started.
	Connected State = iota
	// HelloSent: initiator sent Hello, awaiting Welcome.
	HelloSent
	// Idle: handshake complete, no input presently forwarded either way.
	Idle
	// Controlling: this machine is sending input to the peer.
	Controlling
	// Controlled: this machine is receiving input from the peer.
	Controlled
	// Disconnecting: graceful shutdown in progress.
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Connected:
		return "Connected"
	case HelloSent:
		return "HelloSent"
	case Idle:
		return "Idle"
	case Controlling:
		return "Controlling"
	case Controlled:
		return "Controlled"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "State(?)"
	}
}

// CanEnterControlling reports whether Enter may legally be sent from s.
func (s State) CanEnterControlling() bool { return s == Idle }

// CanEnterControlled reports whether an inbound Enter may legally be
// accepted while in s.
func (s State) CanEnterControlled() bool { return s == Idle }

// IsActive reports whether input is presently flowing either direction.
func (s State) IsActive() bool { return s == Controlling || s == Controlled }
