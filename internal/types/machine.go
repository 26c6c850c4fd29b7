// Package types holds the value types shared across crosskvm: identifiers,
// geometry, input events, and the wire-level messages built from them.
package types

import "github.com/google/uuid"

// MachineId is an opaque, stable identifier for a machine on the network.
// It is generated once per machine and persisted (see internal/identity),
// distinct from the human-readable name in configuration.
type MachineId uuid.UUID

// NewMachineId generates a new random machine identifier.
func NewMachineId() MachineId {
	return MachineId(uuid.New())
}

// MachineIdFromString parses a machine identifier previously produced by
// String.
func MachineIdFromString(s string) (MachineId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return MachineId{}, err
	}
	return MachineId(id), nil
}

func (m MachineId) String() string {
	return uuid.UUID(m).String()
}

// IsZero reports whether m is the zero value (never a valid generated id).
func (m MachineId) IsZero() bool {
	return m == MachineId{}
}
