// Package clipboard defines the platform clipboard contract and the
// Offer/Request/Data negotiation spec.md §6 describes, without providing
// OS clipboard integration itself: spec.md explicitly scopes "clipboard
// data transfer beyond its control messages" out (§1), so this package
// stops at the negotiation a real platform backend would plug into.
//
// Grounded on original_source/crates/cross-control-clipboard's
// ClipboardProvider trait (get/set/available_formats/watch), translated
// to a Go interface the same way internal/capture.Source and
// internal/emulation.Emulator translate their platform contracts: one
// interface, a StubProvider standing in for the unbuilt platform backend.
package clipboard

import (
	"context"
	"fmt"

	"crosskvm/internal/types"
)

// Provider is platform clipboard access, mirroring original_source's
// ClipboardProvider trait.
type Provider interface {
	// Get returns the current clipboard content in its native format.
	Get() (types.ClipboardContent, error)

	// Set writes content to the clipboard.
	Set(content types.ClipboardContent) error

	// AvailableFormats lists the formats currently on the clipboard.
	AvailableFormats() ([]types.ClipboardFormat, error)

	// Watch reports clipboard changes until ctx is cancelled.
	Watch(ctx context.Context) (<-chan types.ClipboardContent, error)
}

// StubProvider is the unintegrated placeholder: no OS clipboard backend
// exists yet (mirroring the Rust crate's own "backends will be added in
// later phases" note), so every method reports unsupported rather than
// silently doing nothing.
type StubProvider struct{}

func (StubProvider) Get() (types.ClipboardContent, error) {
	return types.ClipboardContent{}, fmt.Errorf("clipboard: no platform provider configured")
}

func (StubProvider) Set(content types.ClipboardContent) error {
	return fmt.Errorf("clipboard: no platform provider configured")
}

func (StubProvider) AvailableFormats() ([]types.ClipboardFormat, error) {
	return nil, fmt.Errorf("clipboard: no platform provider configured")
}

func (StubProvider) Watch(ctx context.Context) (<-chan types.ClipboardContent, error) {
	return nil, fmt.Errorf("clipboard: no platform provider configured")
}
