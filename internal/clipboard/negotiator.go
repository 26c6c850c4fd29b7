package clipboard

import (
	"fmt"

	"crosskvm/internal/types"
)

// formatPriority orders formats from most to least preferred when
// choosing among a remote Offer's formats, matching original_source's
// ClipboardContent::text/as_text bias toward plain text as the universal
// fallback.
var formatPriority = []types.ClipboardFormat{
	types.ClipboardPlainText,
	types.ClipboardHTML,
	types.ClipboardPNG,
}

// Negotiator drives the Offer/Request/Data exchange (§6) against a local
// Provider. It has no knowledge of peers or streams — internal/session
// wires its output into Peer's control/clipboard stream methods.
type Negotiator struct {
	provider Provider
}

// New builds a Negotiator around provider. provider is never nil in
// practice; StubProvider is supplied when no platform backend exists.
func New(provider Provider) *Negotiator {
	return &Negotiator{provider: provider}
}

// BuildOffer asks the local provider what's on the clipboard right now,
// for broadcasting as an Offer message.
func (n *Negotiator) BuildOffer() (types.ClipboardOffer, error) {
	formats, err := n.provider.AvailableFormats()
	if err != nil {
		return types.ClipboardOffer{}, err
	}
	content, err := n.provider.Get()
	var sizeHint uint64
	if err == nil {
		sizeHint = uint64(content.Size())
	}
	return types.ClipboardOffer{Formats: formats, SizeHint: sizeHint}, nil
}

// ChooseFormat picks the best format this Negotiator wants from a remote
// Offer's available formats, in formatPriority order. ok is false if none
// of the offered formats are recognised.
func (n *Negotiator) ChooseFormat(offered []types.ClipboardFormat) (format types.ClipboardFormat, ok bool) {
	want := make(map[types.ClipboardFormat]bool, len(offered))
	for _, f := range offered {
		want[f] = true
	}
	for _, f := range formatPriority {
		if want[f] {
			return f, true
		}
	}
	return 0, false
}

// BuildData reads the local clipboard in format for sending as a Data
// message after a Request.
func (n *Negotiator) BuildData(format types.ClipboardFormat) (types.ClipboardData, error) {
	content, err := n.provider.Get()
	if err != nil {
		return types.ClipboardData{}, err
	}
	if content.Format != format {
		return types.ClipboardData{}, fmt.Errorf("clipboard: local content is format %v, peer requested %v", content.Format, format)
	}
	return types.ClipboardData{Format: content.Format, Data: content.Data}, nil
}

// ApplyData writes a received Data message to the local clipboard.
func (n *Negotiator) ApplyData(data types.ClipboardData) error {
	return n.provider.Set(types.ClipboardContent{Format: data.Format, Data: data.Data})
}
