package clipboard

import (
	"context"
	"testing"

	"crosskvm/internal/types"
)

type fakeProvider struct {
	content types.ClipboardContent
	formats []types.ClipboardFormat
	set     types.ClipboardContent
}

func (f *fakeProvider) Get() (types.ClipboardContent, error) { return f.content, nil }
func (f *fakeProvider) Set(c types.ClipboardContent) error   { f.set = c; return nil }
func (f *fakeProvider) AvailableFormats() ([]types.ClipboardFormat, error) {
	return f.formats, nil
}
func (f *fakeProvider) Watch(ctx context.Context) (<-chan types.ClipboardContent, error) {
	return nil, nil
}

func TestBuildOfferReflectsLocalClipboard(t *testing.T) {
	p := &fakeProvider{
		content: types.TextClipboard("hello"),
		formats: []types.ClipboardFormat{types.ClipboardPlainText},
	}
	n := New(p)

	offer, err := n.BuildOffer()
	if err != nil {
		t.Fatalf("BuildOffer: %v", err)
	}
	if len(offer.Formats) != 1 || offer.Formats[0] != types.ClipboardPlainText {
		t.Fatalf("offer.Formats = %v", offer.Formats)
	}
	if offer.SizeHint != 5 {
		t.Fatalf("offer.SizeHint = %d, want 5", offer.SizeHint)
	}
}

func TestChooseFormatPrefersPlainText(t *testing.T) {
	n := New(&fakeProvider{})
	format, ok := n.ChooseFormat([]types.ClipboardFormat{types.ClipboardPNG, types.ClipboardPlainText})
	if !ok || format != types.ClipboardPlainText {
		t.Fatalf("ChooseFormat = (%v, %v), want (PlainText, true)", format, ok)
	}
}

func TestChooseFormatNoneRecognised(t *testing.T) {
	n := New(&fakeProvider{})
	if _, ok := n.ChooseFormat(nil); ok {
		t.Fatal("expected no format chosen from an empty offer")
	}
}

func TestBuildDataMatchesRequestedFormat(t *testing.T) {
	p := &fakeProvider{content: types.TextClipboard("world")}
	n := New(p)

	data, err := n.BuildData(types.ClipboardPlainText)
	if err != nil {
		t.Fatalf("BuildData: %v", err)
	}
	if string(data.Data) != "world" {
		t.Fatalf("data.Data = %q", data.Data)
	}

	if _, err := n.BuildData(types.ClipboardPNG); err == nil {
		t.Fatal("expected an error requesting a format the local clipboard isn't in")
	}
}

func TestApplyDataWritesToProvider(t *testing.T) {
	p := &fakeProvider{}
	n := New(p)

	if err := n.ApplyData(types.ClipboardData{Format: types.ClipboardHTML, Data: []byte("<b>hi</b>")}); err != nil {
		t.Fatalf("ApplyData: %v", err)
	}
	if p.set.Format != types.ClipboardHTML || string(p.set.Data) != "<b>hi</b>" {
		t.Fatalf("provider.set = %+v", p.set)
	}
}

func TestStubProviderReportsUnsupported(t *testing.T) {
	var p StubProvider
	if _, err := p.Get(); err == nil {
		t.Fatal("expected StubProvider.Get to error")
	}
	if err := p.Set(types.ClipboardContent{}); err == nil {
		t.Fatal("expected StubProvider.Set to error")
	}
	if _, err := p.Watch(context.Background()); err == nil {
		t.Fatal("expected StubProvider.Watch to error")
	}
}
