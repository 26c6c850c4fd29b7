package topology

import (
	"testing"

	"crosskvm/internal/types"
)

func twoScreenLayout() ([]types.Screen, []Edge) {
	screens := []types.Screen{
		{Name: "A", Width: 1920, Height: 1080},
		{Name: "B", Width: 1920, Height: 1080},
	}
	edges := []Edge{
		{From: "A", Position: types.Right, To: "B"},
		{From: "B", Position: types.Left, To: "A"},
	}
	return screens, edges
}

func TestNewRejectsAsymmetricTopology(t *testing.T) {
	screens := []types.Screen{
		{Name: "A", Width: 1920, Height: 1080},
		{Name: "B", Width: 1920, Height: 1080},
	}
	edges := []Edge{
		{From: "A", Position: types.Right, To: "B"},
		// missing the B --[Left]--> A back-edge
	}
	if _, err := New(screens, edges); err == nil {
		t.Fatal("expected a ConfigError for asymmetric topology, got nil")
	}
}

func TestNewRejectsUnknownScreenReference(t *testing.T) {
	screens := []types.Screen{{Name: "A", Width: 1920, Height: 1080}}
	edges := []Edge{{From: "A", Position: types.Right, To: "ghost"}}
	if _, err := New(screens, edges); err == nil {
		t.Fatal("expected a ConfigError for unknown screen reference, got nil")
	}
}

func TestNewRejectsDuplicateScreenName(t *testing.T) {
	screens := []types.Screen{
		{Name: "A", Width: 1920, Height: 1080},
		{Name: "A", Width: 2560, Height: 1440},
	}
	if _, err := New(screens, nil); err == nil {
		t.Fatal("expected a ConfigError for duplicate screen name, got nil")
	}
}

func TestStraightCrossing(t *testing.T) {
	screens, edges := twoScreenLayout()
	topo, err := New(screens, edges)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := topo.SetLocal("A"); err != nil {
		t.Fatalf("SetLocal failed: %v", err)
	}
	topo.cursor = Cursor{CurrentScreen: "A", X: 1919, Y: 540}

	result := topo.Step(1, 0)
	if !result.Crossed {
		t.Fatalf("expected crossing, got Stayed at (%d,%d)", result.X, result.Y)
	}
	if result.From != "A" || result.To != "B" {
		t.Errorf("expected crossing A -> B, got %s -> %s", result.From, result.To)
	}
	if result.EntryEdge != types.Left {
		t.Errorf("expected entry edge Left, got %s", result.EntryEdge)
	}
	if result.EntryPos != 540 {
		t.Errorf("expected entry position 540 (equal edge lengths), got %d", result.EntryPos)
	}
}

func TestStayedClampsWithoutNeighbour(t *testing.T) {
	screens := []types.Screen{{Name: "Solo", Width: 1920, Height: 1080}}
	topo, err := New(screens, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := topo.SetLocal("Solo"); err != nil {
		t.Fatalf("SetLocal failed: %v", err)
	}
	topo.cursor = Cursor{CurrentScreen: "Solo", X: 1919, Y: 540}

	result := topo.Step(5, 0)
	if result.Crossed {
		t.Fatalf("expected no crossing without a neighbour, got Crossed to %s", result.To)
	}
	if result.X != 1919 {
		t.Errorf("expected clamp to 1919, got %d", result.X)
	}
}

func TestProjectEntryRoundTrip(t *testing.T) {
	cases := []struct {
		offset, fromLen, toLen int32
	}{
		{540, 1080, 1080},
		{0, 1080, 1080},
		{1079, 1080, 1080},
		{100, 1080, 1440},
		{719, 1440, 1080},
	}
	for _, c := range cases {
		forward := ProjectEntry(c.offset, c.fromLen, c.toLen)
		back := ProjectEntry(forward, c.toLen, c.fromLen)
		if abs32(back-c.offset) > 1 {
			t.Errorf("projection round trip for offset=%d fromLen=%d toLen=%d: got back=%d (diff > 1 rounding slack)",
				c.offset, c.fromLen, c.toLen, back)
		}
	}
}

func TestProjectEntryRoundsHalfToEven(t *testing.T) {
	// offset=1 over fromLen=2 into toLen=1 => exact 0.5 tie => rounds to 0 (even)
	if got := ProjectEntry(1, 2, 1); got != 0 {
		t.Errorf("expected half-to-even tie to round to 0, got %d", got)
	}
	// offset=3 over fromLen=2 into toLen=1 => exact 1.5 tie => rounds to 2 (even)
	if got := ProjectEntry(3, 2, 1); got != 2 {
		t.Errorf("expected half-to-even tie to round to 2, got %d", got)
	}
}

func TestEnterScreenPlacesOnePixelInside(t *testing.T) {
	screens, edges := twoScreenLayout()
	topo, err := New(screens, edges)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := topo.EnterScreen("B", types.Left, 540); err != nil {
		t.Fatalf("EnterScreen failed: %v", err)
	}
	cursor := topo.Cursor()
	if cursor.CurrentScreen != "B" || cursor.X != 0 || cursor.Y != 540 {
		t.Errorf("expected B at (0,540), got %s at (%d,%d)", cursor.CurrentScreen, cursor.X, cursor.Y)
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
