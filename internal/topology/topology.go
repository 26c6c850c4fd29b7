// Package topology holds the directed, labelled screen-adjacency graph and
// the single virtual cursor that moves across it (spec.md §4.6). Exactly
// one task — the barrier state machine (internal/barrier) — ever calls
// Step or SetLocal; Topology itself does no locking of its own, following
// the single-writer discipline spec.md §9 calls out as the thing that
// makes the crossing invariant checkable at a task boundary.
package topology

import (
	"fmt"

	"crosskvm/internal/kvmerr"
	"crosskvm/internal/types"
)

// Edge is one directed, labelled adjacency: screen To sits on Position
// relative to From.
type Edge struct {
	From     string
	Position types.Position
	To       string
}

// Cursor is the virtual pointer position, always expressed within the
// bounds of its CurrentScreen.
type Cursor struct {
	CurrentScreen string
	X, Y          int32
}

// StepResult is the outcome of integrating a pointer delta (§4.6).
type StepResult struct {
	Crossed bool

	// Populated when Crossed.
	From         string
	To           string
	EntryEdge    types.Position
	EntryPos     int32

	// Populated when !Crossed: the clamped cursor position on the
	// current screen.
	X, Y int32
}

// Topology is the adjacency graph plus the one virtual cursor. Screens are
// keyed and referenced by name only (never by pointer to each other),
// following §9's guidance against storing owned cross-references in a
// graph that may contain cycles.
type Topology struct {
	screens   map[string]types.Screen
	neighbors map[string]map[types.Position]string // screen -> edge -> neighbour
	cursor    Cursor
}

// New builds a Topology from a screen set and edge list, validating
// symmetry: for every edge A --[S]--> B there must be a matching
// B --[opposite(S)]--> A (spec.md §3, §8). Returns ConfigError on
// violation, duplicate screen name, or an edge referencing an unknown
// screen, per §7 ("refuse to start; no partial topology").
func New(screens []types.Screen, edges []Edge) (*Topology, error) {
	screenMap := make(map[string]types.Screen, len(screens))
	for _, s := range screens {
		if _, dup := screenMap[s.Name]; dup {
			return nil, &kvmerr.ConfigError{Reason: fmt.Sprintf("duplicate screen name %q", s.Name)}
		}
		screenMap[s.Name] = s
	}

	neighbors := make(map[string]map[types.Position]string, len(screens))
	for name := range screenMap {
		neighbors[name] = make(map[types.Position]string)
	}

	for _, e := range edges {
		if _, ok := screenMap[e.From]; !ok {
			return nil, &kvmerr.ConfigError{Reason: fmt.Sprintf("edge references unknown screen %q", e.From)}
		}
		if _, ok := screenMap[e.To]; !ok {
			return nil, &kvmerr.ConfigError{Reason: fmt.Sprintf("edge references unknown screen %q", e.To)}
		}
		if existing, dup := neighbors[e.From][e.Position]; dup && existing != e.To {
			return nil, &kvmerr.ConfigError{Reason: fmt.Sprintf(
				"screen %q already has a %s neighbour %q, cannot also set %q", e.From, e.Position, existing, e.To)}
		}
		neighbors[e.From][e.Position] = e.To
	}

	if err := validateSymmetry(neighbors); err != nil {
		return nil, err
	}

	return &Topology{screens: screenMap, neighbors: neighbors}, nil
}

func validateSymmetry(neighbors map[string]map[types.Position]string) error {
	for from, edges := range neighbors {
		for pos, to := range edges {
			opp := pos.Opposite()
			back, ok := neighbors[to][opp]
			if !ok || back != from {
				return &kvmerr.ConfigError{Reason: fmt.Sprintf(
					"topology asymmetry: %q is %s of %q, but %q is not %s of %q",
					to, pos, from, from, opp, to)}
			}
		}
	}
	return nil
}

// SetLocal designates screen as the current machine's own screen and
// places the cursor at its centre. Returns ConfigError if screen is
// unknown.
func (t *Topology) SetLocal(screen string) error {
	s, ok := t.screens[screen]
	if !ok {
		return &kvmerr.ConfigError{Reason: fmt.Sprintf("unknown local screen %q", screen)}
	}
	t.cursor = Cursor{CurrentScreen: screen, X: s.Width / 2, Y: s.Height / 2}
	return nil
}

// Reload atomically replaces the edge set after re-validating symmetry
// (§4.6 reload). The cursor's current screen, if absent from the new
// screen set, is left in place; callers are expected to have quiesced the
// session before reloading (§5).
func (t *Topology) Reload(screens []types.Screen, edges []Edge) error {
	replacement, err := New(screens, edges)
	if err != nil {
		return err
	}
	replacement.cursor = t.cursor
	*t = *replacement
	return nil
}

// Cursor returns the current virtual cursor position.
func (t *Topology) Cursor() Cursor { return t.cursor }

// Screen looks up a screen by name.
func (t *Topology) Screen(name string) (types.Screen, bool) {
	s, ok := t.screens[name]
	return s, ok
}

// Neighbor returns the screen adjacent to `screen` on `edge`, if any.
func (t *Topology) Neighbor(screen string, edge types.Position) (string, bool) {
	to, ok := t.neighbors[screen][edge]
	return to, ok
}

// Step integrates a relative pointer delta against the current screen. If
// the result would exit the screen on a side with a neighbour, it reports
// Crossed with the projected entry position on the neighbour's opposite
// edge (§4.6 entry projection); otherwise it clamps and reports Stayed,
// also moving the cursor.
func (t *Topology) Step(dx, dy int32) StepResult {
	screen := t.screens[t.cursor.CurrentScreen]
	px := t.cursor.X + dx
	py := t.cursor.Y + dy

	edge, beyond := exitEdge(screen, px, py)
	if beyond {
		if to, ok := t.neighbors[t.cursor.CurrentScreen][edge]; ok {
			offset := exitOffset(screen, edge, px, py)
			entryEdge := edge.Opposite()
			neighborScreen := t.screens[to]
			entryPos := ProjectEntry(offset, screen.EdgeLength(edge), neighborScreen.EdgeLength(entryEdge))

			return StepResult{
				Crossed:   true,
				From:      t.cursor.CurrentScreen,
				To:        to,
				EntryEdge: entryEdge,
				EntryPos:  entryPos,
			}
		}
	}

	cx, cy := screen.Clamp(px, py)
	t.cursor.X, t.cursor.Y = cx, cy
	return StepResult{X: cx, Y: cy}
}

// EnterScreen places the cursor inside `screen` one pixel inside `edge`,
// at `offset` along that edge — the effect of a completed handover
// (§4.7 Pending -> Remote on the receiving side is modelled by the peer's
// own Topology calling this after an Enter arrives targeting it; locally
// it is used when control returns via Leave).
func (t *Topology) EnterScreen(screen string, edge types.Position, offset int32) error {
	s, ok := t.screens[screen]
	if !ok {
		return &kvmerr.ConfigError{Reason: fmt.Sprintf("unknown screen %q", screen)}
	}
	x, y := entryCoordinates(s, edge, offset)
	t.cursor = Cursor{CurrentScreen: screen, X: x, Y: y}
	return nil
}

func exitEdge(s types.Screen, px, py int32) (types.Position, bool) {
	switch {
	case px < 0:
		return types.Left, true
	case px > s.Width-1:
		return types.Right, true
	case py < 0:
		return types.Up, true
	case py > s.Height-1:
		return types.Down, true
	default:
		return 0, false
	}
}

// exitOffset returns the coordinate along the exit edge (clamped into
// range) at which the cursor left the screen.
func exitOffset(s types.Screen, edge types.Position, px, py int32) int32 {
	switch edge {
	case types.Left, types.Right:
		_, cy := s.Clamp(px, py)
		return cy
	default:
		cx, _ := s.Clamp(px, py)
		return cx
	}
}

func entryCoordinates(s types.Screen, edge types.Position, offset int32) (int32, int32) {
	switch edge {
	case types.Left:
		return 0, offset
	case types.Right:
		return s.Width - 1, offset
	case types.Up:
		return offset, 0
	default: // types.Down
		return offset, s.Height - 1
	}
}

// ProjectEntry computes the entry coordinate on a neighbouring edge of
// length toLen, given an exit offset along a `fromLen`-long edge (§4.6):
// round(offset * toLen / fromLen), rounded half-to-even. Exported so the
// barrier package (and tests) can verify forward/reverse round-trips (§8).
func ProjectEntry(offset, fromLen, toLen int32) int32 {
	if fromLen == 0 {
		return 0
	}
	num := int64(offset) * int64(toLen)
	den := int64(fromLen)
	return int32(roundHalfToEven(num, den))
}

// roundHalfToEven divides num by den and rounds to the nearest integer,
// breaking exact ties toward the nearest even integer (banker's rounding),
// as required for the projection to match bit-for-bit between peers
// regardless of which side computes it (§4.6).
func roundHalfToEven(num, den int64) int64 {
	neg := (num < 0) != (den < 0)
	if num < 0 {
		num = -num
	}
	if den < 0 {
		den = -den
	}

	quot := num / den
	rem := num % den
	twice := rem * 2

	switch {
	case twice < den:
		// round down
	case twice > den:
		quot++
	default: // exact tie: round to even
		if quot%2 != 0 {
			quot++
		}
	}

	if neg {
		return -quot
	}
	return quot
}
