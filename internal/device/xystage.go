package device

import (
	"fmt"
	"math"
	"sync"
)

// Axis selects one coordinate of a coupled XY stage.
type Axis int

// The two axes of a coupled stage.
const (
	AxisX Axis = iota
	AxisY
)

// String returns "X" or "Y".
func (a Axis) String() string {
	if a == AxisX {
		return "X"
	}
	return "Y"
}

// other returns the opposite axis.
func (a Axis) other() Axis {
	return 1 - a
}

// prefix namespaces the axis's properties on the shared label.
func (a Axis) prefix() string {
	return a.String() + "-"
}

// pick selects this axis's value from an (x, y) pair.
func (a Axis) pick(x, y float64) float64 {
	if a == AxisX {
		return x
	}
	return y
}

// axisForSlot maps the horizontal stage slots to their axis.
func axisForSlot(slot Slot) (Axis, bool) {
	switch slot {
	case SlotStageX:
		return AxisX, true
	case SlotStageY:
		return AxisY, true
	default:
		return 0, false
	}
}

// XYModel is the vendor policy of a coupled stage group.
type XYModel string

// Coupled stage vendor policies.
const (
	// XYGeneric has free velocity and no home operation.
	XYGeneric XYModel = "generic"

	// XYPicard accepts integer velocities 1..10 and homes through the backend.
	XYPicard XYModel = "picard"
)

// GroupState tracks which axis handles of a group have been created.
type GroupState int

// Group states.
const (
	GroupUninitialized GroupState = iota
	GroupXBound
	GroupYBound
	GroupBothBound
)

// String returns the state name.
func (s GroupState) String() string {
	switch s {
	case GroupXBound:
		return "x_bound"
	case GroupYBound:
		return "y_bound"
	case GroupBothBound:
		return "both_bound"
	default:
		return "uninitialized"
	}
}

// XYGroup is the shared state of one physical two-axis stage. The backend
// can only move both coordinates at once, so the group remembers the last
// commanded destination of each axis and fills in the other coordinate on
// every single-axis move.
//
// A destination is unknown until the axis is moved or the other axis needs
// it. Homing forgets both. All cache access and the query-move-update
// sequence of a move run under one mutex per group.
type XYGroup struct {
	env   *Env
	label string
	model XYModel

	mu    sync.Mutex
	dest  [2]float64
	known [2]bool
	axes  [2]*XYAxis
}

func newXYGroup(env *Env, label string, model XYModel) *XYGroup {
	return &XYGroup{env: env, label: label, model: model}
}

// Label returns the backend label shared by both axes.
func (g *XYGroup) Label() string { return g.label }

// Model returns the vendor policy of the group.
func (g *XYGroup) Model() XYModel { return g.model }

// Axis returns the handle for a, creating it on first request. Repeated
// requests return the same handle.
func (g *XYGroup) Axis(a Axis) *XYAxis {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.axes[a] == nil {
		slot := SlotStageX
		if a == AxisY {
			slot = SlotStageY
		}
		ax := &XYAxis{
			base:  newBase(g.env, slot, g.label, CategoryXYStage),
			group: g,
			axis:  a,
		}
		ax.prefix = a.prefix()
		g.axes[a] = ax
	}
	return g.axes[a]
}

// State reports which axis handles exist.
func (g *XYGroup) State() GroupState {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.axes[AxisX] != nil && g.axes[AxisY] != nil:
		return GroupBothBound
	case g.axes[AxisX] != nil:
		return GroupXBound
	case g.axes[AxisY] != nil:
		return GroupYBound
	default:
		return GroupUninitialized
	}
}

// Destination returns the cached destination of a and whether it is known.
func (g *XYGroup) Destination(a Axis) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.known[a] {
		return math.NaN(), false
	}
	return g.dest[a], true
}

// move drives axis a to value while keeping the other axis where it is.
//
// If the other axis's destination is unknown its live position is queried
// once and adopted. If that query fails the move is not issued, since the
// only coordinate left to send would be a guess.
func (g *XYGroup) move(a Axis, value float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	other := a.other()
	if !g.known[other] {
		x, y, err := g.env.Backend.XYPosition(g.label)
		if err != nil {
			g.fail("get_xy_position", err)
			return false
		}
		g.dest[other] = other.pick(x, y)
		g.known[other] = true
	}

	x, y := value, g.dest[other]
	if a == AxisY {
		x, y = g.dest[other], value
	}
	if err := g.env.Backend.SetXYPosition(g.label, x, y); err != nil {
		g.fail("set_xy_position", err)
		return false
	}

	g.dest[a] = value
	g.known[a] = true
	return true
}

// position reads the live coordinate of a. It does not touch the cache.
func (g *XYGroup) position(a Axis) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	x, y, err := g.env.Backend.XYPosition(g.label)
	if err != nil {
		g.fail("get_xy_position", err)
		return math.NaN()
	}
	return a.pick(x, y)
}

// Home sends the stage to its reference position and forgets both cached
// destinations. The cache is cleared even when the home call fails, since
// the stage may have moved part of the way.
func (g *XYGroup) Home() error {
	if g.model != XYPicard {
		return fmt.Errorf("%w: home on %s xy stage", ErrUnsupported, g.model)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.env.Backend.Home(g.label); err != nil {
		g.fail("home", err)
	}
	g.known = [2]bool{}
	g.dest = [2]float64{}
	return nil
}

func (g *XYGroup) fail(op string, err error) {
	g.env.report(Failure{
		Op:    op,
		Label: g.label,
		Err:   fmt.Errorf("%w: %w", ErrBackendCall, err),
	})
}

// XYAxis presents one axis of a coupled stage as an independent Stage.
// Its properties are the group label's properties prefixed with "X-" or "Y-".
type XYAxis struct {
	base
	group *XYGroup
	axis  Axis
}

// Group returns the coupled group this axis belongs to.
func (s *XYAxis) Group() *XYGroup { return s.group }

// Axis returns which coordinate this handle drives.
func (s *XYAxis) Axis() Axis { return s.axis }

// Position returns the live coordinate, NaN on failure.
func (s *XYAxis) Position() float64 {
	return s.group.position(s.axis)
}

// SetPosition moves this axis, leaving the other axis at its destination.
func (s *XYAxis) SetPosition(value float64) bool {
	return s.group.move(s.axis, value)
}

func (s *XYAxis) Velocity() float64 {
	return s.PropertyFloat(propVelocity)
}

func (s *XYAxis) SetVelocity(v float64) error {
	if s.group.model == XYPicard {
		if err := integerVelocity(v); err != nil {
			return err
		}
	}
	s.SetPropertyFloat(propVelocity, v)
	return nil
}

func (s *XYAxis) AllowedVelocities() []float64 {
	if s.group.model == XYPicard {
		return picardVelocities()
	}
	return parseFloats(s.AllowedValues(propVelocity))
}

func (s *XYAxis) MinPosition() float64 {
	return travelMin(&s.base)
}

func (s *XYAxis) MaxPosition() float64 {
	return travelMax(&s.base)
}

// Home homes the whole group. Both axes lose their cached destinations.
func (s *XYAxis) Home() error {
	return s.group.Home()
}

// xyAxisConstructor resolves stage_x or stage_y to an axis of the pooled
// group for the label.
func xyAxisConstructor(model XYModel) Constructor {
	return func(env *Env, slot Slot, label string) Device {
		a, ok := axisForSlot(slot)
		if !ok {
			return nil
		}
		return env.groups.obtain(env, label, model).Axis(a)
	}
}
