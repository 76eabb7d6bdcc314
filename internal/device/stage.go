package device

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Property names shared by stage variants.
const (
	propVelocity = "Velocity"
	propMin      = "Min"
	propMax      = "Max"
	propStepSize = "StepSize"
	propGoHome   = "GoHome"
)

// Travel defaults for stages that do not expose their limits.
const (
	defaultMinPosition = 0.0
	defaultMaxPosition = 9000.0
	defaultStepSize    = 1.0
	rotatorLimit       = 180.0
)

// Stage is a single-axis positioner: linear stage, rotator or one axis of a
// coupled XY stage.
//
// Position readings return NaN on failure and SetPosition returns false.
// SetVelocity and Home return an error only when the request is rejected
// before reaching the backend (ErrInvalidArgument, ErrUnsupported); backend
// failures go to the failure sink.
type Stage interface {
	Device

	Position() float64
	SetPosition(value float64) bool

	Velocity() float64
	SetVelocity(v float64) error
	AllowedVelocities() []float64

	MinPosition() float64
	MaxPosition() float64

	Home() error
}

// StageModel is the vendor policy of a single-axis stage or rotator.
type StageModel string

// Single-axis stage policies.
const (
	// StageGeneric uses the device's own Velocity/Min/Max/StepSize properties.
	StageGeneric StageModel = "generic"

	// StagePicardLinear accepts integer velocities 1..10 and homes via GoHome.
	StagePicardLinear StageModel = "picard_linear"

	// RotatorGeneric has a fixed velocity of 1 and a ±180° range.
	RotatorGeneric StageModel = "rotator_generic"

	// RotatorPicardTwister accepts integer velocities 1..10, has a ±180°
	// range and homes via GoHome.
	RotatorPicardTwister StageModel = "picard_twister"
)

// IsRotator reports whether the model describes a rotation stage.
func (m StageModel) IsRotator() bool {
	return m == RotatorGeneric || m == RotatorPicardTwister
}

// Motor is a single-axis stage or rotator driven by 1D backend calls.
type Motor struct {
	base
	model StageModel
}

// NewMotor returns a single-axis device with the given policy.
func NewMotor(env *Env, slot Slot, label string, model StageModel) *Motor {
	return &Motor{
		base:  newBase(env, slot, label, CategoryStage),
		model: model,
	}
}

// motorConstructor adapts NewMotor to the factory table.
func motorConstructor(model StageModel) Constructor {
	return func(env *Env, slot Slot, label string) Device {
		return NewMotor(env, slot, label, model)
	}
}

// Model returns the vendor policy.
func (m *Motor) Model() StageModel { return m.model }

// Position returns the live position, NaN on failure.
func (m *Motor) Position() float64 {
	v, err := m.backend().Position(m.label)
	if err != nil {
		m.fail("get_position", "", err)
		return math.NaN()
	}
	return v
}

// SetPosition commands a move and returns once the backend accepted it.
func (m *Motor) SetPosition(value float64) bool {
	if err := m.backend().SetPosition(m.label, value); err != nil {
		m.fail("set_position", "", err)
		return false
	}
	return true
}

func (m *Motor) Velocity() float64 {
	if m.model == RotatorGeneric {
		return 1
	}
	return m.PropertyFloat(propVelocity)
}

// SetVelocity validates v against the vendor policy before sending it.
func (m *Motor) SetVelocity(v float64) error {
	switch m.model {
	case RotatorGeneric:
		if v != 1 {
			return fmt.Errorf("%w: rotator velocity %v, only 1 is supported", ErrInvalidArgument, v)
		}
		return nil
	case StagePicardLinear, RotatorPicardTwister:
		if err := integerVelocity(v); err != nil {
			return err
		}
	}
	m.SetPropertyFloat(propVelocity, v)
	return nil
}

func (m *Motor) AllowedVelocities() []float64 {
	switch m.model {
	case RotatorGeneric:
		return []float64{1}
	case StagePicardLinear, RotatorPicardTwister:
		return picardVelocities()
	default:
		return parseFloats(m.AllowedValues(propVelocity))
	}
}

func (m *Motor) MinPosition() float64 {
	if m.model.IsRotator() {
		return -rotatorLimit
	}
	return travelMin(&m.base)
}

func (m *Motor) MaxPosition() float64 {
	if m.model.IsRotator() {
		return rotatorLimit
	}
	return travelMax(&m.base)
}

// Home returns the stage to its reference position. Single-axis Picard
// devices have no backend home call; setting GoHome triggers it and the call
// waits for the motion to finish.
func (m *Motor) Home() error {
	switch m.model {
	case StagePicardLinear, RotatorPicardTwister:
		if m.SetPropertyFloat(propGoHome, 1) {
			m.WaitFor(context.Background())
		}
		return nil
	default:
		return fmt.Errorf("%w: home on %s stage", ErrUnsupported, m.model)
	}
}

// integerVelocity accepts whole numbers in 1..10.
func integerVelocity(v float64) error {
	if v < 1 || v > 10 || math.Round(v) != v {
		return fmt.Errorf("%w: velocity %v is not an integer in 1..10", ErrInvalidArgument, v)
	}
	return nil
}

func picardVelocities() []float64 {
	out := make([]float64, 10)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

// parseFloats converts allowed property values to numbers, dropping values
// that do not parse. The result is sorted; nil in, nil out.
func parseFloats(values []string) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	sort.Float64s(out)
	return out
}

func stepSize(b *base) float64 {
	return b.propertyOr(propStepSize, defaultStepSize)
}

// travelMin is Min × StepSize, or 0 when the device has no Min property.
func travelMin(b *base) float64 {
	if !b.HasProperty(propMin) {
		return defaultMinPosition
	}
	return b.PropertyFloat(propMin) * stepSize(b)
}

// travelMax is Max × StepSize, or the full default travel when the device
// has no Max property.
func travelMax(b *base) float64 {
	if !b.HasProperty(propMax) {
		return defaultMaxPosition
	}
	return b.PropertyFloat(propMax) * stepSize(b)
}
