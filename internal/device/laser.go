package device

import "math"

// Laser is a light source. Power is always expressed in watts at this
// interface; vendor variants convert to and from their native units.
type Laser interface {
	Device

	PoweredOn() bool
	SetPoweredOn(on bool) bool

	// Power returns the current setpoint in W, NaN on failure.
	Power() float64

	// SetPower sets the setpoint in W.
	SetPower(watts float64) bool

	MinPower() float64
	MaxPower() float64
}

// LaserModel is the vendor policy of a laser.
type LaserModel string

// Laser vendor policies.
const (
	LaserGeneric      LaserModel = "generic"
	LaserCobolt       LaserModel = "cobolt"
	LaserCoherentCube LaserModel = "coherent_cube"
	LaserCoherentObis LaserModel = "coherent_obis"
)

const (
	propPowerSetpoint = "PowerSetpoint"
	propMinPower      = "Minimum Laser Power"
	propMaxPower      = "Maximum Laser Power"

	milliwattsPerWatt = 1000.0
)

// laserPolicy holds the unit scale of a vendor's properties: the number of
// native units per watt.
type laserPolicy struct {
	setpointScale float64
	limitScale    float64
}

var laserPolicies = map[LaserModel]laserPolicy{
	LaserGeneric:      {setpointScale: 1, limitScale: 1},
	LaserCobolt:       {setpointScale: milliwattsPerWatt, limitScale: milliwattsPerWatt},
	LaserCoherentCube: {setpointScale: milliwattsPerWatt, limitScale: milliwattsPerWatt},
	LaserCoherentObis: {setpointScale: milliwattsPerWatt, limitScale: 1},
}

// Source is a Laser with a vendor unit policy.
type Source struct {
	base
	model  LaserModel
	policy laserPolicy
}

// NewLaser returns a laser bound to label. Unknown models use the generic policy.
func NewLaser(env *Env, slot Slot, label string, model LaserModel) *Source {
	policy, ok := laserPolicies[model]
	if !ok {
		model, policy = LaserGeneric, laserPolicies[LaserGeneric]
	}
	return &Source{
		base:   newBase(env, slot, label, CategoryShutter),
		model:  model,
		policy: policy,
	}
}

func laserConstructor(model LaserModel) Constructor {
	return func(env *Env, slot Slot, label string) Device {
		return NewLaser(env, slot, label, model)
	}
}

// Model returns the vendor policy.
func (l *Source) Model() LaserModel { return l.model }

func (l *Source) PoweredOn() bool {
	on, err := l.backend().PoweredOn(l.label)
	if err != nil {
		l.fail("get_powered_on", "", err)
		return false
	}
	return on
}

func (l *Source) SetPoweredOn(on bool) bool {
	if err := l.backend().SetPoweredOn(l.label, on); err != nil {
		l.fail("set_powered_on", "", err)
		return false
	}
	return true
}

func (l *Source) Power() float64 {
	return l.PropertyFloat(propPowerSetpoint) / l.policy.setpointScale
}

func (l *Source) SetPower(watts float64) bool {
	if math.IsNaN(watts) {
		return false
	}
	return l.SetPropertyFloat(propPowerSetpoint, watts*l.policy.setpointScale)
}

func (l *Source) MinPower() float64 {
	return l.PropertyFloat(propMinPower) / l.policy.limitScale
}

func (l *Source) MaxPower() float64 {
	return l.PropertyFloat(propMaxPower) / l.policy.limitScale
}
