package setup

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/spimrig/internal/device"
)

// SetPosition moves each axis whose target is non-nil; nil leaves that axis
// where it is. Without a connected 3D stage the call does nothing.
//
// t targets the rotation stage and is only applied when one is bound.
func (s *Setup) SetPosition(x, y, z, t *float64) {
	if !s.Has3DStage() {
		s.logger.Debug("position ignored, no 3D stage")
		return
	}

	targets := []struct {
		slot device.Slot
		v    *float64
	}{
		{device.SlotStageX, x},
		{device.SlotStageY, y},
		{device.SlotStageZ, z},
		{device.SlotStageTheta, t},
	}
	for _, tg := range targets {
		if tg.v == nil {
			continue
		}
		st := s.Stage(tg.slot)
		if st == nil {
			continue
		}
		ok := st.SetPosition(*tg.v)
		s.emit(Event{Type: EventMove, Slot: tg.slot, Label: st.Label(), OK: ok, Value: floatPtr(*tg.v)})
	}
}

// Position returns the live 3D stage position, or the zero vector without a
// connected 3D stage. Failed readings are NaN.
func (s *Setup) Position() Vector {
	if !s.Has3DStage() {
		return Vector{}
	}
	return Vector{
		X: s.XStage().Position(),
		Y: s.YStage().Position(),
		Z: s.ZStage().Position(),
	}
}

// Angle returns the rotation stage position, NaN without one.
func (s *Setup) Angle() float64 {
	st := s.ThetaStage()
	if st == nil {
		return math.NaN()
	}
	return st.Position()
}

// MoveTo moves the 3D stage to target. With wait set it blocks until the XY
// and Z devices report idle.
//
// Returns:
//   - ErrOriginMoveRejected: origin protection is on and target is (0, 0, 0)
//   - ErrNo3DStage: X, Y and Z are not all connected
func (s *Setup) MoveTo(ctx context.Context, target Vector, wait bool) error {
	if s.originProtection && target.IsOrigin() {
		s.logger.Warn("move to origin rejected")
		return ErrOriginMoveRejected
	}
	if !s.Has3DStage() {
		return ErrNo3DStage
	}

	x, y, z := s.XStage(), s.YStage(), s.ZStage()
	ok := x.SetPosition(target.X)
	ok = y.SetPosition(target.Y) && ok
	ok = z.SetPosition(target.Z) && ok

	if wait {
		// X and Y usually share a label; waiting on one waits on both.
		x.WaitFor(ctx)
		if y.Label() != x.Label() {
			y.WaitFor(ctx)
		}
		z.WaitFor(ctx)
	}

	pos := target
	s.emit(Event{Type: EventMove, Label: x.Label(), OK: ok, Position: &pos})
	return nil
}

// Home homes the stage in slot.
func (s *Setup) Home(slot device.Slot) error {
	st := s.Stage(slot)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrSlotUnbound, slot)
	}
	if err := st.Home(); err != nil {
		return err
	}
	s.emit(Event{Type: EventHome, Slot: slot, Label: st.Label(), OK: true})
	return nil
}

// SetVelocity sets the velocity of the stage in slot.
func (s *Setup) SetVelocity(slot device.Slot, v float64) error {
	st := s.Stage(slot)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrSlotUnbound, slot)
	}
	if err := st.SetVelocity(v); err != nil {
		return err
	}
	s.emit(Event{Type: EventVelocity, Slot: slot, Label: st.Label(), OK: true, Value: floatPtr(v)})
	return nil
}

// SetLaserPower sets the power of the laser in slot in watts.
func (s *Setup) SetLaserPower(slot device.Slot, watts float64) error {
	l, err := s.laser(slot)
	if err != nil {
		return err
	}
	ok := l.SetPower(watts)
	s.emit(Event{Type: EventLaser, Slot: slot, Label: l.Label(), OK: ok, Value: floatPtr(watts)})
	return nil
}

// SetLaserOn switches the laser in slot.
func (s *Setup) SetLaserOn(slot device.Slot, on bool) error {
	l, err := s.laser(slot)
	if err != nil {
		return err
	}
	ok := l.SetPoweredOn(on)
	s.emit(Event{Type: EventLaser, Slot: slot, Label: l.Label(), OK: ok, On: boolPtr(on)})
	return nil
}

func (s *Setup) laser(slot device.Slot) (device.Laser, error) {
	d := s.Device(slot)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrSlotUnbound, slot)
	}
	l, ok := d.(device.Laser)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a laser", ErrWrongDeviceKind, slot)
	}
	return l, nil
}
