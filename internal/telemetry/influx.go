package telemetry

import (
	"time"

	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/setup"
)

// PointWriter is the part of influxdb.Client the sink writes through.
type PointWriter interface {
	WriteStagePosition(slot, label string, axes map[string]float64, ok bool, at time.Time)
	WriteLaser(slot, label string, watts *float64, on *bool, ok bool, at time.Time)
	WriteSnap(label string, duration time.Duration, width, height int, ok bool, at time.Time)
	WriteFailure(op, label, property string, at time.Time)
}

// InfluxSink forwards rig events and backend failures to InfluxDB.
type InfluxSink struct {
	w   PointWriter
	now func() time.Time
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w, now: time.Now}
}

// Notify implements setup.Observer. Bind, unbind, home and velocity
// events carry no measurement and are skipped.
func (s *InfluxSink) Notify(e setup.Event) {
	switch e.Type {
	case setup.EventMove:
		if axes := moveAxes(e); len(axes) > 0 {
			s.w.WriteStagePosition(string(e.Slot), e.Label, axes, e.OK, e.Time)
		}
	case setup.EventLaser:
		s.w.WriteLaser(string(e.Slot), e.Label, e.Value, e.On, e.OK, e.Time)
	case setup.EventSnap:
		s.w.WriteSnap(e.Label, e.Duration, e.Width, e.Height, e.OK, e.Time)
	}
}

// Report implements device.FailureSink.
func (s *InfluxSink) Report(f device.Failure) {
	s.w.WriteFailure(f.Op, f.Label, f.Property, s.now())
}

// moveAxes maps a move event onto axis fields: x/y/z for 3D moves, or the
// single axis the slot drives.
func moveAxes(e setup.Event) map[string]float64 {
	if e.Position != nil {
		return map[string]float64{"x": e.Position.X, "y": e.Position.Y, "z": e.Position.Z}
	}
	if e.Value == nil {
		return nil
	}
	axis := map[device.Slot]string{
		device.SlotStageX:     "x",
		device.SlotStageY:     "y",
		device.SlotStageZ:     "z",
		device.SlotStageTheta: "theta",
	}[e.Slot]
	if axis == "" {
		return nil
	}
	return map[string]float64{axis: *e.Value}
}

var (
	_ setup.Observer     = (*InfluxSink)(nil)
	_ device.FailureSink = (*InfluxSink)(nil)
)
