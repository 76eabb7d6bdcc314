package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by spimrig.
const (
	MeasurementStage = "stage_position"
	MeasurementLaser = "laser"
	MeasurementSnap  = "snap"
	MeasurementFault = "backend_failure"
)

// WriteStagePosition records where a stage ended up after a move.
// Single-axis stages pass only the axis they drive.
//
// Parameters:
//   - slot: Setup slot of the stage (e.g. "stage_z"), or "" for 3D moves
//   - label: Backend device label
//   - axes: Axis name to position in micrometres (e.g. {"z": 125.5})
//   - ok: false if the backend reported a failure for the move
//   - at: Time the move completed
func (c *Client) WriteStagePosition(slot, label string, axes map[string]float64, ok bool, at time.Time) {
	fields := make(map[string]any, len(axes)+1)
	for axis, v := range axes {
		fields[axis] = v
	}
	fields["ok"] = ok
	c.write(write.NewPoint(MeasurementStage, deviceTags(slot, label), fields, at))
}

// WriteLaser records a laser power or switch change. A nil argument leaves
// that field out of the point.
func (c *Client) WriteLaser(slot, label string, watts *float64, on *bool, ok bool, at time.Time) {
	fields := map[string]any{"ok": ok}
	if watts != nil {
		fields["power_w"] = *watts
	}
	if on != nil {
		fields["on"] = *on
	}
	c.write(write.NewPoint(MeasurementLaser, deviceTags(slot, label), fields, at))
}

// WriteSnap records one acquired frame.
//
// Parameters:
//   - label: Camera label
//   - duration: Wall time of the snap sequence
//   - width, height: Frame geometry in pixels (0 when the snap failed)
//   - ok: Whether the snap produced an image
//   - at: Time the snap completed
func (c *Client) WriteSnap(label string, duration time.Duration, width, height int, ok bool, at time.Time) {
	c.write(write.NewPoint(MeasurementSnap,
		map[string]string{"label": label},
		map[string]any{
			"duration_ms": float64(duration) / float64(time.Millisecond),
			"width":       width,
			"height":      height,
			"ok":          ok,
		},
		at,
	))
}

// WriteFailure records a backend call failure.
func (c *Client) WriteFailure(op, label, property string, at time.Time) {
	tags := map[string]string{"op": op, "label": label}
	if property != "" {
		tags["property"] = property
	}
	c.write(write.NewPoint(MeasurementFault, tags, map[string]any{"count": 1}, at))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	c.write(write.NewPoint(measurement, tags, fields, at))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func deviceTags(slot, label string) map[string]string {
	tags := map[string]string{"label": label}
	if slot != "" {
		tags["slot"] = slot
	}
	return tags
}
