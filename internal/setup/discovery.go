package setup

import (
	"fmt"
	"slices"

	"github.com/nerrad567/spimrig/internal/device"
)

// Discovery proposes a backend label for each slot.
type Discovery interface {
	// DefaultLabel returns the label to bind to slot, if any.
	DefaultLabel(slot device.Slot) (string, bool)

	// LoadedLabels lists every label the backend has loaded.
	LoadedLabels() []string
}

// Defaults names the backend's primary devices. Slots maps individual slots
// to labels and wins over the primary devices.
type Defaults struct {
	XYStage string
	Focus   string
	Shutter string
	Camera  string
	Slots   map[device.Slot]string
}

// BackendDiscovery derives default labels from the primary devices and the
// devices the backend has loaded.
//
// Primary slots use the configured primary device. Secondary slots (rotation
// stage, second laser, second camera) take the one other loaded device of
// the matching category; with none or several candidates the slot stays
// empty.
type BackendDiscovery struct {
	backend  device.Backend
	defaults Defaults
	sink     device.FailureSink
}

// NewBackendDiscovery returns a discovery over backend. A nil sink discards
// failures.
func NewBackendDiscovery(backend device.Backend, defaults Defaults, sink device.FailureSink) *BackendDiscovery {
	if sink == nil {
		sink = device.FailureSinkFunc(func(device.Failure) {})
	}
	return &BackendDiscovery{backend: backend, defaults: defaults, sink: sink}
}

// DefaultLabel implements Discovery.
func (d *BackendDiscovery) DefaultLabel(slot device.Slot) (string, bool) {
	if label, ok := d.defaults.Slots[slot]; ok {
		return label, label != ""
	}

	var label string
	switch slot {
	case device.SlotStageX, device.SlotStageY:
		label = d.defaults.XYStage
	case device.SlotStageZ:
		label = d.defaults.Focus
	case device.SlotStageTheta:
		label = d.secondary(device.CategoryStage, d.defaults.Focus)
	case device.SlotLaser1:
		label = d.defaults.Shutter
	case device.SlotLaser2:
		label = d.secondary(device.CategoryShutter, d.defaults.Shutter)
	case device.SlotCamera1:
		label = d.defaults.Camera
	case device.SlotCamera2:
		label = d.secondary(device.CategoryCamera, d.defaults.Camera)
	}
	return label, label != ""
}

// secondary returns the single loaded device of category other than except.
func (d *BackendDiscovery) secondary(category device.Category, except string) string {
	labels, err := d.backend.LoadedDevicesOfCategory(category)
	if err != nil {
		d.sink.Report(device.Failure{
			Op:  "loaded_devices",
			Err: fmt.Errorf("%w: %w", device.ErrBackendCall, err),
		})
		return ""
	}

	other := ""
	for _, l := range labels {
		if l == except {
			continue
		}
		if other != "" {
			return ""
		}
		other = l
	}
	return other
}

// LoadedLabels implements Discovery.
func (d *BackendDiscovery) LoadedLabels() []string {
	var out []string
	for _, c := range []device.Category{
		device.CategoryCamera,
		device.CategoryShutter,
		device.CategoryStage,
		device.CategoryXYStage,
		device.CategoryGeneric,
	} {
		labels, err := d.backend.LoadedDevicesOfCategory(c)
		if err != nil {
			d.sink.Report(device.Failure{
				Op:  "loaded_devices",
				Err: fmt.Errorf("%w: %w", device.ErrBackendCall, err),
			})
			continue
		}
		for _, l := range labels {
			if !slices.Contains(out, l) {
				out = append(out, l)
			}
		}
	}
	slices.Sort(out)
	return out
}
