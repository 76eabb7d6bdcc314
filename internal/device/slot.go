package device

import "fmt"

// Slot is a logical role a device can occupy in a microscope setup.
// The set is closed: a setup holds at most one device per slot.
type Slot string

// The nine rig slots.
const (
	SlotStageX       Slot = "stage_x"
	SlotStageY       Slot = "stage_y"
	SlotStageZ       Slot = "stage_z"
	SlotStageTheta   Slot = "stage_theta"
	SlotLaser1       Slot = "laser1"
	SlotLaser2       Slot = "laser2"
	SlotCamera1      Slot = "camera1"
	SlotCamera2      Slot = "camera2"
	SlotSynchronizer Slot = "synchronizer"
)

// AllSlots returns every slot in display order.
func AllSlots() []Slot {
	return []Slot{
		SlotStageX,
		SlotStageY,
		SlotStageZ,
		SlotStageTheta,
		SlotLaser1,
		SlotLaser2,
		SlotCamera1,
		SlotCamera2,
		SlotSynchronizer,
	}
}

var slotText = map[Slot]string{
	SlotStageX:       "X Stage",
	SlotStageY:       "Y Stage",
	SlotStageZ:       "Z Stage",
	SlotStageTheta:   "Angle",
	SlotLaser1:       "Laser",
	SlotLaser2:       "Laser (2)",
	SlotCamera1:      "Camera",
	SlotCamera2:      "Camera (2)",
	SlotSynchronizer: "Synchronizer",
}

// Text returns the human-readable name of the slot.
func (s Slot) Text() string {
	if t, ok := slotText[s]; ok {
		return t
	}
	return string(s)
}

// Valid reports whether s is one of the nine slots.
func (s Slot) Valid() bool {
	_, ok := slotText[s]
	return ok
}

// ParseSlot converts a slot key such as "stage_z" into a Slot.
func ParseSlot(key string) (Slot, error) {
	s := Slot(key)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSlot, key)
	}
	return s, nil
}

// Category is the backend's classification of a loaded device. It is used
// to check that a bound label is still loaded as the kind of device the
// wrapper expects.
type Category string

// Device categories understood by the backend.
const (
	CategoryCamera  Category = "camera"
	CategoryShutter Category = "shutter"
	CategoryStage   Category = "stage"
	CategoryXYStage Category = "xy_stage"
	CategoryGeneric Category = "generic"
)

// DefaultCategory returns the category a device bound to the slot normally
// reports. Coupled X/Y axes report CategoryXYStage instead of this default.
func (s Slot) DefaultCategory() Category {
	switch s {
	case SlotStageX, SlotStageY, SlotStageZ, SlotStageTheta:
		return CategoryStage
	case SlotLaser1, SlotLaser2:
		return CategoryShutter
	case SlotCamera1, SlotCamera2:
		return CategoryCamera
	default:
		return CategoryGeneric
	}
}
