package device

// Camera captures images through the backend.
type Camera interface {
	Device

	// Exposure returns the exposure time in ms, -1 when unavailable.
	Exposure() float64
	SetExposure(ms float64) bool

	// Snap captures one frame and returns it, nil on failure.
	Snap() *Image
}

// Detector is the default Camera implementation.
type Detector struct {
	base
}

// NewCamera returns a camera bound to label.
func NewCamera(env *Env, slot Slot, label string) Device {
	return &Detector{base: newBase(env, slot, label, CategoryCamera)}
}

func (c *Detector) Exposure() float64 {
	ms, err := c.backend().Exposure(c.label)
	if err != nil {
		c.fail("get_exposure", "", err)
		return -1
	}
	return ms
}

func (c *Detector) SetExposure(ms float64) bool {
	if err := c.backend().SetExposure(c.label, ms); err != nil {
		c.fail("set_exposure", "", err)
		return false
	}
	return true
}

// Snap exposes a frame and fetches it. The fetch is skipped when the
// exposure itself failed.
func (c *Detector) Snap() *Image {
	if err := c.backend().SnapImage(); err != nil {
		c.fail("snap", "", err)
		return nil
	}
	img, err := c.backend().Image()
	if err != nil {
		c.fail("get_image", "", err)
		return nil
	}
	return img
}
