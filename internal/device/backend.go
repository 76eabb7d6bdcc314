package device

// Backend is the hardware-control system that performs all physical device
// communication. Every call is synchronous and keyed by the device label the
// backend assigned when the device was loaded.
//
// Implementations must be safe for concurrent use; stage control and image
// acquisition are commonly driven from separate goroutines.
type Backend interface {
	// ModelName returns the model (adapter) name reported for a label,
	// e.g. "Picard XY Stage". It is closer to a class name than an instance name.
	ModelName(label string) (string, error)

	HasProperty(label, name string) (bool, error)
	Property(label, name string) (string, error)
	SetProperty(label, name, value string) error
	SetPropertyFloat(label, name string, value float64) error
	AllowedPropertyValues(label, name string) ([]string, error)

	// DeviceBusy reports whether the device is still executing a command.
	DeviceBusy(label string) (bool, error)

	// WaitForDevice blocks until the device is no longer busy.
	WaitForDevice(label string) error

	// Position and SetPosition drive single-axis stages.
	Position(label string) (float64, error)
	SetPosition(label string, value float64) error

	// XYPosition and SetXYPosition drive two-axis stages. The backend only
	// supports moving both coordinates at once.
	XYPosition(label string) (x, y float64, err error)
	SetXYPosition(label string, x, y float64) error

	// Home sends the stage to its reference position.
	Home(label string) error

	// SetPoweredOn opens or closes a light source shutter.
	SetPoweredOn(label string, on bool) error
	PoweredOn(label string) (bool, error)

	Exposure(label string) (float64, error)
	SetExposure(label string, ms float64) error

	// SnapImage exposes the current camera; Image fetches the captured frame.
	SnapImage() error
	Image() (*Image, error)

	// AutoShutter reports whether the backend opens the light source itself
	// around each exposure.
	AutoShutter() (bool, error)

	// LoadedDevicesOfCategory lists the labels currently loaded in a category.
	LoadedDevicesOfCategory(category Category) ([]string, error)
}

// Image is a captured camera frame.
type Image struct {
	Width  int               `json:"width"`
	Height int               `json:"height"`
	Pixels []uint16          `json:"-"`
	Tags   map[string]string `json:"tags,omitempty"`
}
