// Package sim provides an in-memory hardware backend.
//
// It stands in for real rig hardware during development and in tests. Every
// call is recorded so tests can assert on the exact sequence of hardware
// operations, and any operation can be made to fail.
package sim

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/spimrig/internal/device"
)

// Errors returned by the simulated backend.
var (
	// ErrUnknownDevice is returned for a label that is not loaded.
	ErrUnknownDevice = errors.New("sim: unknown device")

	// ErrUnknownProperty is returned for a property the device lacks.
	ErrUnknownProperty = errors.New("sim: unknown property")

	// ErrInjected is returned by operations made to fail with Fail.
	ErrInjected = errors.New("sim: injected failure")

	// ErrNoCamera is returned by SnapImage when no camera is current.
	ErrNoCamera = errors.New("sim: no current camera")
)

// Operation names used in the call log and with Fail.
const (
	OpModelName     = "modelName"
	OpHasProperty   = "hasProperty"
	OpGetProperty   = "getProperty"
	OpSetProperty   = "setProperty"
	OpAllowedValues = "allowedValues"
	OpBusy          = "busy"
	OpWaitFor       = "waitFor"
	OpGetPosition   = "getPosition"
	OpSetPosition   = "setPosition"
	OpGetXYPosition = "getXYPosition"
	OpSetXYPosition = "setXYPosition"
	OpHome          = "home"
	OpSetPoweredOn  = "setPoweredOn"
	OpPoweredOn     = "poweredOn"
	OpGetExposure   = "getExposure"
	OpSetExposure   = "setExposure"
	OpSnap          = "snap"
	OpGetImage      = "getImage"
	OpAutoShutter   = "autoShutter"
	OpLoadedDevices = "loadedDevices"
)

// DeviceSpec describes one simulated device.
type DeviceSpec struct {
	Label      string
	Model      string
	Category   device.Category
	Properties map[string]string
	Allowed    map[string][]string
}

// Call is one recorded backend call.
type Call struct {
	Op   string
	Args []any
}

// String formats the call as op(arg,arg).
func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = fmt.Sprint(a)
	}
	return c.Op + "(" + strings.Join(parts, ",") + ")"
}

type simDevice struct {
	spec     DeviceSpec
	props    map[string]string
	pos      float64
	xy       [2]float64
	powered  bool
	exposure float64
	busyTill time.Time
}

// Backend is an in-memory device.Backend.
//
// All methods are thread-safe.
type Backend struct {
	mu sync.Mutex

	devices     map[string]*simDevice
	camera      string
	autoShutter bool
	moveTime    time.Duration
	frameWidth  int
	frameHeight int
	snapped     bool
	frame       uint16

	failing map[string]error
	calls   []Call
	now     func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithAutoShutter sets the initial auto-shutter mode.
func WithAutoShutter(on bool) Option {
	return func(b *Backend) { b.autoShutter = on }
}

// WithMoveTime makes each move keep the device busy for d.
func WithMoveTime(d time.Duration) Option {
	return func(b *Backend) { b.moveTime = d }
}

// WithFrameSize sets the size of captured frames.
func WithFrameSize(width, height int) Option {
	return func(b *Backend) {
		if width > 0 && height > 0 {
			b.frameWidth, b.frameHeight = width, height
		}
	}
}

// New returns a backend with devices loaded. The first camera becomes the
// current camera.
func New(devices []DeviceSpec, opts ...Option) *Backend {
	b := &Backend{
		devices:     make(map[string]*simDevice),
		autoShutter: true,
		frameWidth:  64,
		frameHeight: 64,
		failing:     make(map[string]error),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, spec := range devices {
		b.load(spec)
	}
	return b
}

func (b *Backend) load(spec DeviceSpec) {
	d := &simDevice{spec: spec, props: make(map[string]string, len(spec.Properties))}
	for k, v := range spec.Properties {
		d.props[k] = v
	}
	b.devices[spec.Label] = d
	if spec.Category == device.CategoryCamera && b.camera == "" {
		b.camera = spec.Label
	}
}

// Load adds or replaces a device.
func (b *Backend) Load(spec DeviceSpec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.load(spec)
}

// Unload removes a device, as if the hardware configuration changed.
func (b *Backend) Unload(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devices, label)
	if b.camera == label {
		b.camera = ""
	}
}

// SetCamera selects the camera SnapImage exposes.
func (b *Backend) SetCamera(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.camera = label
}

// SetAutoShutter switches auto-shutter mode.
func (b *Backend) SetAutoShutter(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoShutter = on
}

// Fail makes every call of op return err, or ErrInjected when err is nil.
func (b *Backend) Fail(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[op] = err
}

// Heal undoes Fail for op.
func (b *Backend) Heal(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failing, op)
}

// Calls returns a copy of the call log.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// CallStrings returns the call log formatted, keeping only ops in keep
// when any are given.
func (b *Backend) CallStrings(keep ...string) []string {
	var out []string
	for _, c := range b.Calls() {
		if len(keep) > 0 && !slices.Contains(keep, c.Op) {
			continue
		}
		out = append(out, c.String())
	}
	return out
}

// ResetCalls clears the call log.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// begin records a call and returns the injected failure for op, if any.
// The caller holds b.mu.
func (b *Backend) begin(op string, args ...any) error {
	b.calls = append(b.calls, Call{Op: op, Args: args})
	return b.failing[op]
}

func (b *Backend) lookup(label string) (*simDevice, error) {
	d, ok := b.devices[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, label)
	}
	return d, nil
}

// ModelName implements device.Backend.
func (b *Backend) ModelName(label string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpModelName, label); err != nil {
		return "", err
	}
	d, err := b.lookup(label)
	if err != nil {
		return "", err
	}
	return d.spec.Model, nil
}

// HasProperty implements device.Backend.
func (b *Backend) HasProperty(label, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpHasProperty, label, name); err != nil {
		return false, err
	}
	d, err := b.lookup(label)
	if err != nil {
		return false, err
	}
	_, ok := d.props[name]
	return ok, nil
}

// Property implements device.Backend.
func (b *Backend) Property(label, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetProperty, label, name); err != nil {
		return "", err
	}
	d, err := b.lookup(label)
	if err != nil {
		return "", err
	}
	v, ok := d.props[name]
	if !ok {
		return "", fmt.Errorf("%w: %q on %q", ErrUnknownProperty, name, label)
	}
	return v, nil
}

// SetProperty implements device.Backend.
func (b *Backend) SetProperty(label, name, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpSetProperty, label, name, value); err != nil {
		return err
	}
	return b.setProperty(label, name, value)
}

// SetPropertyFloat implements device.Backend.
func (b *Backend) SetPropertyFloat(label, name string, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpSetProperty, label, name, value); err != nil {
		return err
	}
	return b.setProperty(label, name, strconv.FormatFloat(value, 'g', -1, 64))
}

func (b *Backend) setProperty(label, name, value string) error {
	d, err := b.lookup(label)
	if err != nil {
		return err
	}
	if allowed, ok := d.spec.Allowed[name]; ok && len(allowed) > 0 && !slices.Contains(allowed, value) {
		return fmt.Errorf("sim: value %q not allowed for %q on %q", value, name, label)
	}
	d.props[name] = value

	// Picard single-axis stages home through this property.
	if name == "GoHome" && value == "1" {
		d.pos = 0
		d.busyTill = b.now().Add(b.moveTime)
	}
	return nil
}

// AllowedPropertyValues implements device.Backend.
func (b *Backend) AllowedPropertyValues(label, name string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpAllowedValues, label, name); err != nil {
		return nil, err
	}
	d, err := b.lookup(label)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.spec.Allowed[name]), nil
}

// DeviceBusy implements device.Backend.
func (b *Backend) DeviceBusy(label string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpBusy, label); err != nil {
		return false, err
	}
	d, err := b.lookup(label)
	if err != nil {
		return false, err
	}
	return b.now().Before(d.busyTill), nil
}

// WaitForDevice implements device.Backend by sleeping out the remaining
// motion time.
func (b *Backend) WaitForDevice(label string) error {
	b.mu.Lock()
	if err := b.begin(OpWaitFor, label); err != nil {
		b.mu.Unlock()
		return err
	}
	d, err := b.lookup(label)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	remaining := d.busyTill.Sub(b.now())
	b.mu.Unlock()

	if remaining > 0 {
		time.Sleep(remaining)
	}
	return nil
}

// Position implements device.Backend.
func (b *Backend) Position(label string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetPosition, label); err != nil {
		return math.NaN(), err
	}
	d, err := b.lookup(label)
	if err != nil {
		return math.NaN(), err
	}
	return d.pos, nil
}

// SetPosition implements device.Backend.
func (b *Backend) SetPosition(label string, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpSetPosition, label, value); err != nil {
		return err
	}
	d, err := b.lookup(label)
	if err != nil {
		return err
	}
	d.pos = value
	d.busyTill = b.now().Add(b.moveTime)
	return nil
}

// XYPosition implements device.Backend.
func (b *Backend) XYPosition(label string) (float64, float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetXYPosition, label); err != nil {
		return math.NaN(), math.NaN(), err
	}
	d, err := b.lookup(label)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	return d.xy[0], d.xy[1], nil
}

// SetXYPosition implements device.Backend.
func (b *Backend) SetXYPosition(label string, x, y float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpSetXYPosition, label, x, y); err != nil {
		return err
	}
	d, err := b.lookup(label)
	if err != nil {
		return err
	}
	d.xy = [2]float64{x, y}
	d.busyTill = b.now().Add(b.moveTime)
	return nil
}

// Home implements device.Backend. Homed stages sit at the origin.
func (b *Backend) Home(label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpHome, label); err != nil {
		return err
	}
	d, err := b.lookup(label)
	if err != nil {
		return err
	}
	d.xy = [2]float64{}
	d.pos = 0
	d.busyTill = b.now().Add(b.moveTime)
	return nil
}

// SetPoweredOn implements device.Backend.
func (b *Backend) SetPoweredOn(label string, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpSetPoweredOn, label, on); err != nil {
		return err
	}
	d, err := b.lookup(label)
	if err != nil {
		return err
	}
	d.powered = on
	return nil
}

// PoweredOn implements device.Backend.
func (b *Backend) PoweredOn(label string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpPoweredOn, label); err != nil {
		return false, err
	}
	d, err := b.lookup(label)
	if err != nil {
		return false, err
	}
	return d.powered, nil
}

// Exposure implements device.Backend.
func (b *Backend) Exposure(label string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetExposure, label); err != nil {
		return 0, err
	}
	d, err := b.lookup(label)
	if err != nil {
		return 0, err
	}
	return d.exposure, nil
}

// SetExposure implements device.Backend.
func (b *Backend) SetExposure(label string, ms float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpSetExposure, label, ms); err != nil {
		return err
	}
	d, err := b.lookup(label)
	if err != nil {
		return err
	}
	d.exposure = ms
	return nil
}

// SnapImage implements device.Backend.
func (b *Backend) SnapImage() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpSnap); err != nil {
		return err
	}
	if b.camera == "" {
		return ErrNoCamera
	}
	b.snapped = true
	b.frame++
	return nil
}

// Image implements device.Backend. The frame is a gradient offset by the
// frame counter, so consecutive frames differ.
func (b *Backend) Image() (*device.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetImage); err != nil {
		return nil, err
	}
	if !b.snapped {
		return nil, errors.New("sim: no image captured")
	}

	w, h := b.frameWidth, b.frameHeight
	pixels := make([]uint16, w*h)
	for i := range pixels {
		pixels[i] = uint16(i%w) + b.frame
	}
	return &device.Image{
		Width:  w,
		Height: h,
		Pixels: pixels,
		Tags: map[string]string{
			"Camera": b.camera,
			"Frame":  strconv.Itoa(int(b.frame)),
		},
	}, nil
}

// AutoShutter implements device.Backend.
func (b *Backend) AutoShutter() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpAutoShutter); err != nil {
		return false, err
	}
	return b.autoShutter, nil
}

// LoadedDevicesOfCategory implements device.Backend.
func (b *Backend) LoadedDevicesOfCategory(category device.Category) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpLoadedDevices, category); err != nil {
		return nil, err
	}
	var out []string
	for label, d := range b.devices {
		if d.spec.Category == category {
			out = append(out, label)
		}
	}
	slices.Sort(out)
	return out, nil
}

var _ device.Backend = (*Backend)(nil)
