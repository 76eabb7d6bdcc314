package setup

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/spimrig/internal/device"
)

// Logger defines the logging interface used by the setup package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Setup composes at most one device per slot into a microscope.
//
// Capability predicates are recomputed from the backend on every call, so a
// binding whose device has since been unloaded is reported as disconnected.
//
// All public methods are thread-safe.
type Setup struct {
	registry *device.Registry

	mu      sync.RWMutex
	devices map[device.Slot]device.Device

	originProtection bool
	stats            *snapStats

	obsMu     sync.RWMutex
	observers []Observer

	logger Logger
}

// Option configures a Setup.
type Option func(*Setup)

// WithOriginMoveProtection makes MoveTo reject a move to (0, 0, 0).
func WithOriginMoveProtection(on bool) Option {
	return func(s *Setup) { s.originProtection = on }
}

// WithLogger sets the setup logger.
func WithLogger(l Logger) Option {
	return func(s *Setup) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver subscribes o before any device is bound.
func WithObserver(o Observer) Option {
	return func(s *Setup) { s.observers = append(s.observers, o) }
}

// New returns an empty setup that resolves devices through registry.
func New(registry *device.Registry, opts ...Option) *Setup {
	s := &Setup{
		registry: registry,
		devices:  make(map[device.Slot]device.Device),
		stats:    newSnapStats(snapWindow),
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDefault builds a setup with every slot bound to the label discovery
// proposes for it. Slots without a label, or whose device no factory
// handles, stay empty.
func NewDefault(registry *device.Registry, discovery Discovery, opts ...Option) *Setup {
	s := New(registry, opts...)
	for _, slot := range device.AllSlots() {
		label, ok := discovery.DefaultLabel(slot)
		if !ok {
			continue
		}
		if err := s.Bind(slot, label); err != nil {
			s.logger.Warn("default device not bound", "slot", slot, "label", label, "error", err)
		}
	}
	s.logger.Info("setup built", "bound", len(s.Bound()))
	return s
}

// Registry returns the registry devices are resolved through.
func (s *Setup) Registry() *device.Registry {
	return s.registry
}

func (s *Setup) backend() device.Backend {
	return s.registry.Backend()
}

func (s *Setup) report(op, label string, err error) {
	env := s.registry.Env()
	if env.Sink == nil {
		return
	}
	env.Sink.Report(device.Failure{
		Op:    op,
		Label: label,
		Err:   fmt.Errorf("%w: %w", device.ErrBackendCall, err),
	})
}

// Bind resolves label for slot and binds the result. An empty label unbinds
// the slot. If no factory handles the device the slot is left empty, any
// previous device is reported unbound and ErrNoFactory is returned.
func (s *Setup) Bind(slot device.Slot, label string) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %q", device.ErrUnknownSlot, slot)
	}
	if label == "" {
		s.Unbind(slot)
		return nil
	}

	d := s.registry.Resolve(slot, label)

	s.mu.Lock()
	prev, had := s.devices[slot]
	if d == nil {
		delete(s.devices, slot)
	} else {
		s.devices[slot] = d
	}
	s.mu.Unlock()

	if d == nil {
		if had {
			s.logger.Debug("device unbound", "slot", slot, "label", prev.Label())
			s.emit(Event{Type: EventUnbind, Slot: slot, Label: prev.Label(), OK: true})
		}
		return fmt.Errorf("%w: %s at %q", ErrNoFactory, slot, label)
	}

	s.logger.Debug("device bound", "slot", slot, "label", label)
	s.emit(Event{Type: EventBind, Slot: slot, Label: label, OK: true})
	return nil
}

// Put binds an already constructed device.
func (s *Setup) Put(slot device.Slot, d device.Device) {
	if d == nil {
		s.Unbind(slot)
		return
	}
	s.mu.Lock()
	s.devices[slot] = d
	s.mu.Unlock()
	s.emit(Event{Type: EventBind, Slot: slot, Label: d.Label(), OK: true})
}

// Unbind empties slot.
func (s *Setup) Unbind(slot device.Slot) {
	s.mu.Lock()
	d, ok := s.devices[slot]
	delete(s.devices, slot)
	s.mu.Unlock()

	if ok {
		s.emit(Event{Type: EventUnbind, Slot: slot, Label: d.Label(), OK: true})
	}
}

// Device returns the device bound to slot, or nil.
func (s *Setup) Device(slot device.Slot) device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices[slot]
}

// Bound returns the occupied slots in display order.
func (s *Setup) Bound() []device.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []device.Slot
	for _, slot := range device.AllSlots() {
		if _, ok := s.devices[slot]; ok {
			out = append(out, slot)
		}
	}
	return out
}

// Stage returns the stage in slot, or nil if the slot is empty or holds
// something else.
func (s *Setup) Stage(slot device.Slot) device.Stage {
	st, _ := s.Device(slot).(device.Stage)
	return st
}

func (s *Setup) XStage() device.Stage { return s.Stage(device.SlotStageX) }
func (s *Setup) YStage() device.Stage { return s.Stage(device.SlotStageY) }
func (s *Setup) ZStage() device.Stage { return s.Stage(device.SlotStageZ) }
func (s *Setup) ThetaStage() device.Stage { return s.Stage(device.SlotStageTheta) }

// Laser returns the laser in slot, or nil.
func (s *Setup) Laser(slot device.Slot) device.Laser {
	l, _ := s.Device(slot).(device.Laser)
	return l
}

// Camera returns the camera in slot, or nil.
func (s *Setup) Camera(slot device.Slot) device.Camera {
	c, _ := s.Device(slot).(device.Camera)
	return c
}

// Synchronizer returns the synchronizer device, or nil.
func (s *Setup) Synchronizer() device.Device {
	return s.Device(device.SlotSynchronizer)
}

// IsConnected reports whether slot holds a device whose label the backend
// currently lists as loaded in the device's category.
func (s *Setup) IsConnected(slot device.Slot) bool {
	d := s.Device(slot)
	if d == nil {
		return false
	}
	labels, err := s.backend().LoadedDevicesOfCategory(d.Category())
	if err != nil {
		s.report("loaded_devices", d.Label(), err)
		return false
	}
	return slices.Contains(labels, d.Label())
}

// HasZStage reports a connected vertical stage.
func (s *Setup) HasZStage() bool {
	return s.IsConnected(device.SlotStageZ)
}

// HasXYStage reports connected X and Y stages.
func (s *Setup) HasXYStage() bool {
	return s.IsConnected(device.SlotStageX) && s.IsConnected(device.SlotStageY)
}

// Has3DStage reports connected X, Y and Z stages.
func (s *Setup) Has3DStage() bool {
	return s.HasZStage() && s.HasXYStage()
}

// HasAngle reports a connected rotation stage.
func (s *Setup) HasAngle() bool {
	return s.IsConnected(device.SlotStageTheta)
}

// Has4DStage reports a connected 3D stage plus rotation.
func (s *Setup) Has4DStage() bool {
	return s.Has3DStage() && s.HasAngle()
}

// IsMinimalMicroscope reports a vertical stage and a primary camera.
func (s *Setup) IsMinimalMicroscope() bool {
	return s.HasZStage() && s.IsConnected(device.SlotCamera1)
}

// Is3DMicroscope reports a 3D stage and a primary camera.
func (s *Setup) Is3DMicroscope() bool {
	return s.Has3DStage() && s.IsConnected(device.SlotCamera1)
}

// IsMinimalSPIM reports everything needed for light-sheet imaging: a 3D
// stage, rotation, a primary camera and a primary laser.
func (s *Setup) IsMinimalSPIM() bool {
	return s.Is3DMicroscope() && s.HasAngle() && s.IsConnected(device.SlotLaser1)
}

// Capabilities is a snapshot of every predicate.
type Capabilities struct {
	ZStage     bool `json:"z_stage"`
	XYStage    bool `json:"xy_stage"`
	Stage3D    bool `json:"stage_3d"`
	Angle      bool `json:"angle"`
	Stage4D    bool `json:"stage_4d"`
	Minimal    bool `json:"minimal_microscope"`
	Microscope bool `json:"microscope_3d"`
	SPIM       bool `json:"minimal_spim"`
}

// Capabilities evaluates every predicate once.
func (s *Setup) Capabilities() Capabilities {
	return Capabilities{
		ZStage:     s.HasZStage(),
		XYStage:    s.HasXYStage(),
		Stage3D:    s.Has3DStage(),
		Angle:      s.HasAngle(),
		Stage4D:    s.Has4DStage(),
		Minimal:    s.IsMinimalMicroscope(),
		Microscope: s.Is3DMicroscope(),
		SPIM:       s.IsMinimalSPIM(),
	}
}

// SlotStatus describes one slot for status reporting.
type SlotStatus struct {
	Slot      device.Slot     `json:"slot"`
	Text      string          `json:"text"`
	Label     string          `json:"label,omitempty"`
	Model     string          `json:"model,omitempty"`
	Category  device.Category `json:"category,omitempty"`
	Connected bool            `json:"connected"`
}

// Status describes every slot in display order.
func (s *Setup) Status() []SlotStatus {
	out := make([]SlotStatus, 0, len(device.AllSlots()))
	for _, slot := range device.AllSlots() {
		st := SlotStatus{Slot: slot, Text: slot.Text()}
		if d := s.Device(slot); d != nil {
			st.Label = d.Label()
			st.Model = d.ModelName()
			st.Category = d.Category()
			st.Connected = s.IsConnected(slot)
		}
		out = append(out, st)
	}
	return out
}
