package device

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

var errMockBackend = errors.New("mock backend failure")

// mockBackend is an in-memory Backend that records every call.
type mockBackend struct {
	mu sync.Mutex

	models     map[string]string
	props      map[string]map[string]string
	allowed    map[string]map[string][]string
	positions  map[string]float64
	xy         map[string][2]float64
	powered    map[string]bool
	exposures  map[string]float64
	busy       map[string]bool
	loaded     map[Category][]string
	autoShut   bool
	failing    map[string]error
	waitBlocks chan struct{}

	calls []string
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		models:    make(map[string]string),
		props:     make(map[string]map[string]string),
		allowed:   make(map[string]map[string][]string),
		positions: make(map[string]float64),
		xy:        make(map[string][2]float64),
		powered:   make(map[string]bool),
		exposures: make(map[string]float64),
		busy:      make(map[string]bool),
		loaded:    make(map[Category][]string),
		failing:   make(map[string]error),
	}
}

// fail makes every call of op return errMockBackend.
func (m *mockBackend) fail(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[op] = errMockBackend
}

func (m *mockBackend) heal(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failing, op)
}

func (m *mockBackend) setProp(label, name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.props[label] == nil {
		m.props[label] = make(map[string]string)
	}
	m.props[label][name] = value
}

// record logs a call and returns the injected error for op, if any.
func (m *mockBackend) record(op string, args ...any) error {
	call := op + "("
	for i, a := range args {
		if i > 0 {
			call += ","
		}
		call += fmt.Sprint(a)
	}
	m.calls = append(m.calls, call+")")
	return m.failing[op]
}

func (m *mockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// callsTo returns the logged calls whose op is op.
func (m *mockBackend) callsTo(op string) []string {
	var out []string
	for _, c := range m.Calls() {
		if len(c) > len(op) && c[:len(op)+1] == op+"(" {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockBackend) resetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *mockBackend) ModelName(label string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("modelName", label); err != nil {
		return "", err
	}
	name, ok := m.models[label]
	if !ok {
		return "", fmt.Errorf("no device %q", label)
	}
	return name, nil
}

func (m *mockBackend) HasProperty(label, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("hasProperty", label, name); err != nil {
		return false, err
	}
	_, ok := m.props[label][name]
	return ok, nil
}

func (m *mockBackend) Property(label, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("getProperty", label, name); err != nil {
		return "", err
	}
	v, ok := m.props[label][name]
	if !ok {
		return "", fmt.Errorf("no property %q on %q", name, label)
	}
	return v, nil
}

func (m *mockBackend) SetProperty(label, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("setProperty", label, name, value); err != nil {
		return err
	}
	if m.props[label] == nil {
		m.props[label] = make(map[string]string)
	}
	m.props[label][name] = value
	return nil
}

func (m *mockBackend) SetPropertyFloat(label, name string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("setProperty", label, name, value); err != nil {
		return err
	}
	if m.props[label] == nil {
		m.props[label] = make(map[string]string)
	}
	m.props[label][name] = strconv.FormatFloat(value, 'g', -1, 64)
	return nil
}

func (m *mockBackend) AllowedPropertyValues(label, name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("allowedValues", label, name); err != nil {
		return nil, err
	}
	return m.allowed[label][name], nil
}

func (m *mockBackend) DeviceBusy(label string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("busy", label); err != nil {
		return false, err
	}
	return m.busy[label], nil
}

func (m *mockBackend) WaitForDevice(label string) error {
	m.mu.Lock()
	err := m.record("waitFor", label)
	block := m.waitBlocks
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (m *mockBackend) Position(label string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("getPosition", label); err != nil {
		return 0, err
	}
	return m.positions[label], nil
}

func (m *mockBackend) SetPosition(label string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("setPosition", label, value); err != nil {
		return err
	}
	m.positions[label] = value
	return nil
}

func (m *mockBackend) XYPosition(label string) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("getXYPosition", label); err != nil {
		return 0, 0, err
	}
	p := m.xy[label]
	return p[0], p[1], nil
}

func (m *mockBackend) SetXYPosition(label string, x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("setXYPosition", label, x, y); err != nil {
		return err
	}
	m.xy[label] = [2]float64{x, y}
	return nil
}

func (m *mockBackend) Home(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("home", label); err != nil {
		return err
	}
	m.xy[label] = [2]float64{}
	return nil
}

func (m *mockBackend) SetPoweredOn(label string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("setPoweredOn", label, on); err != nil {
		return err
	}
	m.powered[label] = on
	return nil
}

func (m *mockBackend) PoweredOn(label string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("poweredOn", label); err != nil {
		return false, err
	}
	return m.powered[label], nil
}

func (m *mockBackend) Exposure(label string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("getExposure", label); err != nil {
		return 0, err
	}
	return m.exposures[label], nil
}

func (m *mockBackend) SetExposure(label string, ms float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("setExposure", label, ms); err != nil {
		return err
	}
	m.exposures[label] = ms
	return nil
}

func (m *mockBackend) SnapImage() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("snap")
}

func (m *mockBackend) Image() (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("getImage"); err != nil {
		return nil, err
	}
	return &Image{Width: 2, Height: 2, Pixels: []uint16{1, 2, 3, 4}}, nil
}

func (m *mockBackend) AutoShutter() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("autoShutter"); err != nil {
		return false, err
	}
	return m.autoShut, nil
}

func (m *mockBackend) LoadedDevicesOfCategory(category Category) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("loadedDevices", category); err != nil {
		return nil, err
	}
	return m.loaded[category], nil
}
