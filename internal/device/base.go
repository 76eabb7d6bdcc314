package device

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultWaitTimeout bounds WaitFor when no other timeout is configured.
const DefaultWaitTimeout = 30 * time.Second

// Device is the capability contract shared by every wrapped device.
//
// Backend failures never surface as errors here. They are reported to the
// registry's FailureSink and the call returns a sentinel: false for checks
// and setters, "" with ok=false for strings, NaN for numbers and nil for
// collections. Callers must treat a sentinel as "operation failed".
type Device interface {
	// Label is the backend label the device is bound to.
	Label() string

	// Slot is the slot the device was resolved for.
	Slot() Slot

	// Category is the backend category the device is expected to be loaded as.
	Category() Category

	// ModelName is the model name the backend reports; "" on failure.
	ModelName() string

	HasProperty(name string) bool
	Property(name string) (string, bool)
	PropertyFloat(name string) float64
	SetProperty(name, value string) bool
	SetPropertyFloat(name string, value float64) bool
	AllowedValues(name string) []string

	// IsBusy reports whether the device is executing a command.
	IsBusy() bool

	// WaitFor blocks until the device is idle, ctx is done or the wait bound
	// expires. It returns true only when the device became idle.
	WaitFor(ctx context.Context) bool
}

// Env is the shared environment handed to every device constructor.
type Env struct {
	Backend     Backend
	Sink        FailureSink
	WaitTimeout time.Duration

	groups *groupPool
}

// NewEnv returns an environment for devices built outside a Registry.
// A nil sink discards failures.
func NewEnv(backend Backend, sink FailureSink) *Env {
	if sink == nil {
		sink = discardSink{}
	}
	return &Env{
		Backend:     backend,
		Sink:        sink,
		WaitTimeout: DefaultWaitTimeout,
		groups:      newGroupPool(),
	}
}

func (e *Env) report(f Failure) {
	if e.Sink == nil {
		return
	}
	e.Sink.Report(f)
}

// base implements Device by delegating to the backend.
// prefix namespaces property names, which coupled axes use to share a label.
type base struct {
	env      *Env
	label    string
	slot     Slot
	category Category
	prefix   string
}

func newBase(env *Env, slot Slot, label string, category Category) base {
	return base{env: env, label: label, slot: slot, category: category}
}

func (b *base) Label() string { return b.label }
func (b *base) Slot() Slot { return b.slot }
func (b *base) Category() Category { return b.category }
func (b *base) backend() Backend { return b.env.Backend }
func (b *base) key(name string) string { return b.prefix + name }

// fail reports a backend failure for op.
func (b *base) fail(op, property string, err error) {
	b.env.report(Failure{
		Op:       op,
		Label:    b.label,
		Property: property,
		Err:      fmt.Errorf("%w: %w", ErrBackendCall, err),
	})
}

func (b *base) ModelName() string {
	name, err := b.backend().ModelName(b.label)
	if err != nil {
		b.fail("model_name", "", err)
		return ""
	}
	return name
}

func (b *base) HasProperty(name string) bool {
	ok, err := b.backend().HasProperty(b.label, b.key(name))
	if err != nil {
		b.fail("has_property", b.key(name), err)
		return false
	}
	return ok
}

func (b *base) Property(name string) (string, bool) {
	v, err := b.backend().Property(b.label, b.key(name))
	if err != nil {
		b.fail("get_property", b.key(name), err)
		return "", false
	}
	return v, true
}

// PropertyFloat parses a property as a number. Both a failed read and a
// value that does not parse yield NaN.
func (b *base) PropertyFloat(name string) float64 {
	v, ok := b.Property(name)
	if !ok {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		b.env.report(Failure{
			Op:       "parse_property",
			Label:    b.label,
			Property: b.key(name),
			Err:      err,
		})
		return math.NaN()
	}
	return f
}

func (b *base) SetProperty(name, value string) bool {
	if err := b.backend().SetProperty(b.label, b.key(name), value); err != nil {
		b.fail("set_property", b.key(name), err)
		return false
	}
	return true
}

func (b *base) SetPropertyFloat(name string, value float64) bool {
	if err := b.backend().SetPropertyFloat(b.label, b.key(name), value); err != nil {
		b.fail("set_property", b.key(name), err)
		return false
	}
	return true
}

func (b *base) AllowedValues(name string) []string {
	values, err := b.backend().AllowedPropertyValues(b.label, b.key(name))
	if err != nil {
		b.fail("allowed_values", b.key(name), err)
		return nil
	}
	return values
}

func (b *base) IsBusy() bool {
	busy, err := b.backend().DeviceBusy(b.label)
	if err != nil {
		b.fail("busy", "", err)
		return false
	}
	return busy
}

func (b *base) WaitFor(ctx context.Context) bool {
	timeout := b.env.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	// Buffered so the waiting goroutine can always finish after we give up.
	done := make(chan error, 1)
	go func() {
		done <- b.backend().WaitForDevice(b.label)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			b.fail("wait", "", err)
			return false
		}
		return true
	case <-timer.C:
		b.env.report(Failure{
			Op:    "wait",
			Label: b.label,
			Err:   fmt.Errorf("%w after %s", ErrWaitTimeout, timeout),
		})
		return false
	case <-ctx.Done():
		b.env.report(Failure{
			Op:    "wait",
			Label: b.label,
			Err:   fmt.Errorf("%w: %w", ErrWaitTimeout, ctx.Err()),
		})
		return false
	}
}

// propertyOr reads a numeric property, falling back to def when the device
// does not expose it.
func (b *base) propertyOr(name string, def float64) float64 {
	if !b.HasProperty(name) {
		return def
	}
	return b.PropertyFloat(name)
}

// Generic is a device with no category-specific behaviour, used for the
// synchronizer slot.
type Generic struct {
	base
}

// NewGeneric returns a plain device bound to label.
func NewGeneric(env *Env, slot Slot, label string) Device {
	return &Generic{base: newBase(env, slot, label, CategoryGeneric)}
}
