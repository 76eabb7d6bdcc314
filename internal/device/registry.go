package device

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// WildcardModel is the model name of a fallback factory. It matches any
// model that has no exact registration for the slot.
const WildcardModel = "*"

// Constructor builds a typed device for a label resolved in slot.
type Constructor func(env *Env, slot Slot, label string) Device

// Factory is one row of the factory table: a constructor claiming a model
// name for one or more slots.
type Factory struct {
	Model string
	Slots []Slot
	New   Constructor
}

// Registry maps (slot, model name) to a constructor and resolves backend
// labels to typed devices.
//
// A Registry is built once from a static table and never mutated afterwards.
// It also owns the process-wide pool of coupled XY stage groups, so every
// axis resolved for the same label shares one group.
//
// All public methods are thread-safe.
type Registry struct {
	env       *Env
	factories map[Slot]map[string]Constructor
	logger    Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithFailureSink sets where backend failures are reported.
func WithFailureSink(sink FailureSink) Option {
	return func(r *Registry) {
		if sink != nil {
			r.env.Sink = sink
		}
	}
}

// WithWaitTimeout bounds Device.WaitFor.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.env.WaitTimeout = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry builds a registry from a factory table.
//
// Parameters:
//   - backend: hardware backend every device delegates to
//   - table: factory rows, typically DefaultFactories()
//   - opts: failure sink, wait timeout and logger
//
// Returns:
//   - *Registry: ready for Resolve
//   - error: ErrConfigurationConflict if two rows claim the same (slot, model)
func NewRegistry(backend Backend, table []Factory, opts ...Option) (*Registry, error) {
	r := &Registry{
		env:       NewEnv(backend, nil),
		factories: make(map[Slot]map[string]Constructor),
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, f := range table {
		if err := r.installFactory(f.New, f.Model, f.Slots...); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("device registry built", "factories", r.count())
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on a configuration conflict.
func MustNewRegistry(backend Backend, table []Factory, opts ...Option) *Registry {
	r, err := NewRegistry(backend, table, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// installFactory claims model for each slot. A second claim on the same
// pair is a configuration conflict.
func (r *Registry) installFactory(ctor Constructor, model string, slots ...Slot) error {
	if ctor == nil {
		return fmt.Errorf("%w: nil constructor for model %q", ErrConfigurationConflict, model)
	}
	for _, slot := range slots {
		if !slot.Valid() {
			return fmt.Errorf("installing %q: %w: %q", model, ErrUnknownSlot, slot)
		}
		byModel, ok := r.factories[slot]
		if !ok {
			byModel = make(map[string]Constructor)
			r.factories[slot] = byModel
		}
		if _, exists := byModel[model]; exists {
			return fmt.Errorf("%w: model %q already registered for slot %s",
				ErrConfigurationConflict, model, slot)
		}
		byModel[model] = ctor
	}
	return nil
}

// Resolve wraps the device loaded at label for use in slot.
//
// The model name reported for label is looked up exactly first, then the
// slot's wildcard factory. A nil Device with no error means no factory
// handles the model; that is not a failure. A failed model-name query is
// reported to the sink and also yields nil.
func (r *Registry) Resolve(slot Slot, label string) Device {
	if label == "" {
		return nil
	}

	model, err := r.env.Backend.ModelName(label)
	if err != nil {
		r.env.report(Failure{
			Op:    "model_name",
			Label: label,
			Err:   fmt.Errorf("%w: %w", ErrBackendCall, err),
		})
		return nil
	}

	ctor := r.lookup(slot, model)
	if ctor == nil {
		r.logger.Debug("no factory for device", "slot", slot, "label", label, "model", model)
		return nil
	}
	return ctor(r.env, slot, label)
}

func (r *Registry) lookup(slot Slot, model string) Constructor {
	byModel := r.factories[slot]
	if byModel == nil {
		return nil
	}
	if ctor, ok := byModel[model]; ok {
		return ctor
	}
	return byModel[WildcardModel]
}

// Handles reports whether a device of model would resolve in slot, and
// whether it would do so through the wildcard.
func (r *Registry) Handles(slot Slot, model string) (ok, wildcard bool) {
	byModel := r.factories[slot]
	if _, exact := byModel[model]; exact {
		return true, false
	}
	_, wild := byModel[WildcardModel]
	return wild, wild
}

// KnownModels lists the model names registered for slot, sorted.
func (r *Registry) KnownModels(slot Slot) []string {
	byModel := r.factories[slot]
	models := make([]string, 0, len(byModel))
	for m := range byModel {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Group returns the coupled XY stage group for label, or nil if no axis
// has been resolved for it yet.
func (r *Registry) Group(label string) *XYGroup {
	return r.env.groups.get(label)
}

// Env returns the environment shared by devices of this registry.
func (r *Registry) Env() *Env {
	return r.env
}

// Backend returns the hardware backend.
func (r *Registry) Backend() Backend {
	return r.env.Backend
}

func (r *Registry) count() int {
	n := 0
	for _, byModel := range r.factories {
		n += len(byModel)
	}
	return n
}

// groupPool holds one XYGroup per label for the life of the process.
type groupPool struct {
	mu     sync.Mutex
	groups map[string]*XYGroup
}

func newGroupPool() *groupPool {
	return &groupPool{groups: make(map[string]*XYGroup)}
}

// obtain returns the group for label, creating it with model on first use.
func (p *groupPool) obtain(env *Env, label string, model XYModel) *XYGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.groups[label]; ok {
		return g
	}
	g := newXYGroup(env, label, model)
	p.groups[label] = g
	return g
}

func (p *groupPool) get(label string) *XYGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.groups[label]
}
