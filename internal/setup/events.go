package setup

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/spimrig/internal/device"
)

// EventType identifies what happened on the rig.
type EventType string

// Rig event types.
const (
	EventBind     EventType = "bind"
	EventUnbind   EventType = "unbind"
	EventMove     EventType = "move"
	EventHome     EventType = "home"
	EventVelocity EventType = "velocity"
	EventLaser    EventType = "laser"
	EventSnap     EventType = "snap"
)

// Vector is a stage position in micrometres.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsOrigin reports whether v is exactly (0, 0, 0).
func (v Vector) IsOrigin() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Event describes one completed rig operation.
type Event struct {
	ID    string      `json:"id"`
	Type  EventType   `json:"type"`
	Time  time.Time   `json:"time"`
	Slot  device.Slot `json:"slot,omitempty"`
	Label string      `json:"label,omitempty"`

	// OK is false when the backend reported a failure for the operation.
	OK bool `json:"ok"`

	// Position is set for moves of the 3D stage.
	Position *Vector `json:"position,omitempty"`

	// Value carries the scalar of single-axis moves, velocities and laser
	// power (W).
	Value *float64 `json:"value,omitempty"`

	// On is set for laser switch events.
	On *bool `json:"on,omitempty"`

	// Duration is the exposure time of snap events.
	Duration time.Duration `json:"duration,omitempty"`

	// Width and Height describe the captured frame of snap events.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Observer receives rig events. Notify is called synchronously after the
// operation completes, outside any setup lock; implementations must not
// block for long.
type Observer interface {
	Notify(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

// Notify implements Observer.
func (fn ObserverFunc) Notify(e Event) { fn(e) }

// Subscribe adds o to the observers of this setup.
func (s *Setup) Subscribe(o Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

func (s *Setup) emit(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	s.obsMu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.RUnlock()

	for _, o := range observers {
		o.Notify(e)
	}
}

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool { return &v }
