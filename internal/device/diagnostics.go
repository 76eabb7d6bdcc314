package device

import (
	"errors"
	"fmt"
	"sync"
)

// Failure describes a backend call that did not succeed. The device that
// made the call has already returned a sentinel to its caller.
type Failure struct {
	// Op names the device operation, e.g. "get_property" or "set_xy_position".
	Op string

	// Label is the backend label of the device.
	Label string

	// Property is set for property operations.
	Property string

	// Err wraps ErrBackendCall, ErrWaitTimeout or a parse error.
	Err error
}

// Error implements error so a Failure can be logged or wrapped directly.
func (f Failure) Error() string {
	if f.Property != "" {
		return fmt.Sprintf("%s %q on %s: %v", f.Op, f.Property, f.Label, f.Err)
	}
	return fmt.Sprintf("%s on %s: %v", f.Op, f.Label, f.Err)
}

// Unwrap exposes the underlying error for errors.Is.
func (f Failure) Unwrap() error {
	return f.Err
}

// FailureSink receives every non-fatal backend failure.
// Implementations must be safe for concurrent use.
type FailureSink interface {
	Report(f Failure)
}

// FailureSinkFunc adapts a function to FailureSink.
type FailureSinkFunc func(f Failure)

// Report implements FailureSink.
func (fn FailureSinkFunc) Report(f Failure) { fn(f) }

// Logger defines the logging interface used by the device package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LogSink reports failures to a Logger at error level.
type LogSink struct {
	Logger Logger
}

// Report implements FailureSink.
func (s LogSink) Report(f Failure) {
	if s.Logger == nil {
		return
	}
	s.Logger.Error("device backend failure",
		"op", f.Op,
		"label", f.Label,
		"property", f.Property,
		"error", f.Err,
	)
}

// MultiSink fans a failure out to several sinks.
type MultiSink []FailureSink

// Report implements FailureSink.
func (m MultiSink) Report(f Failure) {
	for _, s := range m {
		if s != nil {
			s.Report(f)
		}
	}
}

// RecordingSink keeps every reported failure in memory.
// It is meant for tests and diagnostics endpoints.
type RecordingSink struct {
	mu       sync.Mutex
	failures []Failure
}

// Report implements FailureSink.
func (r *RecordingSink) Report(f Failure) {
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
}

// Failures returns a copy of the recorded failures.
func (r *RecordingSink) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Failure, len(r.failures))
	copy(out, r.failures)
	return out
}

// Count returns how many recorded failures match target via errors.Is.
func (r *RecordingSink) Count(target error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.failures {
		if errors.Is(f, target) {
			n++
		}
	}
	return n
}

// Reset discards recorded failures.
func (r *RecordingSink) Reset() {
	r.mu.Lock()
	r.failures = nil
	r.mu.Unlock()
}

// discardSink drops failures.
type discardSink struct{}

func (discardSink) Report(Failure) {}
