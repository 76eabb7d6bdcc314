package history

import (
	"context"
	"time"

	"github.com/nerrad567/spimrig/internal/setup"
)

const recordTimeout = 2 * time.Second

// Logger is the subset of logging.Logger the recorder uses.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder is a setup.Observer that writes every event to a Repository.
// A failed write is logged and dropped; the rig keeps running.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a Recorder. A nil logger discards warnings.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, logger: logger}
}

// Notify implements setup.Observer.
func (r *Recorder) Notify(e setup.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.Record(ctx, e); err != nil {
		r.logger.Warn("dropping rig event", "id", e.ID, "type", e.Type, "error", err)
	}
}

var _ setup.Observer = (*Recorder)(nil)
