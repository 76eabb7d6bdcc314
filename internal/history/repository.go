// Package history keeps a journal of completed rig operations in SQLite.
//
// The Recorder subscribes to a setup.Setup and appends every event to the
// rig_events table; List serves the journal back, most recent first.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/setup"
)

// timeLayout sorts lexically in time order, which the ORDER BY relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Filter controls which events List returns. Zero fields match everything.
type Filter struct {
	Type   setup.EventType
	Slot   device.Slot
	Label  string
	Since  time.Time
	Limit  int // default 50, max 500
	Offset int
}

// ListResult is one page of journal entries.
type ListResult struct {
	Events []setup.Event `json:"events"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// Repository stores and queries rig events.
type Repository interface {
	Record(ctx context.Context, e setup.Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores events in the rig_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e. A missing ID or time is filled in.
func (r *SQLiteRepository) Record(ctx context.Context, e setup.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	var x, y, z any
	if e.Position != nil {
		x, y, z = e.Position.X, e.Position.Y, e.Position.Z
	}
	var value, on any
	if e.Value != nil {
		value = *e.Value
	}
	if e.On != nil {
		on = *e.On
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rig_events
		 (id, type, occurred_at, slot, label, ok, pos_x, pos_y, pos_z, value, on_state, duration_ns, width, height)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Time.UTC().Format(timeLayout),
		string(e.Slot), e.Label, e.OK,
		x, y, z, value, on,
		int64(e.Duration), e.Width, e.Height,
	)
	if err != nil {
		return fmt.Errorf("inserting rig event: %w", err)
	}
	return nil
}

// List returns events matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	filter.Limit = min(filter.Limit, maxLimit)
	filter.Offset = max(filter.Offset, 0)

	var conditions []string
	var args []any
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Slot != "" {
		conditions = append(conditions, "slot = ?")
		args = append(args, string(filter.Slot))
	}
	if filter.Label != "" {
		conditions = append(conditions, "label = ?")
		args = append(args, filter.Label)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM rig_events " + where //nolint:gosec // WHERE holds only placeholders
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting rig events: %w", err)
	}

	query := `SELECT id, type, occurred_at, slot, label, ok, pos_x, pos_y, pos_z, value, on_state, duration_ns, width, height
		FROM rig_events ` + where + ` ORDER BY occurred_at DESC, rowid DESC LIMIT ? OFFSET ?` //nolint:gosec // WHERE holds only placeholders
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying rig events: %w", err)
	}
	defer rows.Close()

	events := []setup.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rig events: %w", err)
	}

	return &ListResult{Events: events, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Prune deletes events older than before and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM rig_events WHERE occurred_at < ?", before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning rig events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning rig events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (setup.Event, error) {
	var (
		e               setup.Event
		typ, slot, when string
		x, y, z, value  sql.NullFloat64
		on              sql.NullBool
		durationNs      int64
	)
	if err := rows.Scan(&e.ID, &typ, &when, &slot, &e.Label, &e.OK,
		&x, &y, &z, &value, &on, &durationNs, &e.Width, &e.Height); err != nil {
		return e, fmt.Errorf("scanning rig event: %w", err)
	}

	t, err := time.Parse(timeLayout, when)
	if err != nil {
		return e, fmt.Errorf("parsing rig event timestamp %q: %w", when, err)
	}
	e.Time = t
	e.Type = setup.EventType(typ)
	e.Slot = device.Slot(slot)
	e.Duration = time.Duration(durationNs)

	if x.Valid && y.Valid && z.Valid {
		e.Position = &setup.Vector{X: x.Float64, Y: y.Float64, Z: z.Float64}
	}
	if value.Valid {
		v := value.Float64
		e.Value = &v
	}
	if on.Valid {
		b := on.Bool
		e.On = &b
	}
	return e, nil
}
