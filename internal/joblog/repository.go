// Package joblog persists door and job lifecycle events to the job_events
// table. The count of restart_completed events restores the printed-parts
// counter after a restart of the daemon.
package joblog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an event ID does not exist.
var ErrNotFound = errors.New("joblog: event not found")

// Kind classifies a logged event.
type Kind string

// Event kinds written by the door controller.
const (
	KindDoorOpened       Kind = "door_opened"
	KindDoorClosed       Kind = "door_closed"
	KindJobFinished      Kind = "job_finished"
	KindRestartSkipped   Kind = "restart_skipped"
	KindRestartCompleted Kind = "restart_completed"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Event is one row of the job log.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	JobStatus  string    `json:"job_status,omitempty"`
	BedTemp    float64   `json:"bed_temp"`
	Percent    int       `json:"percent"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Repository defines the job log operations.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, limit int) ([]Event, error)
	Count(ctx context.Context, kind Kind) (int64, error)
}

// SQLiteRepository stores events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a job log backed by db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts e. ID and OccurredAt are filled in when empty.
func (r *SQLiteRepository) Append(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_events (id, kind, job_status, bed_temp, percent, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.JobStatus, e.BedTemp, e.Percent, e.Detail,
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting job event: %w", err)
	}
	return nil
}

// Get returns the event with the given ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, kind, job_status, bed_temp, percent, detail, occurred_at
		 FROM job_events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job event %s: %w", id, err)
	}
	return e, nil
}

// List returns the most recent events, newest first.
// A limit of zero or less returns the default page size.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, job_status, bed_temp, percent, detail, occurred_at
		 FROM job_events ORDER BY occurred_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing job events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		e, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning job event: %w", scanErr)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job events: %w", err)
	}
	return events, nil
}

// Count returns the number of events of the given kind.
func (r *SQLiteRepository) Count(ctx context.Context, kind Kind) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_events WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s events: %w", kind, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*Event, error) {
	var e Event
	var kind, occurred string
	if err := s.Scan(&e.ID, &kind, &e.JobStatus, &e.BedTemp, &e.Percent, &e.Detail, &occurred); err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)

	t, err := time.Parse(time.RFC3339Nano, occurred)
	if err != nil {
		return nil, fmt.Errorf("parsing occurred_at %q: %w", occurred, err)
	}
	e.OccurredAt = t
	return &e, nil
}
