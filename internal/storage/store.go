package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by operations on a nil/closed store.
var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// TaskRecord is a finished task or quick note. Immutable once inserted.
// FireAt is zero for reminder-less notes.
type TaskRecord struct {
	ID          int64
	UserID      int64
	Topic       string
	Description string
	Attachments []Attachment
	FireAt      time.Time
}

type Attachment struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload,omitempty"`
}

// ScheduleEntry is one cell of a user's weekly hour grid.
type ScheduleEntry struct {
	Day   string
	Block string
	Hour  int
	Task  string
}

// Store is the durable record store consumed by the dialog layer. The dialog
// only ever creates and queries; schedule replacement happens via
// DeleteSchedule followed by InsertScheduleEntries.
type Store interface {
	InsertTask(ctx context.Context, t TaskRecord) error
	Tasks(ctx context.Context, userID int64) ([]TaskRecord, error)

	// InsertScheduleEntries persists a full (day, block) set in one
	// transaction: all rows or none.
	InsertScheduleEntries(ctx context.Context, userID int64, entries []ScheduleEntry) error
	DeleteSchedule(ctx context.Context, userID int64) error
	ScheduleEntries(ctx context.Context, userID int64) ([]ScheduleEntry, error)

	// AllScheduleEntries returns every user's grid, used to rebuild the
	// weekly cron set after a restart.
	AllScheduleEntries(ctx context.Context) (map[int64][]ScheduleEntry, error)

	InsertSubscription(ctx context.Context, userID int64, category, content string) error
	Subscriptions(ctx context.Context, userID int64, category string) ([]string, error)

	Close() error
}
