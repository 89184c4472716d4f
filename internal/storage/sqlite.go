package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (or creates) the sqlite record store and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const fireAtLayout = time.RFC3339

func (s *sqliteStore) InsertTask(ctx context.Context, t TaskRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	att, err := json.Marshal(t.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	fireAt := ""
	if !t.FireAt.IsZero() {
		fireAt = t.FireAt.Format(fireAtLayout)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(user_id, topic, description, attachments, fire_at) VALUES(?,?,?,?,?)`,
		t.UserID, t.Topic, t.Description, string(att), fireAt,
	)
	return err
}

func (s *sqliteStore) Tasks(ctx context.Context, userID int64) ([]TaskRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, topic, description, attachments, fire_at
		   FROM tasks WHERE user_id = ? ORDER BY fire_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			t      TaskRecord
			att    string
			fireAt string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Topic, &t.Description, &att, &fireAt); err != nil {
			return nil, err
		}
		if att != "" && att != "[]" {
			if err := json.Unmarshal([]byte(att), &t.Attachments); err != nil {
				s.log.Warn("skipping malformed attachments column", logx.Int64("task_id", t.ID), logx.Err(err))
			}
		}
		if fireAt != "" {
			at, err := time.Parse(fireAtLayout, fireAt)
			if err != nil {
				s.log.Warn("skipping malformed fire_at column", logx.Int64("task_id", t.ID), logx.Err(err))
			} else {
				t.FireAt = at
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertScheduleEntries(ctx context.Context, userID int64, entries []ScheduleEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedules(user_id, day, time_of_day, hour, task) VALUES(?,?,?,?,?)`,
			userID, e.Day, e.Block, e.Hour, e.Task,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, userID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE user_id = ?`, userID)
	return err
}

func (s *sqliteStore) ScheduleEntries(ctx context.Context, userID int64) ([]ScheduleEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, time_of_day, hour, task FROM schedules WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(&e.Day, &e.Block, &e.Hour, &e.Task); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AllScheduleEntries(ctx context.Context) (map[int64][]ScheduleEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, day, time_of_day, hour, task FROM schedules ORDER BY user_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]ScheduleEntry)
	for rows.Next() {
		var (
			uid int64
			e   ScheduleEntry
		)
		if err := rows.Scan(&uid, &e.Day, &e.Block, &e.Hour, &e.Task); err != nil {
			return nil, err
		}
		out[uid] = append(out[uid], e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertSubscription(ctx context.Context, userID int64, category, content string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(user_id, category, content) VALUES(?,?,?)`,
		userID, category, content,
	)
	return err
}

func (s *sqliteStore) Subscriptions(ctx context.Context, userID int64, category string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM subscriptions WHERE user_id = ? AND category = ? ORDER BY id`,
		userID, category,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
