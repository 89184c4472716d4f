package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// SlotFunc delivers one weekly grid cell when its hour arrives.
type SlotFunc func(ctx context.Context, userID int64, entry storage.ScheduleEntry)

// Weekly maintains one cron entry per saved schedule row, firing at minute 0
// of the row's hour on the row's weekday. Replace and Clear keep the cron set
// in step with the stored grid; they never touch one-shot reminder timers.
type Weekly struct {
	log     logx.Logger
	slot    SlotFunc
	timeout time.Duration

	mu      sync.Mutex
	c       *cron.Cron
	entries map[int64][]cron.EntryID
}

func NewWeekly(loc *time.Location, slot SlotFunc, timeout time.Duration, log logx.Logger) *Weekly {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Weekly{
		log:     log,
		slot:    slot,
		timeout: timeout,
		c:       cron.New(cron.WithLocation(loc)),
		entries: make(map[int64][]cron.EntryID),
	}
}

func (w *Weekly) Start() { w.c.Start() }

func (w *Weekly) Stop() {
	<-w.c.Stop().Done()
}

// Rebuild loads every stored grid and replaces the cron set with it. Called
// once at startup so saved schedules survive restarts.
func (w *Weekly) Rebuild(ctx context.Context, store storage.Store) error {
	all, err := store.AllScheduleEntries(ctx)
	if err != nil {
		return err
	}
	for uid, entries := range all {
		w.Replace(uid, entries)
	}
	w.log.Info("weekly schedules rebuilt", logx.Int("users", len(all)))
	return nil
}

// Replace swaps the user's cron entries for the given grid rows. Rows with an
// unknown weekday are skipped with a warning.
func (w *Weekly) Replace(userID int64, entries []storage.ScheduleEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.removeLocked(userID)
	ids := make([]cron.EntryID, 0, len(entries))
	for _, e := range entries {
		dow, ok := weekdayNumber(e.Day)
		if !ok {
			w.log.Warn("skipping schedule row with unknown day",
				logx.Int64("user", userID), logx.String("day", e.Day))
			continue
		}
		spec := fmt.Sprintf("0 %d * * %d", e.Hour, dow)
		entry := e
		id, err := w.c.AddFunc(spec, func() { w.fire(userID, entry) })
		if err != nil {
			w.log.Error("failed to register weekly slot",
				logx.Int64("user", userID), logx.String("spec", spec), logx.Err(err))
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		w.entries[userID] = ids
	}
}

// Clear drops all of the user's weekly cron entries.
func (w *Weekly) Clear(userID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(userID)
}

func (w *Weekly) removeLocked(userID int64) {
	for _, id := range w.entries[userID] {
		w.c.Remove(id)
	}
	delete(w.entries, userID)
}

// EntryCount reports the number of registered cron entries for a user.
func (w *Weekly) EntryCount(userID int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries[userID])
}

func (w *Weekly) fire(userID int64, e storage.ScheduleEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	w.slot(ctx, userID, e)
}

// weekdayNumber maps a grid day name onto the cron day-of-week field
// (Sunday=0).
func weekdayNumber(day string) (int, bool) {
	switch day {
	case "Sunday":
		return 0, true
	case "Monday":
		return 1, true
	case "Tuesday":
		return 2, true
	case "Wednesday":
		return 3, true
	case "Thursday":
		return 4, true
	case "Friday":
		return 5, true
	case "Saturday":
		return 6, true
	default:
		return 0, false
	}
}
