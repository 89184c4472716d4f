package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/dialog"
	"remindbot/internal/notify"
	"remindbot/internal/session"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
)

// fakeAdapter records sends and edits; EditText can be made to fail.
type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	edited   []string
	answered []string
	editErr  error
	nextID   int
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.nextID++
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ transport.MessageRef, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edited = append(f.edited, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, id string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// memStore is an in-memory storage.Store for interpreter tests.
type memStore struct {
	mu        sync.Mutex
	tasks     []storage.TaskRecord
	schedules map[int64][]storage.ScheduleEntry
	subs      map[string][]string
	failTask  error
}

func newMemStore() *memStore {
	return &memStore{
		schedules: make(map[int64][]storage.ScheduleEntry),
		subs:      make(map[string][]string),
	}
}

func (m *memStore) InsertTask(_ context.Context, t storage.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTask != nil {
		return m.failTask
	}
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *memStore) Tasks(_ context.Context, userID int64) ([]storage.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.TaskRecord
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) InsertScheduleEntries(_ context.Context, userID int64, entries []storage.ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[userID] = append(m.schedules[userID], entries...)
	return nil
}

func (m *memStore) DeleteSchedule(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, userID)
	return nil
}

func (m *memStore) ScheduleEntries(_ context.Context, userID int64) ([]storage.ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[userID], nil
}

func (m *memStore) AllScheduleEntries(context.Context) (map[int64][]storage.ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64][]storage.ScheduleEntry, len(m.schedules))
	for k, v := range m.schedules {
		out[k] = append([]storage.ScheduleEntry(nil), v...)
	}
	return out, nil
}

func (m *memStore) InsertSubscription(_ context.Context, userID int64, category, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[category] = append(m.subs[category], content)
	return nil
}

func (m *memStore) Subscriptions(_ context.Context, _ int64, category string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[category], nil
}

func (m *memStore) Close() error { return nil }

// countingDelivery counts scheduler deliveries.
type countingDelivery struct{ n atomic.Int64 }

func (d *countingDelivery) Deliver(context.Context, int64, string) error {
	d.n.Add(1)
	return nil
}

func newTestApp(t *testing.T) (*App, *fakeAdapter, *memStore) {
	t.Helper()
	fa := &fakeAdapter{}
	ms := newMemStore()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatal(err)
	}

	a := &App{
		log:      logx.Nop(),
		store:    ms,
		sessions: session.NewStore(),
		engine:   dialog.NewEngine(loc, logx.Nop()),
		adapter:  fa,
		weekly:   notify.NewWeekly(loc, func(context.Context, int64, storage.ScheduleEntry) {}, time.Second, logx.Nop()),
	}
	a.scheduler = notify.NewScheduler(notify.Config{Workers: 1, QueueSize: 8},
		notify.RealClock(), &countingDelivery{}, logx.Nop())
	a.scheduler.Start()
	t.Cleanup(a.scheduler.Stop)
	a.defaultLead.Store(config.DefaultLeadMinutes)
	return a, fa, ms
}

func message(userID int64, text string) transport.Update {
	return transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ChatID: userID, FromID: userID, Text: text},
	}
}

func button(userID int64, tag string) transport.Update {
	return transport.Update{
		Kind:     transport.UpdateCallback,
		Callback: &transport.Callback{ID: "cb1", FromID: userID, ChatID: userID, Data: tag},
	}
}

func TestStartMessageSendsMenuAndStoresPromptRef(t *testing.T) {
	a, fa, _ := newTestApp(t)
	ctx := context.Background()

	a.handleUpdate(ctx, message(7, "/start"))

	if fa.sentCount() != 1 {
		t.Fatalf("expected 1 message, got %d", fa.sentCount())
	}
	if !strings.Contains(fa.sent[0], "Choose an action") {
		t.Fatalf("expected main menu text, got %q", fa.sent[0])
	}
	s := a.sessions.Get(7)
	if s.PromptRef.IsZero() {
		t.Fatalf("prompt ref must be stored for later edits")
	}
}

func TestButtonPressEditsPreviousPrompt(t *testing.T) {
	a, fa, _ := newTestApp(t)
	ctx := context.Background()

	a.handleUpdate(ctx, message(7, "/start"))
	a.handleUpdate(ctx, button(7, dialog.TagMainAddTask))

	fa.mu.Lock()
	edited := len(fa.edited)
	answered := len(fa.answered)
	fa.mu.Unlock()
	if edited != 1 {
		t.Fatalf("expected the menu to be edited in place, got %d edits", edited)
	}
	if answered != 1 {
		t.Fatalf("callback must be answered, got %d", answered)
	}
}

func TestFailedEditFallsBackToFreshSend(t *testing.T) {
	a, fa, _ := newTestApp(t)
	ctx := context.Background()

	a.handleUpdate(ctx, message(7, "/start"))
	firstRef := a.sessions.Get(7).PromptRef

	fa.editErr = errors.New("message to edit not found")
	a.handleUpdate(ctx, button(7, dialog.TagMainAddTask))

	if fa.sentCount() != 2 {
		t.Fatalf("expected fallback send, got %d sends", fa.sentCount())
	}
	newRef := a.sessions.Get(7).PromptRef
	if newRef == firstRef {
		t.Fatalf("prompt ref must move to the freshly sent message")
	}
}

func TestFullTaskFlowPersistsAndArms(t *testing.T) {
	a, _, ms := newTestApp(t)
	ctx := context.Background()

	a.handleUpdate(ctx, message(7, "/start"))
	a.handleUpdate(ctx, button(7, dialog.TagMainAddTask))
	a.handleUpdate(ctx, message(7, "dentist"))
	a.handleUpdate(ctx, button(7, dialog.TagAttachNo))
	a.handleUpdate(ctx, message(7, "2030-05-01 10:00"))
	a.handleUpdate(ctx, button(7, dialog.TagConfirmYes))

	ms.mu.Lock()
	saved := len(ms.tasks)
	ms.mu.Unlock()
	if saved != 1 {
		t.Fatalf("expected 1 saved task, got %d", saved)
	}
	if a.scheduler.Pending() != 1 {
		t.Fatalf("expected 1 armed reminder, got %d", a.scheduler.Pending())
	}
	if a.sessions.Get(7).State != session.Idle {
		t.Fatalf("expected idle after confirm")
	}
}

func TestScheduleSaveReplacesRowsAndCrons(t *testing.T) {
	a, _, ms := newTestApp(t)
	ctx := context.Background()

	// Pre-existing rows from an earlier walk get replaced wholesale.
	_ = ms.InsertScheduleEntries(ctx, 7, []storage.ScheduleEntry{
		{Day: "Tuesday", Block: "Morning", Hour: 6, Task: "old"},
	})

	a.applyEffects(ctx, 7, 7, transport.MessageRef{}, []dialog.Effect{
		dialog.ReplaceScheduleSet{Entries: []storage.ScheduleEntry{
			{Day: "Monday", Block: "Morning", Hour: 6, Task: "run"},
			{Day: "Monday", Block: "Morning", Hour: 7, Task: "read"},
		}},
	})

	rows, _ := ms.ScheduleEntries(ctx, 7)
	if len(rows) != 2 || rows[0].Task != "run" {
		t.Fatalf("expected full replacement, got %+v", rows)
	}
	if got := a.weekly.EntryCount(7); got != 2 {
		t.Fatalf("expected 2 cron entries, got %d", got)
	}
}

func TestResetScheduleClearsRowsAndCrons(t *testing.T) {
	a, _, ms := newTestApp(t)
	ctx := context.Background()

	a.applyEffects(ctx, 7, 7, transport.MessageRef{}, []dialog.Effect{
		dialog.ReplaceScheduleSet{Entries: []storage.ScheduleEntry{
			{Day: "Monday", Block: "Morning", Hour: 6, Task: "run"},
		}},
	})
	a.applyEffects(ctx, 7, 7, transport.MessageRef{}, []dialog.Effect{dialog.ResetSchedule{}})

	rows, _ := ms.ScheduleEntries(ctx, 7)
	if len(rows) != 0 || a.weekly.EntryCount(7) != 0 {
		t.Fatalf("reset must clear rows and crons: %d rows, %d crons", len(rows), a.weekly.EntryCount(7))
	}
}

func TestSaveTaskFailureNotifiesUser(t *testing.T) {
	a, fa, ms := newTestApp(t)
	ctx := context.Background()
	ms.failTask = errors.New("disk full")

	a.applyEffects(ctx, 7, 7, transport.MessageRef{}, []dialog.Effect{
		dialog.SaveTask{Record: storage.TaskRecord{UserID: 7, Topic: "x"}},
	})

	if fa.sentCount() != 1 || !strings.Contains(fa.sent[0], "Couldn't save") {
		t.Fatalf("expected a user-facing failure notice, got %v", fa.sent)
	}
}

func TestShowTasksRendersList(t *testing.T) {
	a, fa, ms := newTestApp(t)
	ctx := context.Background()
	_ = ms.InsertTask(ctx, storage.TaskRecord{UserID: 7, Topic: "dentist"})

	a.applyEffects(ctx, 7, 7, transport.MessageRef{}, []dialog.Effect{dialog.ShowTasks{}})

	if fa.sentCount() != 1 || !strings.Contains(fa.sent[0], "dentist") {
		t.Fatalf("expected rendered task list, got %v", fa.sent)
	}
}

func TestDefaultLeadAppliedWhenUnset(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	a.defaultLead.Store(5)

	fireAt := time.Now().Add(time.Hour)
	a.applyEffects(ctx, 7, 7, transport.MessageRef{}, []dialog.Effect{
		dialog.ScheduleReminder{Payload: "p", FireAt: fireAt, LeadMinutes: 0},
	})
	if a.scheduler.Pending() != 1 {
		t.Fatalf("expected 1 armed reminder")
	}
}

func TestConstructorClosesStorageWhenAdapterFails(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bot.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	body := "telegram:\n  token: \"123:abc\"\nstorage:\n  path: \"" + dbPath + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	mgr := config.NewManager(cfgPath)
	if _, err := mgr.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	boom := errors.New("bot api unreachable")
	a, err := newApp(mgr, func(telegram.Config, logx.Logger) (transport.Adapter, error) {
		return nil, boom
	})
	if a != nil || !errors.Is(err, boom) {
		t.Fatalf("expected the factory error, got app=%v err=%v", a, err)
	}

	// The database must be usable by a fresh connection after the failure.
	st, err := storage.Open(storage.Config{Path: dbPath}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	if err := st.InsertTask(context.Background(), storage.TaskRecord{UserID: 1, Topic: "t"}); err != nil {
		t.Fatalf("insert after reopen: %v", err)
	}
	_ = st.Close()
}

func TestPanicInHandlerIsContained(t *testing.T) {
	a, _, _ := newTestApp(t)

	// A callback with a nil message pointer must not crash the process.
	a.handleUpdate(context.Background(), transport.Update{Kind: transport.UpdateCallback})
}
