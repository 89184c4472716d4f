// Package app assembles the bot: config, logging, storage, the dialog engine,
// the notification scheduler and the Telegram adapter, plus the update loop
// that threads them together.
package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
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

const updateBuffer = 256

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store     storage.Store
	sessions  *session.Store
	engine    *dialog.Engine
	scheduler *notify.Scheduler
	weekly    *notify.Weekly
	adapter   transport.Adapter

	defaultLead atomic.Int64

	wg sync.WaitGroup
}

// adapterFactory builds the transport; injected so constructor error paths
// are testable without a live bot API.
type adapterFactory func(telegram.Config, logx.Logger) (transport.Adapter, error)

// New builds the application from an already-loaded config manager.
func New(mgr *config.Manager) (*App, error) {
	return newApp(mgr, func(tc telegram.Config, log logx.Logger) (transport.Adapter, error) {
		return telegram.New(tc, log)
	})
}

func newApp(mgr *config.Manager, newAdapter adapterFactory) (*App, error) {
	cfg := mgr.Get()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	deliverTimeout, err := config.ParseDurationOrDefault("notify.deliver_timeout", cfg.Notify.DeliverTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfigFrom(cfg), nil)
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log,
		sessions: session.NewStore(),
	}
	a.defaultLead.Store(int64(cfg.LeadMinutes()))

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	adapter, err := newAdapter(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}
	a.adapter = adapter
	logSvc.SetSender(adapter)
	logSvc.SetOperatorChat(cfg.Telegram.OperatorChatID)

	loc := cfg.Location()
	a.engine = dialog.NewEngine(loc, log.With(logx.String("comp", "dialog")))

	a.scheduler = notify.NewScheduler(notify.Config{
		Workers:        cfg.Notify.Workers,
		QueueSize:      cfg.Notify.QueueSize,
		DeliverTimeout: deliverTimeout,
	}, notify.RealClock(), &reminderDelivery{adapter: adapter}, log.With(logx.String("comp", "notify")))

	a.weekly = notify.NewWeekly(loc, a.deliverSlot, deliverTimeout, log.With(logx.String("comp", "weekly")))

	return a, nil
}

// Run starts every component and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()

	if err := a.weekly.Rebuild(ctx, a.store); err != nil {
		a.log.Error("weekly schedule rebuild failed", logx.Err(err))
	}
	a.weekly.Start()

	updates := make(chan transport.Update, updateBuffer)
	if err := a.adapter.Start(ctx, updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(ctx)
	}()

	a.log.Info("bot started")
	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case up := <-updates:
			go a.handleUpdate(ctx, up)
		}
	}
}

func (a *App) shutdown() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = a.adapter.Stop(stopCtx)
	a.weekly.Stop()
	a.scheduler.Stop()
	a.wg.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Warn("closing storage", logx.Err(err))
	}
	a.log.Info("bot stopped")
	return a.logSvc.Close()
}

// reloadLoop applies config changes at runtime: log level and sinks, operator
// chat, dialog timezone and the default reminder lead.
func (a *App) reloadLoop(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logSvc.Apply(logConfigFrom(cfg))
			a.logSvc.SetOperatorChat(cfg.Telegram.OperatorChatID)
			a.engine.SetLocation(cfg.Location())
			a.defaultLead.Store(int64(cfg.LeadMinutes()))
			a.log.Info("config reloaded",
				logx.String("timezone", cfg.Timezone),
				logx.Int("default_lead_minutes", cfg.LeadMinutes()),
			)
		}
	}
}

func logConfigFrom(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Operator: logx.OperatorConfig{
			Enabled:    cfg.Logging.Mirror.Enabled,
			MinLevel:   cfg.Logging.Mirror.MinLevel,
			RatePerSec: cfg.Logging.Mirror.RatePerSec,
		},
	}
}

// reminderDelivery sends a fired one-shot reminder. The payload is already
// rendered when the reminder is armed.
type reminderDelivery struct {
	adapter transport.Adapter
}

func (d *reminderDelivery) Deliver(ctx context.Context, recipient int64, payload string) error {
	_, err := d.adapter.SendText(ctx, transport.ChatTarget{ChatID: recipient}, payload, htmlOpts(nil))
	return err
}

// deliverSlot sends one weekly grid cell when its cron entry fires.
func (a *App) deliverSlot(ctx context.Context, userID int64, e storage.ScheduleEntry) {
	_, err := a.adapter.SendText(ctx, transport.ChatTarget{ChatID: userID},
		dialog.RenderScheduleSlot(e.Block, e.Hour, e.Task), htmlOpts(nil))
	if err != nil {
		a.log.Error("weekly slot delivery failed",
			logx.Int64("user", userID), logx.Int("hour", e.Hour), logx.Err(err))
	}
}

func (a *App) handleUpdate(ctx context.Context, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("panic handling update",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	userID, ev, ok := dialog.FromUpdate(up)
	if !ok {
		return
	}
	chatID := chatIDOf(up)
	if chatID == 0 {
		chatID = userID
	}

	var (
		effects   []dialog.Effect
		promptRef transport.MessageRef
	)
	a.sessions.Update(userID, func(s *session.Session) {
		effects = a.engine.Handle(s, ev)
		promptRef = s.PromptRef
	})

	if up.Kind == transport.UpdateCallback && up.Callback != nil {
		if err := a.adapter.AnswerCallback(ctx, up.Callback.ID, ""); err != nil {
			a.log.Debug("answer callback failed", logx.Err(err))
		}
	}

	newRef := a.applyEffects(ctx, userID, chatID, promptRef, effects)
	if newRef != promptRef {
		a.sessions.Update(userID, func(s *session.Session) { s.PromptRef = newRef })
	}
}

func chatIDOf(up transport.Update) int64 {
	switch {
	case up.Message != nil:
		return up.Message.ChatID
	case up.Callback != nil:
		return up.Callback.ChatID
	default:
		return 0
	}
}
