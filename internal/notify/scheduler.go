// Package notify delivers deferred messages. The Scheduler arms one in-memory
// timer per unique reminder; Weekly drives the recurring hour-grid deliveries
// through cron. Neither survives a restart except through the weekly rebuild.
package notify

import (
	"context"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/pkg/logx"
)

// Delivery sends one rendered notification to a recipient chat. Implementations
// own rendering and transport; the scheduler only decides when.
type Delivery interface {
	Deliver(ctx context.Context, recipient int64, payload string) error
}

// Clock abstracts timer arming so tests can drive time by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// jobKey identifies a reminder structurally. Two Schedule calls with the same
// recipient, payload and delivery instant are the same reminder.
type jobKey struct {
	recipient int64
	payload   uint64
	deliverAt int64
}

func keyFor(recipient int64, payload string, deliverAt time.Time) jobKey {
	h := fnv.New64a()
	h.Write([]byte(payload))
	return jobKey{recipient: recipient, payload: h.Sum64(), deliverAt: deliverAt.Unix()}
}

type job struct {
	trace     string
	recipient int64
	payload   string
}

type Config struct {
	Workers        int
	QueueSize      int
	DeliverTimeout time.Duration
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 30 * time.Second
	}
}

// Scheduler arms one-shot timers for reminders and feeds fired jobs through a
// bounded worker pool. Delivery failures are logged and dropped; a reminder
// never retries.
type Scheduler struct {
	cfg      Config
	clock    Clock
	delivery Delivery
	log      logx.Logger

	mu     sync.Mutex
	timers map[jobKey]Timer

	queue  chan job
	stopCh chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewScheduler(cfg Config, clock Clock, delivery Delivery, log logx.Logger) *Scheduler {
	cfg.normalize()
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		cfg:      cfg,
		clock:    clock,
		delivery: delivery,
		log:      log,
		timers:   make(map[jobKey]Timer),
		queue:    make(chan job, cfg.QueueSize),
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		for i := 0; i < s.cfg.Workers; i++ {
			s.wg.Add(1)
			go s.worker()
		}
		s.log.Info("notification scheduler started", logx.Int("workers", s.cfg.Workers))
	})
}

// Stop cancels every armed timer and waits for in-flight deliveries.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		for k, t := range s.timers {
			t.Stop()
			delete(s.timers, k)
		}
		s.mu.Unlock()

		close(s.stopCh)
		s.wg.Wait()
		s.log.Info("notification scheduler stopped")
	})
}

// Schedule arms a reminder for payload at fireAt minus leadMinutes. A delivery
// instant that is not strictly in the future delivers synchronously before
// Schedule returns. Scheduling an already-armed identical reminder is a no-op;
// the first timer stands.
func (s *Scheduler) Schedule(recipient int64, payload string, fireAt time.Time, leadMinutes int) {
	deliverAt := fireAt.Add(-time.Duration(leadMinutes) * time.Minute)
	now := s.clock.Now()
	trace := uuid.NewString()

	if !deliverAt.After(now) {
		s.log.Info("reminder due immediately",
			logx.String("trace", trace),
			logx.Int64("recipient", recipient),
			logx.Time("deliver_at", deliverAt),
		)
		s.deliver(job{trace: trace, recipient: recipient, payload: payload})
		return
	}

	key := keyFor(recipient, payload, deliverAt)
	s.mu.Lock()
	if _, exists := s.timers[key]; exists {
		s.mu.Unlock()
		s.log.Info("identical reminder already armed, keeping the first",
			logx.String("trace", trace),
			logx.Int64("recipient", recipient),
			logx.Time("deliver_at", deliverAt),
		)
		return
	}
	s.timers[key] = s.clock.AfterFunc(deliverAt.Sub(now), func() {
		s.fire(key, job{trace: trace, recipient: recipient, payload: payload})
	})
	s.mu.Unlock()

	s.log.Debug("reminder armed",
		logx.String("trace", trace),
		logx.Int64("recipient", recipient),
		logx.Time("deliver_at", deliverAt),
		logx.Int("lead_minutes", leadMinutes),
	)
}

// Pending reports the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) fire(key jobKey, j job) {
	s.mu.Lock()
	delete(s.timers, key)
	s.mu.Unlock()

	select {
	case s.queue <- j:
	case <-s.stopCh:
	default:
		s.log.Warn("notification queue full, dropping reminder",
			logx.String("trace", j.trace), logx.Int64("recipient", j.recipient))
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case j := <-s.queue:
			s.deliver(j)
		}
	}
}

func (s *Scheduler) deliver(j job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic during delivery",
				logx.String("trace", j.trace),
				logx.Int64("recipient", j.recipient),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliverTimeout)
	defer cancel()

	if err := s.delivery.Deliver(ctx, j.recipient, j.payload); err != nil {
		s.log.Error("reminder delivery failed",
			logx.String("trace", j.trace),
			logx.Int64("recipient", j.recipient),
			logx.Err(err),
		)
		return
	}
	s.log.Info("reminder delivered",
		logx.String("trace", j.trace), logx.Int64("recipient", j.recipient))
}
