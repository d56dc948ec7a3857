package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"kasbon/internal/eventbus"
	rtsup "kasbon/internal/runtime/supervisor"
	"kasbon/internal/storage"
	kit "kasbon/internal/transport"
	logx "kasbon/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoTarget  = errors.New("notifier has no target chat")
)

const (
	historySize     = 300
	defaultChannel  = "telegram"
	defaultWorkers  = 2
	defaultQueue    = 512
	defaultRate     = 3
	defaultInbox    = 200
	defaultDedupMax = 2000
)

type job struct {
	n   kit.Notification
	key string
}

// run is one Start..Stop cycle of the worker pool.
type run struct {
	queue chan job
	sup   *rtsup.Supervisor
	// stopping is closed once Stop has finished draining.
	stopping chan struct{}
}

// Service queues operator notifications and delivers them through the chat
// adapter. It is safe for concurrent use.
type Service struct {
	log     logx.Logger
	adapter kit.Sender
	bus     eventbus.Bus
	store   storage.Store

	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	cur       *run
	accepting bool
	inflight  sync.WaitGroup

	dedup   *dedupCache
	history ring[HistoryItem]
	inbox   ring[InboxItem]
	timers  timerSet
}

// New returns a stopped service. adapter may be nil, in which case queued
// notifications are dropped by the workers.
func New(cfg Config, adapter kit.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus, store: store, dedup: newDedupCache()}
	s.Apply(cfg)
	return s
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueue
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRate
	}
	cfg.RetryMax = max(cfg.RetryMax, 0)
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	cfg.DedupWindow = max(cfg.DedupWindow, 0)
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = defaultDedupMax
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInbox
	}
	return cfg
}

// Apply swaps the config. Worker count and queue size take effect on the
// next Start.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Enabled() bool { return s.config().Enabled }

// Target is the configured operator chat.
func (s *Service) Target() kit.ChatTarget { return s.config().Target }

// Start launches the workers. It is idempotent and a no-op when disabled. A
// Start racing a Stop waits for the drain to finish first.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	for s.cur != nil && s.cur.stopping != nil {
		wait := s.cur.stopping
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.cur != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	r := &run{
		queue: make(chan job, s.cfg.QueueSize),
		sup: rtsup.New(ctx,
			rtsup.WithLogger(s.log.With(logx.Component("notifier"))),
			rtsup.WithCancelOnError(false),
		),
	}
	s.cur, s.accepting = r, true
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := range workers {
		r.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, r.queue)
			if c.Err() != nil || s.draining(r) {
				return context.Canceled
			}
			return errors.New("notifier worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

func (s *Service) draining(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.stopping != nil
}

// Stop refuses new work, cancels pending timers and drains the queue until
// ctx ends, after which the workers are cancelled.
func (s *Service) Stop(ctx context.Context) {
	s.timers.cancelAll()

	s.mu.Lock()
	r := s.cur
	if r == nil {
		s.mu.Unlock()
		return
	}
	if r.stopping != nil {
		wait := r.stopping
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	r.stopping = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.inflight.Wait()
		close(r.queue)
		_ = r.sup.Wait(context.Background())
		s.mu.Lock()
		if s.cur == r {
			s.cur = nil
		}
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.sup.Cancel()
	}
}

// Notify queues n for the configured target. Duplicates inside the dedup
// window are dropped silently.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	cfg, r := s.cfg, s.cur
	switch {
	case !cfg.Enabled:
		s.mu.Unlock()
		return ErrDisabled
	case !s.accepting || r == nil:
		s.mu.Unlock()
		return ErrStopped
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	if n.Target.ChatID == 0 {
		n.Target = cfg.Target
	}
	if n.Target.ChatID == 0 {
		return ErrNoTarget
	}
	if n.Channel == "" {
		n.Channel = defaultChannel
	}

	key := dedupKey(n)
	if cfg.DedupWindow > 0 && !s.admit(ctx, key, time.Now(), cfg) {
		s.publish("notifier.deduped", n, key, nil)
		return nil
	}

	select {
	case r.queue <- job{n: n, key: key}:
		s.publish("notifier.queued", n, key, nil)
		return nil
	default:
		s.publish("notifier.dropped", n, key, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) publish(typ string, n kit.Notification, key string, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{Channel: n.Channel, ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, Key: key, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// Snapshot returns recently sent texts, oldest first.
func (s *Service) Snapshot() []HistoryItem { return s.history.oldestFirst() }
