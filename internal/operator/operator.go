// Package operator is the shop owner's Telegram console: it toggles the
// engine, shows its state and delivery history, and posts a summary after
// every firing.
package operator

import (
	"context"
	"sync"
	"time"

	"kasbon/internal/engine"
	"kasbon/internal/eventbus"
	"kasbon/internal/ledger"
	"kasbon/internal/notifier"
	"kasbon/internal/reminder"
	"kasbon/internal/storage"
	kit "kasbon/internal/transport"
	logx "kasbon/pkg/logx"
)

type Config struct {
	Owners         []int64
	CommandTimeout time.Duration
	Workers        int
	// Summaries posts a message after every firing.
	Summaries bool
}

// Engine is the slice of engine.Driver the console needs.
type Engine interface {
	State() engine.State
	NextTrigger(ctx context.Context) (time.Time, reminder.Configuration, error)
	RunNow(ctx context.Context) (engine.Report, error)
	LastReport() (engine.Report, bool)
}

// Identity resolves the chat-bot's public handle.
type Identity interface {
	Identity(ctx context.Context) (string, error)
}

type Inbox interface {
	Inbox(limit int) []notifier.InboxItem
}

type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Deps may leave Bot, Inbox and Notifier nil.
type Deps struct {
	Store    storage.Store
	Engine   Engine
	Ledger   *ledger.Ledger
	Bot      Identity
	Inbox    Inbox
	Notifier Notifier
	Renderer *reminder.Renderer
}

type Console struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
	log  logx.Logger
	rt   *router
	now  func() time.Time

	// runCtx outlives a single command so /runnow can finish in the background.
	runCtx context.Context
}

func New(cfg Config, deps Deps, adapter kit.Adapter, log logx.Logger) *Console {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if deps.Renderer == nil {
		deps.Renderer = reminder.NewRenderer("", "")
	}
	log = log.With(logx.Component("operator"))
	c := &Console{cfg: cfg, deps: deps, log: log, now: time.Now, runCtx: context.Background()}
	c.rt = newRouter(adapter, log, cfg.CommandTimeout, cfg.Workers)
	c.rt.setOwners(cfg.Owners)
	c.rt.register(c.commands())
	return c
}

// Apply updates the owner list and summary flag.
func (c *Console) Apply(cfg Config) {
	c.rt.setOwners(cfg.Owners)
	c.mu.Lock()
	c.cfg.Summaries = cfg.Summaries
	c.mu.Unlock()
}

// Run routes updates until ctx is done. It refreshes the command menu first
// when the adapter supports it.
func (c *Console) Run(ctx context.Context, updates <-chan kit.Update) error {
	c.runCtx = ctx
	if up, ok := c.rt.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := up.UpdateMenuCommands(mctx, c.rt.menu()); err != nil {
			c.log.Warn("command menu update failed", logx.Err(err))
		}
		cancel()
	}
	return c.rt.run(ctx, updates)
}

// WatchRuns posts a summary for every finished firing until ctx is done.
func (c *Console) WatchRuns(ctx context.Context, bus eventbus.Bus) error {
	if bus == nil {
		<-ctx.Done()
		return nil
	}
	ch, unsub := bus.Subscribe(16, engine.EventRunFinished)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			rep, ok := ev.Data.(engine.Report)
			if !ok {
				continue
			}
			c.postSummary(ctx, rep)
		}
	}
}

func (c *Console) postSummary(ctx context.Context, rep engine.Report) {
	c.mu.Lock()
	enabled := c.cfg.Summaries
	c.mu.Unlock()
	if !enabled || c.deps.Notifier == nil {
		return
	}
	prio := 3
	if rep.Failed > 0 || rep.Err != "" {
		prio = 7
	}
	if err := c.deps.Notifier.Notify(ctx, kit.Notification{Priority: prio, Text: formatReport(rep)}); err != nil {
		c.log.Warn("run summary not posted", logx.Err(err))
	}
}
