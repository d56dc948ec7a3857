package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"kasbon/internal/debtors"
	"kasbon/internal/delivery"
	"kasbon/internal/eventbus"
	"kasbon/internal/governor"
	"kasbon/internal/ledger"
	"kasbon/internal/observability/metrics"
	"kasbon/internal/reminder"
	"kasbon/internal/storage"
	logx "kasbon/pkg/logx"
)

// Deps are the driver's collaborators. Store, Debtors and Dispatcher are
// required; the rest may be nil.
type Deps struct {
	Store      storage.Store
	Debtors    debtors.Source
	Dispatcher *delivery.Dispatcher
	Ledger     *ledger.Ledger
	Bus        eventbus.Bus
	Metrics    *metrics.Metrics
}

type Driver struct {
	deps Deps
	log  logx.Logger
	now  func() time.Time

	state atomic.Int32

	mu   sync.Mutex
	cfg  Config
	loc  *time.Location
	c    *cron.Cron
	last *Report
}

func New(cfg Config, deps Deps, log logx.Logger) (*Driver, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Debtors == nil {
		return nil, errors.New("engine: debtor source is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("engine: dispatcher is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Driver{deps: deps, log: log.With(logx.Component("engine")), now: time.Now}
	d.cfg, d.loc = normalize(cfg, d.log)
	return d, nil
}

func normalize(cfg Config, log logx.Logger) (Config, *time.Location) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = governor.DefaultTolerance
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	return cfg, loc
}

// SetClock overrides the time source. Tests only.
func (d *Driver) SetClock(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

func (d *Driver) State() State { return State(d.state.Load()) }

// LastReport returns the most recent firing report, if any.
func (d *Driver) LastReport() (Report, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Report{}, false
	}
	return *d.last, true
}

// Location is the zone trigger times are computed in.
func (d *Driver) Location() *time.Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loc
}

// Start begins polling. It is a no-op when already started.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return nil
	}
	return d.startLocked(ctx)
}

func (d *Driver) startLocked(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(d.loc),
		cron.WithChain(cron.Recover(cronLogger{d.log}), cron.SkipIfStillRunning(cronLogger{d.log})),
	)
	spec := fmt.Sprintf("@every %s", d.cfg.PollInterval)
	if _, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = d.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("engine: schedule poll: %w", err)
	}
	c.Start()
	d.c = c
	d.log.Info("engine started", logx.Duration("poll", d.cfg.PollInterval), logx.String("tz", d.loc.String()))
	return nil
}

// Stop halts polling and waits for an in-flight firing to finish or ctx.
func (d *Driver) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	d.c = nil
	d.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	d.log.Info("engine stopped")
}

// Apply swaps the driver config, restarting the poll loop when running.
func (d *Driver) Apply(ctx context.Context, cfg Config) error {
	d.mu.Lock()
	prev := d.cfg
	d.cfg, d.loc = normalize(cfg, d.log)
	running := d.c != nil
	restart := running && (prev.PollInterval != d.cfg.PollInterval || prev.Timezone != d.cfg.Timezone)
	var old *cron.Cron
	if restart {
		old = d.c
		d.c = nil
	}
	d.mu.Unlock()

	if !restart {
		return nil
	}
	<-old.Stop().Done()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return nil
	}
	return d.startLocked(ctx)
}

func (d *Driver) snapshotCfg() (Config, *time.Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.loc
}

// NextTrigger reports the next slot for the stored configuration.
func (d *Driver) NextTrigger(ctx context.Context) (time.Time, reminder.Configuration, error) {
	cfg, ok, err := d.deps.Store.GetReminderConfig(ctx)
	if err != nil {
		return time.Time{}, cfg, err
	}
	if !ok {
		return time.Time{}, cfg, ErrUnconfigured
	}
	_, loc := d.snapshotCfg()
	next, err := reminder.NextTrigger(cfg, d.now().In(loc))
	return next, cfg, err
}

// Tick runs one poll: it fires only when enabled and the governor agrees.
// Ticks that arrive while busy return OutcomeBusy without side effects.
func (d *Driver) Tick(ctx context.Context) (Report, error) {
	return d.run(ctx, false)
}

// RunNow forces a firing regardless of the schedule. Single-flight still
// applies and the configuration must be valid and enabled.
func (d *Driver) RunNow(ctx context.Context) (Report, error) {
	return d.run(ctx, true)
}

func (d *Driver) run(ctx context.Context, forced bool) (Report, error) {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StatePolling)) {
		d.log.Debug("tick ignored; engine busy", logx.String("state", d.State().String()))
		if forced {
			return Report{Forced: true, Outcome: OutcomeBusy}, ErrBusy
		}
		return Report{Outcome: OutcomeBusy}, nil
	}
	defer d.state.Store(int32(StateIdle))

	ecfg, loc := d.snapshotCfg()
	now := d.now().In(loc)
	rep := Report{Forced: forced, StartedAt: now}

	finish := func(o Outcome, err error) (Report, error) {
		rep.Outcome = o
		rep.FinishedAt = d.now().In(loc)
		if err != nil {
			rep.Err = err.Error()
		}
		if o != OutcomeNotDue && o != OutcomeDisabled && o != OutcomeUnconfigured {
			d.deps.Metrics.Run(string(o), rep.FinishedAt.Sub(rep.StartedAt))
		}
		return rep, err
	}

	cfg, ok, err := d.deps.Store.GetReminderConfig(ctx)
	if err != nil {
		d.log.Error("read reminder config failed", logx.Err(err))
		return finish(OutcomeStoreError, err)
	}
	if !ok {
		if forced {
			return finish(OutcomeUnconfigured, ErrUnconfigured)
		}
		return finish(OutcomeUnconfigured, nil)
	}
	if !cfg.Enabled {
		if forced {
			return finish(OutcomeDisabled, ErrDisabled)
		}
		return finish(OutcomeDisabled, nil)
	}
	if err := cfg.Validate(); err != nil {
		d.log.Error("reminder config invalid; run aborted", logx.Err(err))
		return finish(OutcomeInvalidConfig, err)
	}
	rep.Frequency = cfg.Frequency

	st, err := d.deps.Store.GetRunState(ctx)
	if err != nil {
		d.log.Error("read run state failed", logx.Err(err))
		return finish(OutcomeStoreError, err)
	}
	if !forced {
		due, err := governor.ShouldFire(cfg, st, now, ecfg.Tolerance)
		if err != nil {
			return finish(OutcomeInvalidConfig, err)
		}
		if !due {
			return finish(OutcomeNotDue, nil)
		}
	}

	d.state.Store(int32(StateFiring))
	d.publish(EventRunStarted, rep)
	d.log.Info("firing", logx.Bool("forced", forced), logx.String("frequency", string(cfg.Frequency)))

	o, err := d.fire(ctx, cfg, ecfg, now, &rep)
	out, err := finish(o, err)
	if o == OutcomeFired {
		d.deps.Metrics.Fired(now)
	}
	d.mu.Lock()
	last := out
	d.last = &last
	d.mu.Unlock()
	d.publish(EventRunFinished, out)
	d.log.Info("firing finished",
		logx.String("outcome", string(out.Outcome)),
		logx.Int("eligible", out.Eligible),
		logx.Int("sent", out.Sent),
		logx.Int("failed", out.Failed),
		logx.Bool("interrupted", out.Interrupted),
		logx.Duration("took", out.FinishedAt.Sub(out.StartedAt)),
	)
	return out, err
}

func (d *Driver) fire(ctx context.Context, cfg reminder.Configuration, ecfg Config, now time.Time, rep *Report) (Outcome, error) {
	all, err := d.deps.Debtors.Snapshot(ctx)
	if err != nil {
		d.log.Error("debtor snapshot failed", logx.Err(err))
		return OutcomeSourceError, fmt.Errorf("debtor snapshot: %w", err)
	}
	rep.Debtors = len(all)
	eligible := reminder.Eligible(all, cfg.Eligibility, now)
	rep.Eligible = len(eligible)

	// Writes outlive cancellation so every attempted call is recorded.
	wctx := context.WithoutCancel(ctx)
	run := d.deps.Dispatcher.Begin(d.stillEnabled)
	for _, debtor := range eligible {
		if !d.stillEnabled(ctx) {
			rep.Interrupted = true
			break
		}
		level := ecfg.Escalation.ForDebtor(debtor, now)
		results := run.Dispatch(ctx, debtor, cfg, level)
		for _, r := range results {
			entry := reminder.NewHistoryEntry(debtor, level, r)
			d.deps.Ledger.Record(wctx, entry)
			d.deps.Metrics.Delivery(string(r.Channel), string(r.Status), string(r.Reason))
			d.publish(EventDelivery, DeliveryEvent{Entry: entry})
			if r.Status == reminder.StatusSent {
				rep.Sent++
			} else {
				rep.Failed++
			}
		}
		rep.Processed++
		if len(results) < len(cfg.Channels.Ordered()) {
			rep.Interrupted = true
			break
		}
	}

	if err := d.deps.Store.PutRunState(wctx, reminder.RunState{LastFiredAt: &now}); err != nil {
		d.log.Error("write run state failed", logx.Err(err))
		return OutcomeStoreError, err
	}
	return OutcomeFired, nil
}

// stillEnabled re-reads the stored flag. A read error keeps the run going;
// only an explicit disable stops it.
func (d *Driver) stillEnabled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	cfg, ok, err := d.deps.Store.GetReminderConfig(ctx)
	if err != nil {
		d.log.Warn("enabled check failed; continuing run", logx.Err(err))
		return true
	}
	return ok && cfg.Enabled
}

func (d *Driver) publish(typ string, data any) {
	if d.deps.Bus == nil {
		return
	}
	d.deps.Bus.Publish(eventbus.Event{Type: typ, Time: d.now(), Data: data})
}

// cronLogger routes robfig/cron's internal logging to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
