package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kasbon/internal/config"
	"kasbon/internal/debtors"
	"kasbon/internal/delivery"
	chatbot "kasbon/internal/delivery/telegram"
	"kasbon/internal/engine"
	"kasbon/internal/eventbus"
	"kasbon/internal/ledger"
	"kasbon/internal/notifier"
	"kasbon/internal/observability/diagnostics"
	"kasbon/internal/observability/metrics"
	"kasbon/internal/operator"
	"kasbon/internal/runtime/supervisor"
	"kasbon/internal/storage"
	kit "kasbon/internal/transport"
	telegram "kasbon/internal/transport/telegram"
	logx "kasbon/pkg/logx"
	"kasbon/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	metrics *metrics.Metrics
	ledger  *ledger.Ledger
	source  debtors.Source
	chat    *chatbot.Client

	// adapter is nil when the operator console is disabled.
	adapter kit.Adapter
	notif   *notifier.Service
	disp    *delivery.Dispatcher
	engine  *engine.Driver
	console *operator.Console
	diag    *diagnostics.Server

	updates chan kit.Update
}

// NewApp loads cfgPath and builds every component. Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg))
	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log.With(logx.Component("app")),
		bus:     eventbus.New(),
		metrics: metrics.New(),
		updates: make(chan kit.Update, 256),
	}
	if err := a.build(ctx, cfg, log); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, log logx.Logger) error {
	sc, historyCap, durable, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if durable {
		st, err := storage.Open(sc, log.With(logx.Component("storage")))
		if err != nil {
			return err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	if a.store == nil {
		a.store = storage.NewMemory()
		a.log.Warn("no durable storage configured; reminder state is lost on exit")
	}
	if seeded, err := seedReminder(ctx, a.store, cfg.Reminder, false); err != nil {
		return err
	} else if seeded {
		a.log.Info("reminder configuration seeded from config file")
	}

	a.ledger = ledger.New(a.store, log.With(logx.Component("ledger")),
		ledger.WithCap(historyCap),
		ledger.WithErrorHook(a.metrics.LedgerWriteError),
	)

	dc, err := mapDebtorsConfig(cfg)
	if err != nil {
		return err
	}
	if a.source, err = debtors.Open(ctx, dc, log); err != nil {
		return err
	}

	cc, err := mapChatBotConfig(cfg)
	if err != nil {
		return err
	}
	if a.chat, err = chatbot.New(cc, log.With(logx.Component("chatbot"))); err != nil {
		return err
	}

	if cfg.Operator.Enabled {
		tc, err := mapTransportConfig(cfg)
		if err != nil {
			return err
		}
		ad, err := telegram.New(tc, log.With(logx.Component("telegram")))
		if err != nil {
			return err
		}
		a.adapter = ad
	}

	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	a.notif = notifier.New(nc, a.adapter, log.With(logx.Component("notifier")), a.bus, a.store)

	dlc, err := mapDeliveryConfig(cfg)
	if err != nil {
		return err
	}
	renderer := mapRenderer(cfg)
	a.disp = delivery.NewDispatcher(dlc, delivery.Deps{
		Local:  a.notif,
		InApp:  a.notif,
		Bot:    a.chat,
		Opener: a.notif,
	}, renderer, log.With(logx.Component("delivery")))

	ec, err := mapEngineConfig(cfg)
	if err != nil {
		return err
	}
	a.engine, err = engine.New(ec, engine.Deps{
		Store:      a.store,
		Debtors:    a.source,
		Dispatcher: a.disp,
		Ledger:     a.ledger,
		Bus:        a.bus,
		Metrics:    a.metrics,
	}, log.With(logx.Component("engine")))
	if err != nil {
		return err
	}

	if a.adapter != nil {
		oc, err := mapOperatorConfig(cfg)
		if err != nil {
			return err
		}
		a.console = operator.New(oc, operator.Deps{
			Store:    a.store,
			Engine:   a.engine,
			Ledger:   a.ledger,
			Bot:      a.chat,
			Inbox:    a.notif,
			Notifier: a.notif,
			Renderer: renderer,
		}, a.adapter, log)
	}

	gc, err := mapDiagnosticsConfig(cfg)
	if err != nil {
		return err
	}
	a.diag = diagnostics.New(gc, a.metrics.Gatherer(), a.health, log)
	return nil
}

func (a *App) closeResources() {
	if a.source != nil {
		debtors.Close(a.source)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// Engine exposes the reminder driver.
func (a *App) Engine() *engine.Driver { return a.engine }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.Component("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMappings(cfg)
	})

	run := a.sup.Context()
	if a.adapter != nil {
		if err := a.adapter.Start(run, a.updates); err != nil {
			return err
		}
	}
	a.notif.Start(run)
	if err := a.engine.Start(run); err != nil {
		return err
	}
	a.diag.Start(run)

	if a.console != nil {
		a.sup.Go("operator.dispatch", func(c context.Context) error {
			return a.console.Run(c, a.updates)
		})
		a.sup.Go("operator.summaries", func(c context.Context) error {
			return a.console.WatchRuns(c, a.bus)
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// validateMappings rejects reloads whose values cannot be mapped onto the
// running components.
func validateMappings(cfg *config.Config) error {
	var errs []error
	_, _, _, err := mapStorageConfig(cfg)
	errs = append(errs, err)
	_, err = mapEngineConfig(cfg)
	errs = append(errs, err)
	_, err = mapDeliveryConfig(cfg)
	errs = append(errs, err)
	_, err = mapNotifierConfig(cfg)
	errs = append(errs, err)
	_, err = mapDiagnosticsConfig(cfg)
	errs = append(errs, err)
	return errors.Join(errs...)
}

// applyConfig fans a committed reload out to the live components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	_, _ = systemd.Reloading()
	defer func() {
		_, _ = systemd.Status("config reloaded: " + strings.Join(sections, ","))
		_, _ = systemd.Ready()
	}()

	for _, s := range sections {
		if s == "storage" || s == "debtors" {
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}
	if prev != nil && (prev.Operator.Enabled != next.Operator.Enabled || prev.Operator.Token != next.Operator.Token) {
		a.log.Warn("operator bot token or enablement changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogging(next))

	if cc, err := mapChatBotConfig(next); err != nil {
		a.log.Warn("invalid chatbot config; keeping previous", logx.Err(err))
	} else if err := a.chat.Apply(cc); err != nil {
		a.log.Warn("chatbot reconfigure failed", logx.Err(err))
	}

	if dc, err := mapDeliveryConfig(next); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dc, mapRenderer(next))
	}

	if ec, err := mapEngineConfig(next); err != nil {
		a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
	} else if err := a.engine.Apply(ctx, ec); err != nil {
		a.log.Error("engine reconfigure failed", logx.Err(err))
	}

	if nc, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid push config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(nc)
		switch {
		case wasEnabled && !nc.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && nc.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if a.console != nil {
		if oc, err := mapOperatorConfig(next); err == nil {
			a.console.Apply(oc)
		}
	}

	if gc, err := mapDiagnosticsConfig(next); err != nil {
		a.log.Warn("invalid diagnostics config; keeping previous", logx.Err(err))
	} else {
		a.diag.Reconfigure(ctx, gc)
	}

	if config.ReminderChanged(prev, next) {
		if ok, err := seedReminder(context.WithoutCancel(ctx), a.store, next.Reminder, true); err != nil {
			a.log.Warn("reminder configuration not replaced", logx.Err(err))
		} else if ok {
			a.log.Info("reminder configuration replaced from config file")
		}
	}

	a.log.Info("config reloaded", fields...)
}

// health feeds /healthz. A store that cannot be read marks the daemon degraded.
func (a *App) health() (map[string]any, error) {
	out := map[string]any{
		"engine_state":     a.engine.State().String(),
		"notifier_pending": a.notif.Pending(),
		"bus_dropped":      a.bus.Dropped(),
		"operator":         a.console != nil,
	}
	if rep, ok := a.engine.LastReport(); ok {
		out["last_outcome"] = string(rep.Outcome)
		out["last_run"] = rep.FinishedAt
	}
	if a.sup != nil {
		out["tasks_active"] = a.sup.Counters().Active
		var failing []string
		for _, t := range a.sup.Tasks() {
			if t.LastErr != "" {
				failing = append(failing, t.Name+": "+t.LastErr)
			}
		}
		if len(failing) > 0 {
			out["tasks_failing"] = failing
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := a.store.GetRunState(ctx)
	if err != nil {
		return out, fmt.Errorf("storage: %w", err)
	}
	if st.LastFiredAt != nil {
		out["last_fired_at"] = *st.LastFiredAt
	}
	return out, nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	// step runs a shutdown step with an upper bound so one component can't
	// stall the whole stop. The caller's deadline is never extended.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The engine goes first so an in-flight firing finishes its current call
	// and records its run state.
	step("engine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("diagnostics", time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.adapter != nil {
		step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	}
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("debtors", time.Second, func(context.Context) error { debtors.Close(a.source); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
