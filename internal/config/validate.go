package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kasbon/internal/delivery"
	"kasbon/internal/reminder"
)

const (
	DefaultPollInterval = time.Minute
	DefaultTolerance    = 5 * time.Minute
)

// PollWindow resolves the poll interval and firing tolerance. The poll may
// not be longer than the firing window, which is twice the tolerance.
func (e EngineConfig) PollWindow() (poll, tol time.Duration, err error) {
	poll, err = ParseDurationOrDefault("engine.poll_interval", e.PollInterval, DefaultPollInterval)
	if err != nil {
		return 0, 0, err
	}
	tol, err = ParseDurationOrDefault("engine.tolerance", e.Tolerance, DefaultTolerance)
	if err != nil {
		return 0, 0, err
	}
	if poll > 2*tol {
		return 0, 0, fmt.Errorf("engine.poll_interval %s must not exceed twice engine.tolerance %s", poll, tol)
	}
	return poll, tol, nil
}

// Escalation fills unset thresholds from reminder.DefaultEscalationPolicy.
func (e EngineConfig) Escalation() reminder.EscalationPolicy {
	p := reminder.DefaultEscalationPolicy()
	if e.WarningAfterDays > 0 {
		p.WarningAfterDays = e.WarningAfterDays
	}
	if e.CriticalAfterDays > 0 {
		p.CriticalAfterDays = e.CriticalAfterDays
	}
	return p
}

func validateEscalation(e EngineConfig) error {
	if e.WarningAfterDays < 0 || e.CriticalAfterDays < 0 {
		return errors.New("engine: escalation thresholds must be >= 0")
	}
	if p := e.Escalation(); p.CriticalAfterDays <= p.WarningAfterDays {
		return fmt.Errorf("engine.critical_after_days %d must exceed warning_after_days %d (unset values default to %d/%d)",
			p.CriticalAfterDays, p.WarningAfterDays,
			reminder.DefaultEscalationPolicy().WarningAfterDays, reminder.DefaultEscalationPolicy().CriticalAfterDays)
	}
	return nil
}

// Validate rejects configs the daemon cannot run with. It is used both at
// startup and before committing a hot reload.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	e := cfg.Engine
	_, _, err := e.PollWindow()
	add(err)
	dur("engine.call_timeout", e.CallTimeout)
	dur("engine.call_spacing", e.CallSpacing)
	if tz := strings.TrimSpace(e.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("engine.timezone: %w", err))
		}
	}
	add(validateEscalation(e))

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory", "mem":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add(fmt.Errorf("storage.path is required for driver %q", s.Driver))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		dur("storage.busy_timeout", s.BusyTimeout)
		if s.HistoryCap < 0 {
			add(errors.New("storage.history_cap must be >= 0"))
		}
	}

	d := cfg.Debtors
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "file":
		if strings.TrimSpace(d.Path) == "" {
			add(errors.New("debtors.path is required for the file driver"))
		}
	case "http", "https":
		if strings.TrimSpace(d.URL) == "" {
			add(errors.New("debtors.url is required for the http driver"))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(d.DSN) == "" {
			add(fmt.Errorf("debtors.dsn (or %s) is required for the postgres driver", EnvDebtorsDSN))
		}
	case "":
		add(errors.New("debtors.driver is required"))
	default:
		add(fmt.Errorf("debtors.driver: unknown driver %q", d.Driver))
	}
	dur("debtors.timeout", d.Timeout)

	dur("chatbot.timeout", cfg.ChatBot.Timeout)
	if id := strings.TrimSpace(cfg.ChatBot.DefaultChatID); id != "" && !delivery.ValidChatID(id) {
		add(fmt.Errorf("chatbot.default_chat_id %q must be numeric", id))
	}

	op := cfg.Operator
	if op.Enabled {
		if strings.TrimSpace(op.Token) == "" {
			add(fmt.Errorf("operator.token (or %s) is required when the operator bot is enabled", EnvOperatorToken))
		}
		if len(op.OwnerUserIDs) == 0 {
			add(errors.New("operator.owner_user_ids must not be empty"))
		}
	}
	dur("operator.poll_timeout", op.PollTimeout)
	dur("operator.command_timeout", op.CommandTimeout)

	if p := cfg.Push; p != nil {
		dur("push.retry_base", p.RetryBase)
		dur("push.retry_max_delay", p.RetryMaxDelay)
		dur("push.send_timeout", p.SendTimeout)
		dur("push.dedup_window", p.DedupWindow)
	}

	dg := cfg.Diagnostics
	dur("diagnostics.read_timeout", dg.ReadTimeout)
	dur("diagnostics.write_timeout", dg.WriteTimeout)
	dur("diagnostics.idle_timeout", dg.IdleTimeout)

	if cfg.Reminder != nil {
		if err := cfg.Reminder.Validate(); err != nil {
			add(fmt.Errorf("reminder: %w", err))
		}
	}
	return errors.Join(errs...)
}
