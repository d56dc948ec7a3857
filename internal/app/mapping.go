package app

import (
	"fmt"
	"strings"
	"time"

	"kasbon/internal/config"
	"kasbon/internal/debtors"
	"kasbon/internal/delivery"
	chatbot "kasbon/internal/delivery/telegram"
	"kasbon/internal/engine"
	"kasbon/internal/notifier"
	"kasbon/internal/observability/diagnostics"
	"kasbon/internal/operator"
	"kasbon/internal/reminder"
	"kasbon/internal/storage"
	kit "kasbon/internal/transport"
	telegram "kasbon/internal/transport/telegram"
	logx "kasbon/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig returns enabled=false when no durable store is configured;
// the caller then falls back to memory.
func mapStorageConfig(cfg *config.Config) (storage.Config, int, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, storage.DefaultHistoryCap, false, nil
	}
	sc := cfg.Storage
	historyCap := sc.HistoryCap
	if historyCap <= 0 {
		historyCap = storage.DefaultHistoryCap
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, historyCap, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, 0, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, historyCap, true, nil
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	poll, tol, err := cfg.Engine.PollWindow()
	if err != nil {
		return engine.Config{}, err
	}
	esc := cfg.Engine.Escalation()
	if esc.CriticalAfterDays <= esc.WarningAfterDays {
		return engine.Config{}, fmt.Errorf("engine: escalation thresholds out of order: warning %d, critical %d", esc.WarningAfterDays, esc.CriticalAfterDays)
	}
	return engine.Config{
		PollInterval: poll,
		Tolerance:    tol,
		Timezone:     cfg.Engine.Timezone,
		Escalation:   esc,
	}, nil
}

func mapRenderer(cfg *config.Config) *reminder.Renderer {
	return reminder.NewRenderer(cfg.Engine.Locale, cfg.Engine.CurrencyPrefix)
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	callTimeout, err := config.ParseDurationOrDefault("engine.call_timeout", cfg.Engine.CallTimeout, 15*time.Second)
	if err != nil {
		return delivery.Config{}, err
	}
	spacing, err := config.ParseDurationOrDefault("engine.call_spacing", cfg.Engine.CallSpacing, 400*time.Millisecond)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		Caps: delivery.PlatformCapabilities{
			SupportsLocalNotifications: cfg.Platform.LocalNotifications,
			NativeShare:                cfg.Platform.NativeShare,
		},
		DefaultChatID: strings.TrimSpace(cfg.ChatBot.DefaultChatID),
		CallTimeout:   callTimeout,
		CallSpacing:   spacing,
		Share: delivery.ShareConfig{
			ProviderURL:        cfg.Share.ProviderURL,
			AppScheme:          cfg.Share.AppScheme,
			DefaultCountryCode: cfg.Share.DefaultCountryCode,
		},
		Escalation: cfg.Engine.Escalation(),
	}, nil
}

func mapChatBotConfig(cfg *config.Config) (chatbot.Config, error) {
	timeout, err := config.ParseDurationOrDefault("chatbot.timeout", cfg.ChatBot.Timeout, 15*time.Second)
	if err != nil {
		return chatbot.Config{}, err
	}
	return chatbot.Config{Token: cfg.ChatBot.Token, APIURL: cfg.ChatBot.APIURL, Timeout: timeout}, nil
}

func mapDebtorsConfig(cfg *config.Config) (debtors.Config, error) {
	timeout, err := config.ParseDurationOrDefault("debtors.timeout", cfg.Debtors.Timeout, 30*time.Second)
	if err != nil {
		return debtors.Config{}, err
	}
	d := cfg.Debtors
	return debtors.Config{Driver: d.Driver, Path: d.Path, URL: d.URL, Token: d.Token, DSN: d.DSN, Timeout: timeout}, nil
}

func mapTransportConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("operator.poll_timeout", cfg.Operator.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Operator.Token, APIURL: cfg.Operator.APIURL, PollTimeout: poll}, nil
}

func mapOperatorConfig(cfg *config.Config) (operator.Config, error) {
	timeout, err := config.ParseDurationOrDefault("operator.command_timeout", cfg.Operator.CommandTimeout, 30*time.Second)
	if err != nil {
		return operator.Config{}, err
	}
	return operator.Config{
		Owners:         append([]int64(nil), cfg.Operator.OwnerUserIDs...),
		CommandTimeout: timeout,
		Summaries:      cfg.Operator.Summaries,
	}, nil
}

// notifyTarget is the operator chat that app-channel notices go to: the
// explicit notify chat, else the first owner's private chat.
func notifyTarget(cfg *config.Config) kit.ChatTarget {
	if id := cfg.Operator.NotifyChatID; id != 0 {
		return kit.ChatTarget{ChatID: id}
	}
	if len(cfg.Operator.OwnerUserIDs) > 0 {
		return kit.ChatTarget{ChatID: cfg.Operator.OwnerUserIDs[0]}
	}
	return kit.ChatTarget{}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	p := config.DefaultPush()
	if cfg.Push != nil {
		p = *cfg.Push
	}
	dur := func(path, raw string, def time.Duration) (time.Duration, error) {
		return config.ParseDurationOrDefault(path, raw, def)
	}
	retryBase, err := dur("push.retry_base", p.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMax, err := dur("push.retry_max_delay", p.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := dur("push.send_timeout", p.SendTimeout, 15*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := dur("push.dedup_window", p.DedupWindow, time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         p.Enabled,
		Target:          notifyTarget(cfg),
		Workers:         p.Workers,
		QueueSize:       p.QueueSize,
		RatePerSec:      p.RatePerSec,
		RetryMax:        p.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMax,
		SendTimeout:     sendTimeout,
		DedupWindow:     dedup,
		DedupMaxEntries: p.DedupMaxEntries,
		PersistDedup:    p.PersistDedup,
		InboxSize:       p.InboxSize,
	}, nil
}

func mapDiagnosticsConfig(cfg *config.Config) (diagnostics.Config, error) {
	d := cfg.Diagnostics
	read, err := config.ParseDurationOrDefault("diagnostics.read_timeout", d.ReadTimeout, 5*time.Second)
	if err != nil {
		return diagnostics.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("diagnostics.write_timeout", d.WriteTimeout, 30*time.Second)
	if err != nil {
		return diagnostics.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("diagnostics.idle_timeout", d.IdleTimeout, time.Minute)
	if err != nil {
		return diagnostics.Config{}, err
	}
	return diagnostics.Config{
		Enabled:              d.Enabled,
		Addr:                 d.Addr,
		MetricsPath:          d.MetricsPath,
		PprofPrefix:          d.PprofPrefix,
		Pprof:                d.Pprof,
		Token:                d.Token,
		AllowInsecure:        d.AllowInsecure,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
	}, nil
}
