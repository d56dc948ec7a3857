package config

import (
	"kasbon/internal/reminder"
)

// Config is the daemon configuration file (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m"). Secrets may be
// left empty here and supplied through KASBON_* environment variables.
type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Engine      EngineConfig      `json:"engine"`
	Platform    PlatformConfig    `json:"platform"`
	Debtors     DebtorsConfig     `json:"debtors"`
	ChatBot     ChatBotConfig     `json:"chatbot"`
	Share       ShareConfig       `json:"share"`
	Operator    OperatorConfig    `json:"operator"`
	Push        *PushConfig       `json:"push,omitempty"`
	Diagnostics DiagnosticsConfig `json:"diagnostics"`

	// Reminder seeds the stored reminder configuration when the store is
	// empty, and replaces it wholesale when it changes on reload.
	Reminder *reminder.Configuration `json:"reminder,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence backend. Omitted means in-memory.
//
//	"storage": { "driver": "sqlite", "path": "./kasbon.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	HistoryCap  int    `json:"history_cap,omitempty"`
}

// EngineConfig tunes the scheduler driver and the per-run dispatch.
//
// Defaults: poll_interval 1m, tolerance 5m, call_timeout 15s,
// call_spacing 400ms, escalation 7/14 days.
type EngineConfig struct {
	PollInterval      string `json:"poll_interval,omitempty"`
	Tolerance         string `json:"tolerance,omitempty"`
	CallTimeout       string `json:"call_timeout,omitempty"`
	CallSpacing       string `json:"call_spacing,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
	Locale            string `json:"locale,omitempty"`
	CurrencyPrefix    string `json:"currency_prefix,omitempty"`
	WarningAfterDays  int    `json:"warning_after_days,omitempty"`
	CriticalAfterDays int    `json:"critical_after_days,omitempty"`
}

// PlatformConfig declares what the delivery target can do.
type PlatformConfig struct {
	LocalNotifications bool `json:"local_notifications"`
	NativeShare        bool `json:"native_share"`
}

type DebtorsConfig struct {
	Driver  string `json:"driver"`
	Path    string `json:"path,omitempty"`
	URL     string `json:"url,omitempty"`
	Token   string `json:"token,omitempty"`
	DSN     string `json:"dsn,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type ChatBotConfig struct {
	Token         string `json:"token,omitempty"`
	APIURL        string `json:"api_url,omitempty"`
	DefaultChatID string `json:"default_chat_id,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

type ShareConfig struct {
	ProviderURL        string `json:"provider_url,omitempty"`
	AppScheme          string `json:"app_scheme,omitempty"`
	DefaultCountryCode string `json:"default_country_code,omitempty"`
}

// OperatorConfig is the owner's Telegram console.
type OperatorConfig struct {
	Enabled        bool    `json:"enabled"`
	Token          string  `json:"token,omitempty"`
	APIURL         string  `json:"api_url,omitempty"`
	OwnerUserIDs   []int64 `json:"owner_user_ids"`
	NotifyChatID   int64   `json:"notify_chat_id,omitempty"`
	PollTimeout    string  `json:"poll_timeout,omitempty"`
	CommandTimeout string  `json:"command_timeout,omitempty"`
	Summaries      bool    `json:"summaries"`
}

// PushConfig controls the notification pipeline backing the app channel.
// If the section is omitted the pipeline runs with defaults.
type PushConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	InboxSize       int    `json:"inbox_size,omitempty"`
}

// DiagnosticsConfig exposes /healthz, /metrics and optionally pprof.
//
// Prefer a loopback addr; a public addr needs token or allow_insecure.
type DiagnosticsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	MetricsPath   string `json:"metrics_path,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
