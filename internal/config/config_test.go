package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./kasbon.db
engine:
  poll_interval: 30s
  timezone: UTC
  locale: id-ID
  currency_prefix: "Rp "
debtors:
  driver: file
  path: ./debtors.json
chatbot:
  default_chat_id: "-1001"
operator:
  enabled: false
  owner_user_ids: [42]
reminder:
  enabled: true
  frequency: weekly
  time_of_day: "09:00"
  day_of_week: 1
  channels: [telegram, push]
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	m := NewConfigManager(writeFile(t, "kasbon.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.PollInterval != "30s" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Reminder == nil || cfg.Reminder.Frequency != reminder.FrequencyWeekly {
		t.Fatalf("reminder = %+v", cfg.Reminder)
	}
	want := reminder.ChannelSet{reminder.ChannelChatBot, reminder.ChannelApp}
	if len(cfg.Reminder.Channels) != 2 || cfg.Reminder.Channels[0] != want[0] || cfg.Reminder.Channels[1] != want[1] {
		t.Fatalf("channels = %v", cfg.Reminder.Channels)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	if _, err := Decode("c.json", []byte(`{"engine":{"poll":"1m"}}`)); err == nil {
		t.Fatal("unknown field accepted")
	}
	if _, err := Decode("c.json", []byte(`{"debtors":{"driver":"file"}} {}`)); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestEnvSecretsOverlay(t *testing.T) {
	t.Setenv(EnvChatBotToken, "123:abc")
	t.Setenv(EnvDebtorsDSN, "postgres://shop")
	cfg, err := Decode("c.json", []byte(`{"chatbot":{"token":"from-file"},"debtors":{"driver":"postgres"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChatBot.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.ChatBot.Token)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate with env dsn: %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	const key = "KASBON_TEST_DOTENV_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	p := writeFile(t, ".env", key+"=hello\n")
	if err := LoadEnv(p); err != nil {
		t.Fatal(err)
	}
	if os.Getenv(key) != "hello" {
		t.Fatalf("%s = %q", key, os.Getenv(key))
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Debtors: DebtorsConfig{Driver: "file", Path: "d.json"}}
	}
	cases := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no debtors driver", func(c *Config) { c.Debtors.Driver = "" }, "debtors.driver is required"},
		{"bad duration", func(c *Config) { c.Engine.PollInterval = "soon" }, "engine.poll_interval"},
		{"bad tz", func(c *Config) { c.Engine.Timezone = "Mars/Olympus" }, "engine.timezone"},
		{"storage path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"operator token", func(c *Config) { c.Operator = OperatorConfig{Enabled: true, OwnerUserIDs: []int64{1}} }, "operator.token"},
		{"chat id", func(c *Config) { c.ChatBot.DefaultChatID = "@shop" }, "default_chat_id"},
		{"escalation order", func(c *Config) { c.Engine.WarningAfterDays, c.Engine.CriticalAfterDays = 10, 5 }, "critical_after_days"},
		{"warning past default critical", func(c *Config) { c.Engine.WarningAfterDays = 20 }, "critical_after_days 14 must exceed warning_after_days 20"},
		{"critical below default warning", func(c *Config) { c.Engine.CriticalAfterDays = 5 }, "critical_after_days 5 must exceed warning_after_days 7"},
		{"warning below default critical", func(c *Config) { c.Engine.WarningAfterDays = 10 }, ""},
		{"poll steps over window", func(c *Config) { c.Engine.PollInterval, c.Engine.Tolerance = "15m", "5m" }, "must not exceed twice engine.tolerance"},
		{"poll over default window", func(c *Config) { c.Engine.PollInterval = "11m" }, "must not exceed twice engine.tolerance"},
		{"poll equals window", func(c *Config) { c.Engine.PollInterval, c.Engine.Tolerance = "10m", "5m" }, ""},
		{"tight tolerance", func(c *Config) { c.Engine.PollInterval, c.Engine.Tolerance = "2m", "30s" }, "engine.poll_interval 2m0s"},
		{"reminder", func(c *Config) {
			c.Reminder = &reminder.Configuration{Frequency: "hourly", TimeOfDay: "09:00", Channels: reminder.ChannelSet{reminder.ChannelApp}}
		}, "reminder"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mut(c)
			err := Validate(c)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a, _ := Decode("a.yaml", []byte(sampleYAML))
	b, _ := Decode("b.yaml", []byte(sampleYAML))
	if changed, _ := SummarizeConfigChange(a, b); len(changed) != 0 {
		t.Fatalf("identical configs changed: %v", changed)
	}
	b.Engine.PollInterval = "1m"
	b.ChatBot.Token = "secret"
	b.Reminder.TimeOfDay = "10:00"
	changed, attrs := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "chatbot,engine,reminder" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if !ReminderChanged(a, b) || ReminderChanged(a, a) {
		t.Fatal("ReminderChanged mismatch")
	}
	if changed, _ := SummarizeConfigChange(&Config{}, &Config{Push: ptr(DefaultPush())}); len(changed) != 0 {
		t.Fatalf("default push should equal omitted: %v", changed)
	}
}

func ptr[T any](v T) *T { return &v }

func TestWatchPublishesReload(t *testing.T) {
	path := writeFile(t, "kasbon.yaml", sampleYAML)
	m := NewConfigManager(path)
	m.SetLogger(logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(sampleYAML, "poll_interval: 30s", "poll_interval: 45s", 1)
	deadline := time.After(5 * time.Second)
	for {
		if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
			t.Fatal(err)
		}
		select {
		case cfg := <-ch:
			if cfg.Engine.PollInterval != "45s" {
				t.Fatalf("poll = %s", cfg.Engine.PollInterval)
			}
			return
		case <-time.After(500 * time.Millisecond):
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestWatchRejectsInvalid(t *testing.T) {
	path := writeFile(t, "kasbon.yaml", sampleYAML)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Replace(sampleYAML, "driver: file", "driver: ftp", 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	if m.Get().Debtors.Driver != "file" {
		t.Fatal("invalid config committed")
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"30", 30 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"-1s", 0, true},
		{"-5", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("x", tc.raw)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, %v", tc.raw, got, err)
		}
	}
	if d, _ := ParseDurationOrDefault("x", "0s", time.Minute); d != time.Minute {
		t.Fatalf("zero should select default, got %v", d)
	}
	if _, err := ParseDurationOrDefault("engine.tolerance", "x", time.Minute); err == nil || !strings.Contains(err.Error(), "engine.tolerance") {
		t.Fatalf("err = %v", err)
	}
}
