package config

import (
	"reflect"
	"sort"
	"strings"

	logx "kasbon/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ between two configs
// and returns log fields describing the new values. Secrets are reported
// only as "set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	section := func(name string, differs bool, fields ...logx.Field) {
		if differs {
			changed = append(changed, name)
			attrs = append(attrs, fields...)
		}
	}
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	section("logging", oldCfg.Logging != newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.file", newCfg.Logging.File.Enabled),
	)

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	section("storage", oS != nS,
		logx.String("storage.driver", nS.Driver),
		logx.Bool("storage.path_set", set(nS.Path)),
	)

	section("engine", oldCfg.Engine != newCfg.Engine,
		logx.String("engine.poll_interval", newCfg.Engine.PollInterval),
		logx.String("engine.timezone", newCfg.Engine.Timezone),
		logx.String("engine.locale", newCfg.Engine.Locale),
	)

	section("platform", oldCfg.Platform != newCfg.Platform,
		logx.Bool("platform.local_notifications", newCfg.Platform.LocalNotifications),
		logx.Bool("platform.native_share", newCfg.Platform.NativeShare),
	)

	section("debtors", oldCfg.Debtors != newCfg.Debtors,
		logx.String("debtors.driver", newCfg.Debtors.Driver),
		logx.Bool("debtors.token_set", set(newCfg.Debtors.Token)),
		logx.Bool("debtors.dsn_set", set(newCfg.Debtors.DSN)),
	)

	section("chatbot", oldCfg.ChatBot != newCfg.ChatBot,
		logx.Bool("chatbot.token_set", set(newCfg.ChatBot.Token)),
		logx.Bool("chatbot.default_chat_set", set(newCfg.ChatBot.DefaultChatID)),
	)

	section("share", oldCfg.Share != newCfg.Share,
		logx.String("share.country_code", newCfg.Share.DefaultCountryCode),
	)

	section("operator", !reflect.DeepEqual(oldCfg.Operator, newCfg.Operator),
		logx.Bool("operator.enabled", newCfg.Operator.Enabled),
		logx.Int("operator.owner_count", len(newCfg.Operator.OwnerUserIDs)),
		logx.Bool("operator.summaries", newCfg.Operator.Summaries),
	)

	oP, nP := derefPush(oldCfg.Push), derefPush(newCfg.Push)
	section("push", oP != nP,
		logx.Bool("push.enabled", nP.Enabled),
		logx.Int("push.rate_per_sec", nP.RatePerSec),
	)

	section("diagnostics", oldCfg.Diagnostics != newCfg.Diagnostics,
		logx.Bool("diagnostics.enabled", newCfg.Diagnostics.Enabled),
		logx.String("diagnostics.addr", newCfg.Diagnostics.Addr),
		logx.Bool("diagnostics.token_set", set(newCfg.Diagnostics.Token)),
	)

	section("reminder", ReminderChanged(oldCfg, newCfg))

	sort.Strings(changed)
	return changed, attrs
}

// ReminderChanged reports whether the reminder seed section differs.
func ReminderChanged(oldCfg, newCfg *Config) bool {
	var o, n any
	if oldCfg != nil && oldCfg.Reminder != nil {
		o = *oldCfg.Reminder
	}
	if newCfg != nil && newCfg.Reminder != nil {
		n = *newCfg.Reminder
	}
	return !reflect.DeepEqual(o, n)
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

// DefaultPush mirrors the notifier's runtime defaults so an omitted section
// and an explicit default one compare equal.
func DefaultPush() PushConfig {
	return PushConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		SendTimeout:     "15s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
		InboxSize:       200,
	}
}

func derefPush(p *PushConfig) PushConfig {
	if p == nil {
		return DefaultPush()
	}
	return *p
}
