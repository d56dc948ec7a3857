package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

var allChannels = reminder.ChannelSet{reminder.ChannelShareSheet, reminder.ChannelChatBot, reminder.ChannelApp}

func baseConfig(ch reminder.ChannelSet) reminder.Configuration {
	return reminder.Configuration{
		Enabled:   true,
		Frequency: reminder.FrequencyDaily,
		TimeOfDay: "09:00",
		Channels:  ch,
	}
}

func newTestDispatcher(cfg Config, deps Deps) *Dispatcher {
	return NewDispatcher(cfg, deps, reminder.NewRenderer("en", "Rp "), logx.Nop())
}

func TestDispatchIsolatesChannelFailures(t *testing.T) {
	local := &fakeLocal{perm: PermissionGranted, failNow: errBoom}
	bot := &fakeBot{token: true}
	op := &fakeOpener{}
	d := newTestDispatcher(Config{Caps: PlatformCapabilities{SupportsLocalNotifications: true}}, Deps{Local: local, Bot: bot, Opener: op})

	debtor := reminder.Debtor{ID: "d1", Name: "Budi", Phone: "0812-3456", Balance: 250000, ChatID: "12345"}
	res := d.Dispatch(context.Background(), debtor, baseConfig(allChannels), reminder.LevelReminder)

	if len(res) != 3 {
		t.Fatalf("want 3 results, got %d", len(res))
	}
	want := []reminder.Channel{reminder.ChannelApp, reminder.ChannelChatBot, reminder.ChannelShareSheet}
	for i, r := range res {
		if r.Channel != want[i] {
			t.Fatalf("result %d channel %s want %s", i, r.Channel, want[i])
		}
		if r.DebtorID != "d1" || r.At.IsZero() {
			t.Fatalf("result %d incomplete: %+v", i, r)
		}
	}
	if res[0].Status != reminder.StatusFailed || res[0].Reason != reminder.ReasonTransientNetworkError {
		t.Fatalf("app: %+v", res[0])
	}
	if res[1].Status != reminder.StatusSent || len(bot.sentChats) != 1 || bot.sentChats[0] != "12345" {
		t.Fatalf("chatbot: %+v sent=%v", res[1], bot.sentChats)
	}
	if !strings.Contains(bot.sentBodies[0], "Rp 250,000") {
		t.Fatalf("body %q", bot.sentBodies[0])
	}
	if res[2].Status != reminder.StatusSent || len(op.opened) != 1 {
		t.Fatalf("share: %+v opened=%v", res[2], op.opened)
	}
	if !strings.HasPrefix(op.opened[0], "https://api.whatsapp.com/send?phone=628123456&text=Hello%20Budi") {
		t.Fatalf("web url %q", op.opened[0])
	}
}

func TestDispatchMalformedChatIDMakesNoCalls(t *testing.T) {
	bot := &fakeBot{token: true}
	d := newTestDispatcher(Config{}, Deps{Bot: bot})

	res := d.Dispatch(context.Background(), reminder.Debtor{ID: "d1", ChatID: "abc123"}, baseConfig(reminder.ChannelSet{reminder.ChannelChatBot}), reminder.LevelReminder)
	if len(res) != 1 || res[0].Reason != reminder.ReasonMalformedRecipientID {
		t.Fatalf("got %+v", res)
	}
	if n := bot.networkCalls(); n != 0 {
		t.Fatalf("made %d network calls", n)
	}
}

func TestDispatchChatBotPreconditions(t *testing.T) {
	cfg := baseConfig(reminder.ChannelSet{reminder.ChannelChatBot})
	cases := []struct {
		name   string
		bot    ChatBot
		defID  string
		chatID string
		want   reminder.Reason
	}{
		{"no bot", nil, "", "1", reminder.ReasonMissingBotToken},
		{"no token", &fakeBot{}, "", "1", reminder.ReasonMissingBotToken},
		{"no chat id", &fakeBot{token: true}, "", "", reminder.ReasonMissingRecipientID},
		{"bad default", &fakeBot{token: true}, "@shop", "", reminder.ReasonMalformedRecipientID},
		{"unreachable", &fakeBot{token: true, reachErr: reminder.Fail(reminder.ReasonRecipientUnreachable, errBoom)}, "", "-100200", reminder.ReasonRecipientUnreachable},
		{"blocked on send", &fakeBot{token: true, sendErr: reminder.Fail(reminder.ReasonRecipientBlocked, errBoom)}, "", "7", reminder.ReasonRecipientBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDispatcher(Config{DefaultChatID: tc.defID}, Deps{Bot: tc.bot})
			res := d.Dispatch(context.Background(), reminder.Debtor{ID: "x", ChatID: tc.chatID}, cfg, reminder.LevelReminder)
			if len(res) != 1 || res[0].Status != reminder.StatusFailed || res[0].Reason != tc.want {
				t.Fatalf("got %+v want %s", res, tc.want)
			}
			if res[0].Detail == "" {
				t.Fatalf("missing remediation")
			}
		})
	}

	bot := &fakeBot{token: true}
	d := newTestDispatcher(Config{DefaultChatID: "999"}, Deps{Bot: bot})
	if res := d.Dispatch(context.Background(), reminder.Debtor{ID: "x"}, cfg, 0); res[0].Status != reminder.StatusSent || bot.sentChats[0] != "999" {
		t.Fatalf("default chat id not used: %+v", res)
	}
}

func TestRunShortCircuitsAuthInvalid(t *testing.T) {
	bot := &fakeBot{token: true, reachErr: reminder.Fail(reminder.ReasonProviderAuthInvalid, errors.New("Unauthorized"))}
	local := &fakeLocal{perm: PermissionGranted}
	d := newTestDispatcher(Config{Caps: PlatformCapabilities{SupportsLocalNotifications: true}}, Deps{Bot: bot, Local: local})
	cfg := baseConfig(reminder.ChannelSet{reminder.ChannelApp, reminder.ChannelChatBot})

	run := d.Begin(nil)
	for _, id := range []string{"a", "b", "c"} {
		res := run.Dispatch(context.Background(), reminder.Debtor{ID: id, ChatID: "1"}, cfg, 0)
		if res[0].Status != reminder.StatusSent {
			t.Fatalf("%s: app channel should be unaffected: %+v", id, res[0])
		}
		if res[1].Reason != reminder.ReasonProviderAuthInvalid {
			t.Fatalf("%s: chatbot %+v", id, res[1])
		}
	}
	if n := bot.networkCalls(); n != 1 {
		t.Fatalf("want 1 provider call, got %d", n)
	}
	if len(local.now) != 3 {
		t.Fatalf("app notifications %d", len(local.now))
	}
}

func TestDispatchAppChannel(t *testing.T) {
	cfg := baseConfig(reminder.ChannelSet{reminder.ChannelApp})

	d := newTestDispatcher(Config{}, Deps{Local: &fakeLocal{perm: PermissionGranted}})
	if res := d.Dispatch(context.Background(), reminder.Debtor{ID: "x"}, cfg, 0); res[0].Reason != reminder.ReasonChannelUnavailable {
		t.Fatalf("unsupported platform: %+v", res)
	}

	caps := PlatformCapabilities{SupportsLocalNotifications: true}
	d = newTestDispatcher(Config{Caps: caps}, Deps{Local: &fakeLocal{perm: PermissionDenied}})
	if res := d.Dispatch(context.Background(), reminder.Debtor{ID: "x"}, cfg, 0); res[0].Reason != reminder.ReasonPermissionDenied {
		t.Fatalf("denied: %+v", res)
	}

	local := &fakeLocal{perm: PermissionGranted}
	d = newTestDispatcher(Config{Caps: caps}, Deps{Local: local})
	res := d.Dispatch(context.Background(), reminder.Debtor{ID: "x", Balance: 10}, cfg, reminder.LevelWarning)
	if res[0].Status != reminder.StatusSent || len(local.now) != 1 {
		t.Fatalf("granted: %+v", res)
	}
	p := local.now[0].Payload
	if p.DebtorID != "x" || p.Amount != 10 || p.EscalationLevel != reminder.LevelWarning {
		t.Fatalf("payload %+v", p)
	}
}

func TestDispatchCascadeFixesLevels(t *testing.T) {
	local := &fakeLocal{perm: PermissionGranted}
	d := newTestDispatcher(Config{Caps: PlatformCapabilities{SupportsLocalNotifications: true}}, Deps{Local: local})
	now := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	d.SetClock(func() time.Time { return now })

	cfg := baseConfig(reminder.ChannelSet{reminder.ChannelApp})
	cfg.Cascade.Enabled = true
	d.Dispatch(context.Background(), reminder.Debtor{ID: "x"}, cfg, 0)

	if len(local.scheduled) != 3 {
		t.Fatalf("scheduled %d", len(local.scheduled))
	}
	wantLevels := []reminder.EscalationLevel{reminder.LevelReminder, reminder.LevelWarning, reminder.LevelCritical}
	for i, at := range local.scheduled {
		if !at.Equal(now.AddDate(0, 0, reminder.DefaultCascadeOffsets[i])) || local.levels[i] != wantLevels[i] {
			t.Fatalf("step %d: at=%s level=%s", i, at, local.levels[i])
		}
	}
}

func TestDispatchShare(t *testing.T) {
	cfg := baseConfig(reminder.ChannelSet{reminder.ChannelShareSheet})

	op := &fakeOpener{}
	d := newTestDispatcher(Config{}, Deps{Opener: op})
	res := d.Dispatch(context.Background(), reminder.Debtor{ID: "x", Phone: " - "}, cfg, 0)
	if res[0].Reason != reminder.ReasonMissingPhoneNumber || len(op.opened)+len(op.shared) != 0 {
		t.Fatalf("missing phone: %+v", res)
	}

	native := Config{Caps: PlatformCapabilities{NativeShare: true}}
	op = &fakeOpener{canOpen: true}
	newTestDispatcher(native, Deps{Opener: op}).Dispatch(context.Background(), reminder.Debtor{ID: "x", Phone: "+62 812"}, cfg, 0)
	if len(op.opened) != 1 || !strings.HasPrefix(op.opened[0], "whatsapp://send?phone=62812&") {
		t.Fatalf("native scheme: %v", op.opened)
	}

	op = &fakeOpener{canOpen: false}
	newTestDispatcher(native, Deps{Opener: op}).Dispatch(context.Background(), reminder.Debtor{ID: "x", Phone: "0812"}, cfg, 0)
	if len(op.opened) != 0 || len(op.shared) != 1 {
		t.Fatalf("fallback share dialog: opened=%v shared=%v", op.opened, op.shared)
	}

	res = newTestDispatcher(Config{}, Deps{}).Dispatch(context.Background(), reminder.Debtor{ID: "x", Phone: "0812"}, cfg, 0)
	if res[0].Reason != reminder.ReasonChannelUnavailable {
		t.Fatalf("no opener: %+v", res)
	}
}

func TestRunStopsWhenGateCloses(t *testing.T) {
	bot := &fakeBot{token: true}
	local := &fakeLocal{perm: PermissionGranted}
	d := newTestDispatcher(Config{Caps: PlatformCapabilities{SupportsLocalNotifications: true}}, Deps{Bot: bot, Local: local})

	calls := 0
	run := d.Begin(func(context.Context) bool {
		calls++
		return calls <= 1
	})
	res := run.Dispatch(context.Background(), reminder.Debtor{ID: "x", ChatID: "1"}, baseConfig(reminder.ChannelSet{reminder.ChannelApp, reminder.ChannelChatBot}), 0)
	if len(res) != 1 || res[0].Channel != reminder.ChannelApp {
		t.Fatalf("got %+v", res)
	}
	if bot.networkCalls() != 0 {
		t.Fatalf("chatbot started after gate closed")
	}
}

func TestRunSpacesCalls(t *testing.T) {
	d := newTestDispatcher(Config{CallSpacing: 30 * time.Millisecond}, Deps{Bot: &fakeBot{token: true}})
	cfg := baseConfig(reminder.ChannelSet{reminder.ChannelChatBot})
	run := d.Begin(nil)
	start := time.Now()
	for i := 0; i < 4; i++ {
		run.Dispatch(context.Background(), reminder.Debtor{ID: "x", ChatID: "1"}, cfg, 0)
	}
	if el := time.Since(start); el < 80*time.Millisecond {
		t.Fatalf("calls not spaced: %s", el)
	}
}

type slowBot struct{ fakeBot }

func (s *slowBot) ChatReachable(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatchCallTimeout(t *testing.T) {
	d := newTestDispatcher(Config{CallTimeout: 20 * time.Millisecond}, Deps{Bot: &slowBot{fakeBot{token: true}}})
	res := d.Dispatch(context.Background(), reminder.Debtor{ID: "x", ChatID: "1"}, baseConfig(reminder.ChannelSet{reminder.ChannelChatBot}), 0)
	if res[0].Reason != reminder.ReasonTransientNetworkError {
		t.Fatalf("got %+v", res)
	}
}

func TestApplyTakesEffectOnNextRun(t *testing.T) {
	cfg := baseConfig(reminder.ChannelSet{reminder.ChannelChatBot})
	bot := &fakeBot{token: true}
	d := newTestDispatcher(Config{DefaultChatID: "111"}, Deps{Bot: bot})

	run := d.Begin(nil)
	d.Apply(Config{DefaultChatID: "222"}, reminder.NewRenderer("en", "IDR "))

	run.Dispatch(context.Background(), reminder.Debtor{ID: "x", Name: "Ani", Balance: 5000}, cfg, reminder.LevelReminder)
	d.Dispatch(context.Background(), reminder.Debtor{ID: "x", Name: "Ani", Balance: 5000}, cfg, reminder.LevelReminder)

	if len(bot.sentChats) != 2 || bot.sentChats[0] != "111" || bot.sentChats[1] != "222" {
		t.Fatalf("chats = %v", bot.sentChats)
	}
	if strings.Contains(bot.sentBodies[0], "IDR") || !strings.Contains(bot.sentBodies[1], "IDR 5,000") {
		t.Fatalf("bodies = %q", bot.sentBodies)
	}
}
