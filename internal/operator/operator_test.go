package operator

import (
	"context"
	"strings"
	"sync"
	"testing"
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

const owner = int64(42)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	menu []kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeEngine struct {
	mu     sync.Mutex
	state  engine.State
	runs   int
	runErr error
	store  storage.Store
}

func (e *fakeEngine) State() engine.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeEngine) NextTrigger(ctx context.Context) (time.Time, reminder.Configuration, error) {
	cfg, ok, err := e.store.GetReminderConfig(ctx)
	if err != nil {
		return time.Time{}, cfg, err
	}
	if !ok {
		return time.Time{}, cfg, engine.ErrUnconfigured
	}
	return time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC), cfg, nil
}

func (e *fakeEngine) RunNow(context.Context) (engine.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs++
	return engine.Report{Forced: true, Outcome: engine.OutcomeFired}, e.runErr
}

func (e *fakeEngine) LastReport() (engine.Report, bool) { return engine.Report{}, false }

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) Notify(_ context.Context, m kit.Notification) error {
	n.mu.Lock()
	n.texts = append(n.texts, m.Text)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

type fakeIdentity struct{}

func (fakeIdentity) Identity(context.Context) (string, error) { return "@kasbon_bot", nil }

type fakeInbox []notifier.InboxItem

func (f fakeInbox) Inbox(limit int) []notifier.InboxItem {
	if limit > len(f) {
		limit = len(f)
	}
	return f[:limit]
}

type harness struct {
	ad     *fakeAdapter
	eng    *fakeEngine
	store  storage.Store
	notif  *fakeNotifier
	con    *Console
	cancel context.CancelFunc
	upd    chan kit.Update
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := storage.NewMemory()
	cfg := reminder.Configuration{
		Enabled:   false,
		Frequency: reminder.FrequencyWeekly,
		DayOfWeek: 1,
		TimeOfDay: "09:00",
		Channels:  reminder.ChannelSet{reminder.ChannelApp},
	}
	if err := store.PutReminderConfig(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	h := &harness{
		ad:    &fakeAdapter{},
		eng:   &fakeEngine{store: store},
		store: store,
		notif: &fakeNotifier{},
		upd:   make(chan kit.Update, 8),
	}
	h.con = New(Config{Owners: []int64{owner}, Summaries: true}, Deps{
		Store:    store,
		Engine:   h.eng,
		Ledger:   ledger.New(store, logx.Nop()),
		Bot:      fakeIdentity{},
		Inbox:    fakeInbox{{DebtorID: "d1", Title: "Payment reminder", At: time.Now()}},
		Notifier: h.notif,
		Renderer: reminder.NewRenderer("en", "Rp "),
	}, h.ad, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	done := make(chan struct{})
	go func() {
		_ = h.con.Run(ctx, h.upd)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) send(from int64, text string) {
	h.upd <- kit.Update{Message: &kit.Message{ChatID: 7, FromID: from, Text: text}}
}

func (h *harness) waitReply(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range h.ad.texts() {
			if strings.Contains(s, substr) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no reply containing %q; got %q", substr, h.ad.texts())
}

func TestOwnerOnly(t *testing.T) {
	h := newHarness(t)
	h.send(99, "/enable")
	h.waitReply(t, "unauthorized")
	cfg, _, _ := h.store.GetReminderConfig(context.Background())
	if cfg.Enabled {
		t.Fatal("non-owner enabled reminders")
	}
	h.send(99, "/help")
	h.waitReply(t, "/history [n]")
}

func TestEnableDisable(t *testing.T) {
	h := newHarness(t)
	h.send(owner, "/enable")
	h.waitReply(t, "Reminders on.")
	cfg, _, _ := h.store.GetReminderConfig(context.Background())
	if !cfg.Enabled {
		t.Fatal("reminders not enabled in store")
	}
	h.send(owner, "/disable@kasbon_bot")
	h.waitReply(t, "Reminders off.")
	cfg, _, _ = h.store.GetReminderConfig(context.Background())
	if cfg.Enabled {
		t.Fatal("reminders still enabled")
	}
}

func TestStatusAndNext(t *testing.T) {
	h := newHarness(t)
	h.send(owner, "/status")
	h.waitReply(t, "Schedule: weekly on Monday at 09:00")
	h.waitReply(t, "Chat bot: @kasbon_bot")
	h.waitReply(t, "Last fired: never")
	h.send(owner, "/next")
	h.waitReply(t, "(reminders are off)")
}

func TestHistoryClearAndReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := ledger.New(h.store, logx.Nop())
	l.Record(ctx, reminder.HistoryEntry{DebtorID: "d1", DebtorName: "Ani", Amount: 15000, Channel: reminder.ChannelApp, Status: reminder.StatusSent})
	l.Record(ctx, reminder.HistoryEntry{DebtorID: "d2", DebtorName: "Budi", Channel: reminder.ChannelChatBot, Status: reminder.StatusFailed, Reason: reminder.ReasonRecipientBlocked})
	now := time.Now()
	_ = h.store.PutRunState(ctx, reminder.RunState{LastFiredAt: &now})

	h.send(owner, "/history 5")
	h.waitReply(t, "(1 sent, 1 failed)")
	h.waitReply(t, "Ani Rp 15,000 app sent")
	h.waitReply(t, "(recipient_blocked)")

	h.send(owner, "/clearhistory")
	h.waitReply(t, "Delivery history cleared.")
	if es, _ := h.store.RecentDeliveries(ctx, 0); len(es) != 0 {
		t.Fatalf("history not cleared: %d", len(es))
	}

	h.send(owner, "/reset")
	h.waitReply(t, "Run state reset.")
	if st, _ := h.store.GetRunState(ctx); st.LastFiredAt != nil {
		t.Fatal("run state not reset")
	}
}

func TestRunNowReportsRefusal(t *testing.T) {
	h := newHarness(t)
	h.eng.runErr = engine.ErrDisabled
	h.send(owner, "/runnow")
	h.waitReply(t, "Use /enable first.")
	h.eng.mu.Lock()
	runs := h.eng.runs
	h.eng.mu.Unlock()
	if runs != 1 {
		t.Fatalf("runs = %d", runs)
	}
}

func TestRunNowBusy(t *testing.T) {
	h := newHarness(t)
	h.eng.mu.Lock()
	h.eng.state = engine.StateFiring
	h.eng.mu.Unlock()
	h.send(owner, "/runnow")
	h.waitReply(t, "already in progress")
}

func TestInboxAndUnknown(t *testing.T) {
	h := newHarness(t)
	h.send(owner, "/inbox")
	h.waitReply(t, "[d1] Payment reminder")
	h.send(owner, "/frobnicate")
	h.waitReply(t, "unknown command")
}

func TestMenuUpdated(t *testing.T) {
	h := newHarness(t)
	h.send(owner, "/help")
	h.waitReply(t, "Commands:")
	h.ad.mu.Lock()
	defer h.ad.mu.Unlock()
	if len(h.ad.menu) != 10 {
		t.Fatalf("menu has %d commands", len(h.ad.menu))
	}
}

func TestWatchRunsPostsSummary(t *testing.T) {
	h := newHarness(t)
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.con.WatchRuns(ctx, bus) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.notif.count() == 0 && time.Now().Before(deadline) {
		bus.Publish(eventbus.Event{Type: engine.EventRunFinished, Data: engine.Report{Outcome: engine.OutcomeFired, Eligible: 2, Debtors: 3, Sent: 3, Failed: 1}})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	h.notif.mu.Lock()
	defer h.notif.mu.Unlock()
	if len(h.notif.texts) == 0 || !strings.Contains(h.notif.texts[0], "Sent: 3, failed: 1") {
		t.Fatalf("summary = %q", h.notif.texts)
	}
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		args []string
		want int
	}{
		{nil, defaultHistory},
		{[]string{"3"}, 3},
		{[]string{"0"}, defaultHistory},
		{[]string{"x"}, defaultHistory},
		{[]string{"500"}, maxHistory},
	}
	for _, c := range cases {
		if got := parseLimit(c.args, defaultHistory); got != c.want {
			t.Errorf("parseLimit(%v) = %d, want %d", c.args, got, c.want)
		}
	}
}
