package operator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kasbon/internal/engine"
	"kasbon/internal/ledger"
	"kasbon/internal/reminder"
)

const (
	defaultHistory = 10
	maxHistory     = 50
)

func (c *Console) commands() []Command {
	return []Command{
		{Name: "help", Aliases: []string{"start"}, Description: "list commands", Access: AccessEveryone, Handle: c.cmdHelp},
		{Name: "status", Description: "engine state and schedule", Handle: c.cmdStatus},
		{Name: "next", Description: "next reminder time", Handle: c.cmdNext},
		{Name: "enable", Description: "turn automatic reminders on", Handle: c.setEnabled(true)},
		{Name: "disable", Description: "turn automatic reminders off", Handle: c.setEnabled(false)},
		{Name: "history", Description: "recent deliveries", Usage: "/history [n]", Handle: c.cmdHistory},
		{Name: "clearhistory", Description: "delete delivery history", Handle: c.cmdClearHistory},
		{Name: "reset", Description: "forget when reminders last fired", Handle: c.cmdReset},
		{Name: "runnow", Description: "send reminders now", Handle: c.cmdRunNow},
		{Name: "inbox", Description: "recent in-app notices", Usage: "/inbox [n]", Handle: c.cmdInbox},
	}
}

func (c *Console) cmdHelp(ctx context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, cmd := range c.rt.list() {
		usage := cmd.Usage
		if usage == "" {
			usage = "/" + cmd.Name
		}
		fmt.Fprintf(&b, "%s - %s\n", usage, cmd.Description)
	}
	req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (c *Console) cmdStatus(ctx context.Context, req *Request) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Engine: %s\n", c.deps.Engine.State())

	next, cfg, err := c.deps.Engine.NextTrigger(ctx)
	switch {
	case errors.Is(err, engine.ErrUnconfigured):
		b.WriteString("Reminders: not configured\n")
	case err != nil && !errors.Is(err, reminder.ErrConfigInvalid):
		return err
	default:
		fmt.Fprintf(&b, "Reminders: %s\n", onOff(cfg.Enabled))
		fmt.Fprintf(&b, "Schedule: %s\n", describeSchedule(cfg))
		fmt.Fprintf(&b, "Channels: %s\n", joinChannels(cfg.Channels))
		if err != nil {
			fmt.Fprintf(&b, "Config problem: %v\n", err)
		} else if cfg.Enabled {
			fmt.Fprintf(&b, "Next: %s\n", formatTime(next))
		}
	}

	if st, err := c.deps.Store.GetRunState(ctx); err == nil {
		if st.LastFiredAt != nil {
			fmt.Fprintf(&b, "Last fired: %s\n", formatTime(*st.LastFiredAt))
		} else {
			b.WriteString("Last fired: never\n")
		}
	}
	if rep, ok := c.deps.Engine.LastReport(); ok {
		fmt.Fprintf(&b, "Last run: %s, sent %d, failed %d\n", rep.Outcome, rep.Sent, rep.Failed)
	}
	if c.deps.Bot != nil {
		if name, err := c.deps.Bot.Identity(ctx); err == nil {
			fmt.Fprintf(&b, "Chat bot: %s\n", name)
		} else {
			fmt.Fprintf(&b, "Chat bot: unavailable (%s)\n", reminder.ReasonOf(err))
		}
	}
	req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (c *Console) cmdNext(ctx context.Context, req *Request) error {
	next, cfg, err := c.deps.Engine.NextTrigger(ctx)
	if errors.Is(err, engine.ErrUnconfigured) {
		req.Reply(ctx, "Reminders are not configured yet.")
		return nil
	}
	if err != nil {
		return err
	}
	msg := "Next reminder: " + formatTime(next)
	if !cfg.Enabled {
		msg += " (reminders are off)"
	}
	req.Reply(ctx, msg)
	return nil
}

func (c *Console) setEnabled(on bool) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		cfg, ok, err := c.deps.Store.GetReminderConfig(ctx)
		if err != nil {
			return err
		}
		if !ok {
			req.Reply(ctx, "Reminders are not configured yet.")
			return nil
		}
		if on {
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		if cfg.Enabled == on {
			req.Reply(ctx, "Reminders already "+onOff(on)+".")
			return nil
		}
		cfg.Enabled = on
		if err := c.deps.Store.PutReminderConfig(ctx, cfg); err != nil {
			return err
		}
		req.Logger.Info("reminders toggled")
		req.Reply(ctx, "Reminders "+onOff(on)+".")
		return nil
	}
}

func (c *Console) cmdHistory(ctx context.Context, req *Request) error {
	n := parseLimit(req.Args, defaultHistory)
	entries, err := c.deps.Ledger.Recent(ctx, n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		req.Reply(ctx, "No deliveries yet.")
		return nil
	}
	sent, failed := ledger.Summary(entries)
	var b strings.Builder
	fmt.Fprintf(&b, "Last %d deliveries (%d sent, %d failed):\n", len(entries), sent, failed)
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s %s %s %s", e.At.Format("01-02 15:04"), e.DebtorName, c.deps.Renderer.FormatAmount(e.Amount), e.Channel, e.Status)
		if e.Reason != "" {
			fmt.Fprintf(&b, " (%s)", e.Reason)
		}
		b.WriteByte('\n')
	}
	req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (c *Console) cmdClearHistory(ctx context.Context, req *Request) error {
	if err := c.deps.Ledger.Clear(ctx); err != nil {
		return err
	}
	req.Reply(ctx, "Delivery history cleared.")
	return nil
}

func (c *Console) cmdReset(ctx context.Context, req *Request) error {
	if err := c.deps.Store.ResetRunState(ctx); err != nil {
		return err
	}
	req.Reply(ctx, "Run state reset. The next scheduled slot will fire.")
	return nil
}

// cmdRunNow starts a forced firing in the background; its summary arrives
// through WatchRuns. Only immediate refusals are reported here.
func (c *Console) cmdRunNow(ctx context.Context, req *Request) error {
	if c.deps.Engine.State() != engine.StateIdle {
		req.Reply(ctx, "A run is already in progress.")
		return nil
	}
	req.Reply(ctx, "Sending reminders now...")
	go func() {
		_, err := c.deps.Engine.RunNow(c.runCtx)
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrBusy):
			req.Reply(c.runCtx, "A run is already in progress.")
		case errors.Is(err, engine.ErrDisabled):
			req.Reply(c.runCtx, "Reminders are off. Use /enable first.")
		case errors.Is(err, engine.ErrUnconfigured):
			req.Reply(c.runCtx, "Reminders are not configured yet.")
		default:
			req.Reply(c.runCtx, "Run failed: "+err.Error())
		}
	}()
	return nil
}

func (c *Console) cmdInbox(ctx context.Context, req *Request) error {
	if c.deps.Inbox == nil {
		req.Reply(ctx, "In-app notices are not available.")
		return nil
	}
	items := c.deps.Inbox.Inbox(parseLimit(req.Args, defaultHistory))
	if len(items) == 0 {
		req.Reply(ctx, "Inbox is empty.")
		return nil
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%s [%s] %s\n", it.At.Format("01-02 15:04"), it.DebtorID, it.Title)
	}
	req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	return nil
}

func parseLimit(args []string, def int) int {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return def
	}
	if n > maxHistory {
		return maxHistory
	}
	return n
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatTime(t time.Time) string { return t.Format("Mon 2006-01-02 15:04 MST") }

func describeSchedule(cfg reminder.Configuration) string {
	switch cfg.Frequency {
	case reminder.FrequencyWeekly, reminder.FrequencyBiweekly:
		return fmt.Sprintf("%s on %s at %s", cfg.Frequency, time.Weekday(cfg.DayOfWeek), cfg.TimeOfDay)
	case reminder.FrequencyMonthly:
		return fmt.Sprintf("monthly on day %d at %s", cfg.DayOfMonth, cfg.TimeOfDay)
	default:
		return fmt.Sprintf("%s at %s", cfg.Frequency, cfg.TimeOfDay)
	}
}

func joinChannels(cs reminder.ChannelSet) string {
	ordered := cs.Ordered()
	if len(ordered) == 0 {
		return "none"
	}
	parts := make([]string, len(ordered))
	for i, ch := range ordered {
		parts[i] = string(ch)
	}
	return strings.Join(parts, ", ")
}

func formatReport(rep engine.Report) string {
	var b strings.Builder
	title := "Reminder run"
	if rep.Forced {
		title = "Manual reminder run"
	}
	fmt.Fprintf(&b, "%s: %s\n", title, rep.Outcome)
	fmt.Fprintf(&b, "Debtors: %d eligible of %d\n", rep.Eligible, rep.Debtors)
	fmt.Fprintf(&b, "Sent: %d, failed: %d", rep.Sent, rep.Failed)
	if rep.Interrupted {
		fmt.Fprintf(&b, "\nStopped early after %d debtors (reminders turned off)", rep.Processed)
	}
	if rep.Err != "" {
		fmt.Fprintf(&b, "\nError: %s", rep.Err)
	}
	return b.String()
}
