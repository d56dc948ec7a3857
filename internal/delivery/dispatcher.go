package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"kasbon/internal/governor"
	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

// Config for a Dispatcher.
type Config struct {
	Caps PlatformCapabilities
	// DefaultChatID is used when a debtor has no chat id of their own.
	DefaultChatID string
	// CallTimeout bounds every collaborator call. Zero means 15s.
	CallTimeout time.Duration
	// CallSpacing is the minimum gap between successive channel attempts in
	// one run.
	CallSpacing time.Duration
	Share       ShareConfig
	Escalation  reminder.EscalationPolicy
}

// Deps are the channel collaborators. Any of them may be nil; the matching
// channel then fails with channel_unavailable (or missing_bot_token).
type Deps struct {
	Local  LocalNotifier
	InApp  NotificationSender
	Bot    ChatBot
	Opener Opener
}

type Dispatcher struct {
	mu       sync.RWMutex
	cfg      Config
	deps     Deps
	renderer *reminder.Renderer
	log      logx.Logger
	now      func() time.Time
}

func NewDispatcher(cfg Config, deps Deps, renderer *reminder.Renderer, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{deps: deps, log: log, now: time.Now}
	d.Apply(cfg, renderer)
	return d
}

// Apply swaps the config and renderer. Runs already begun keep the values
// they started with.
func (d *Dispatcher) Apply(cfg Config, renderer *reminder.Renderer) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	cfg.Share = cfg.Share.withDefaults()
	if renderer == nil {
		renderer = reminder.NewRenderer("", "")
	}
	d.mu.Lock()
	d.cfg, d.renderer = cfg, renderer
	d.mu.Unlock()
}

// SetClock overrides the timestamp source for results.
func (d *Dispatcher) SetClock(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Dispatch sends to one debtor as a standalone run.
func (d *Dispatcher) Dispatch(ctx context.Context, debtor reminder.Debtor, cfg reminder.Configuration, level reminder.EscalationLevel) []reminder.DeliveryResult {
	return d.Begin(nil).Dispatch(ctx, debtor, cfg, level)
}

// Run carries state across the debtors of one firing: the call spacer and
// the provider-auth short-circuit.
type Run struct {
	d           *Dispatcher
	cfg         Config
	renderer    *reminder.Renderer
	spacer      *governor.Spacer
	proceed     func(context.Context) bool
	authInvalid bool
}

// Begin starts a firing. proceed is consulted before every channel attempt;
// once it returns false no further attempt starts. nil always proceeds.
func (d *Dispatcher) Begin(proceed func(context.Context) bool) *Run {
	d.mu.RLock()
	cfg, renderer := d.cfg, d.renderer
	d.mu.RUnlock()
	return &Run{
		d:        d,
		cfg:      cfg,
		renderer: renderer,
		spacer:   governor.NewSpacer(cfg.CallSpacing),
		proceed:  proceed,
	}
}

// allowed gates the next channel attempt and waits out the call spacing.
func (r *Run) allowed(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if r.proceed != nil && !r.proceed(ctx) {
		return false
	}
	return r.spacer.Wait(ctx) == nil
}

// Dispatch attempts every enabled channel for debtor in ChannelOrder and
// returns one result per attempted channel. Failures never escape as errors.
func (r *Run) Dispatch(ctx context.Context, debtor reminder.Debtor, cfg reminder.Configuration, level reminder.EscalationLevel) []reminder.DeliveryResult {
	channels := cfg.Channels.Ordered()
	out := make([]reminder.DeliveryResult, 0, len(channels))
	text := r.renderer.Render(cfg.MessageTemplate, debtor, level)

	for _, ch := range channels {
		if !r.allowed(ctx) {
			break
		}
		var err error
		switch ch {
		case reminder.ChannelApp:
			err = r.sendApp(ctx, debtor, cfg, level, text)
		case reminder.ChannelChatBot:
			err = r.sendChatBot(ctx, debtor, text)
		case reminder.ChannelShareSheet:
			err = r.sendShare(ctx, debtor, text)
		}
		out = append(out, r.result(debtor, ch, err))
	}
	return out
}

func (r *Run) result(debtor reminder.Debtor, ch reminder.Channel, err error) reminder.DeliveryResult {
	res := reminder.DeliveryResult{
		DebtorID: debtor.ID,
		Channel:  ch,
		Status:   reminder.StatusSent,
		At:       r.d.now(),
	}
	if err == nil {
		r.d.log.Debug("reminder delivered",
			logx.Debtor(debtor.ID),
			logx.Channel(string(ch)),
		)
		return res
	}

	res.Status = reminder.StatusFailed
	res.Reason = reminder.ReasonOf(err)
	res.Detail = res.Reason.Remediation()

	fields := []logx.Field{
		logx.Debtor(debtor.ID),
		logx.Channel(string(ch)),
		logx.String("reason", string(res.Reason)),
	}
	if res.Reason == reminder.ReasonTransientNetworkError {
		fields = append(fields, logx.Err(err))
	}
	r.d.log.Warn("reminder delivery failed", fields...)
	return res
}

func (r *Run) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	err := fn(cctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		var de *reminder.DeliveryError
		if !errors.As(err, &de) {
			return reminder.Fail(reminder.ReasonTransientNetworkError, err)
		}
	}
	return err
}

func (r *Run) sendApp(ctx context.Context, debtor reminder.Debtor, cfg reminder.Configuration, level reminder.EscalationLevel, text string) error {
	local := r.d.deps.Local
	if !r.cfg.Caps.SupportsLocalNotifications || local == nil {
		return reminder.Fail(reminder.ReasonChannelUnavailable, nil)
	}

	var perm Permission
	err := r.call(ctx, func(c context.Context) error {
		var err error
		perm, err = local.Permission(c)
		return err
	})
	if err != nil {
		return err
	}
	if perm != PermissionGranted {
		return reminder.Fail(reminder.ReasonPermissionDenied, nil)
	}

	n := r.notification(debtor, level, text)
	if err := r.call(ctx, func(c context.Context) error { return local.ScheduleNow(c, n) }); err != nil {
		return err
	}

	if in := r.d.deps.InApp; in != nil {
		if err := r.call(ctx, func(c context.Context) error { return in.SendInApp(c, debtor.ID, n) }); err != nil {
			r.d.log.Warn("in-app notice failed", logx.Debtor(debtor.ID), logx.Err(err))
		}
	}

	if cfg.Cascade.Enabled {
		r.scheduleCascade(ctx, local, debtor, cfg)
	}
	return nil
}

// scheduleCascade queues the ahead-of-time staircase. Each step's level is
// fixed here and its text rendered now; nothing is re-evaluated when it fires.
func (r *Run) scheduleCascade(ctx context.Context, local LocalNotifier, debtor reminder.Debtor, cfg reminder.Configuration) {
	steps := r.cfg.Escalation.Cascade(cfg.Cascade.OffsetsDays, r.d.now())
	for _, s := range steps {
		text := r.renderer.Render(cfg.MessageTemplate, debtor, s.Level)
		n := r.notification(debtor, s.Level, text)
		at := s.At
		if err := r.call(ctx, func(c context.Context) error { return local.ScheduleAt(c, n, at) }); err != nil {
			r.d.log.Warn("cascade schedule failed",
				logx.Debtor(debtor.ID),
				logx.Int("days", s.Days),
				logx.Err(err),
			)
		}
	}
}

func (r *Run) notification(debtor reminder.Debtor, level reminder.EscalationLevel, text string) LocalNotification {
	return LocalNotification{
		Title: r.renderer.Title(level),
		Body:  text,
		Payload: Payload{
			DebtorID:        debtor.ID,
			Amount:          debtor.Balance,
			EscalationLevel: level,
			Priority:        level.Priority(),
		},
	}
}

func (r *Run) sendChatBot(ctx context.Context, debtor reminder.Debtor, text string) error {
	bot := r.d.deps.Bot
	if bot == nil || !bot.Configured() {
		return reminder.Fail(reminder.ReasonMissingBotToken, nil)
	}
	chatID := strings.TrimSpace(debtor.ChatID)
	if chatID == "" {
		chatID = strings.TrimSpace(r.cfg.DefaultChatID)
	}
	if chatID == "" {
		return reminder.Fail(reminder.ReasonMissingRecipientID, nil)
	}
	if !ValidChatID(chatID) {
		return reminder.Fail(reminder.ReasonMalformedRecipientID, nil)
	}
	if r.authInvalid {
		return reminder.Fail(reminder.ReasonProviderAuthInvalid, errors.New("token rejected earlier in this run"))
	}

	err := r.call(ctx, func(c context.Context) error { return bot.ChatReachable(c, chatID) })
	if err == nil {
		err = r.call(ctx, func(c context.Context) error { return bot.SendMessage(c, chatID, text) })
	}
	if err != nil && reminder.ReasonOf(err) == reminder.ReasonProviderAuthInvalid {
		r.authInvalid = true
	}
	return err
}

func (r *Run) sendShare(ctx context.Context, debtor reminder.Debtor, text string) error {
	sc := r.cfg.Share
	phone := NormalizePhone(debtor.Phone, sc.DefaultCountryCode)
	if phone == "" {
		return reminder.Fail(reminder.ReasonMissingPhoneNumber, nil)
	}
	op := r.d.deps.Opener
	if op == nil {
		return reminder.Fail(reminder.ReasonChannelUnavailable, nil)
	}

	if !r.cfg.Caps.NativeShare {
		return r.call(ctx, func(c context.Context) error { return op.Open(c, sc.WebURL(phone, text)) })
	}
	appURL := sc.AppURL(phone, text)
	return r.call(ctx, func(c context.Context) error {
		if op.CanOpen(c, appURL) {
			return op.Open(c, appURL)
		}
		return op.Share(c, text)
	})
}
