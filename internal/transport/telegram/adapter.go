// Package telegram connects the operator console to Telegram via telebot long
// polling.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "kasbon/internal/runtime/supervisor"
	kit "kasbon/internal/transport"
	logx "kasbon/pkg/logx"
)

type Config struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
}

// stopGrace bounds how long Stop waits for a pending getUpdates call.
const stopGrace = 2 * time.Second

type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	in inbound

	mu  sync.Mutex
	sup *rtsup.Supervisor

	menuMu sync.Mutex
	menu   []tele.Command
}

// inbound is the consumer side of the update stream. Updates arriving while
// no consumer is attached, or while it is full, are counted and dropped.
type inbound struct {
	mu      sync.RWMutex
	out     chan<- kit.Update
	dropped int64
}

func (in *inbound) attach(out chan<- kit.Update) {
	in.mu.Lock()
	in.out = out
	in.mu.Unlock()
}

func (in *inbound) push(up kit.Update) {
	in.mu.RLock()
	out := in.out
	in.mu.RUnlock()
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		in.mu.Lock()
		in.dropped++
		in.mu.Unlock()
	}
}

func (in *inbound) takeDropped() int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := in.dropped
	in.dropped = 0
	return n
}

// New validates the token against the Bot API and registers the text
// handler. Polling begins with Start.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		OnError: func(err error, _ tele.Context) { a.log.Warn("telebot error", logx.Err(err)) },
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	b.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}
	msg := &kit.Message{ID: m.ID, ChatID: m.Chat.ID, ThreadID: m.ThreadID, Text: m.Text}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
	}
	a.in.push(kit.Update{Message: msg})
	return nil
}

// Start begins long polling and forwards text messages to out. Calling it
// again while running is a no-op.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	if a.sup != nil {
		a.mu.Unlock()
		return nil
	}
	sup := rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.Component("telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	a.sup = sup
	a.mu.Unlock()
	a.in.attach(out)

	sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until bot.Stop; an early return is restarted.
	sup.GoRestart0("telebot.poll", func(context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.in.takeDropped(); n > 0 {
		a.log.Warn("operator updates dropped", logx.Int64("count", n), logx.Int("chan_cap", capacity))
	}
}

// Stop detaches the consumer and stops polling. It waits at most stopGrace
// (or the ctx deadline, if sooner) for the poller to exit.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.mu.Unlock()
	a.in.attach(nil)
	if sup == nil {
		return nil
	}

	sup.Cancel()
	go a.bot.Stop()

	wctx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	err := sup.Wait(wctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Warn("telegram stop timed out", logx.Err(err))
	default:
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}
