package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	logx "kasbon/pkg/logx"
)

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

// newBackOff grows the delay from RetryBase by 2x with 30% jitter, capped near
// RetryMaxDelay.
func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     cfg.RetryBase,
		RandomizationFactor: 0.3,
		Multiplier:          2,
		MaxInterval:         cfg.RetryMaxDelay,
	}
}

// deliver sends one job through the rate limiter, retrying up to RetryMax
// times. A context cancellation ends it quietly.
func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, ad := s.cfg, s.limiter, s.adapter
	s.mu.Unlock()
	if ad == nil {
		return
	}

	text := decorate(j.n.Priority, j.n.Text)
	tries := 1 + cfg.RetryMax
	attempt := 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := lim.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		defer cancel()
		_, err := ad.SendText(sctx, j.n.Target, text, j.n.Options)
		return struct{}{}, err
	},
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Duration("retry_in", wait))
		}),
	)
	switch {
	case err == nil:
		s.history.push(HistoryItem{At: time.Now(), Text: text}, historySize)
		s.publish("notifier.sent", j.n, j.key, nil)
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
	default:
		s.log.Warn("notification dropped after retries", logx.Err(err), logx.Int("attempts", attempt))
		s.publish("notifier.failed", j.n, j.key, err)
	}
}

// decorate marks operator messages by escalation priority.
func decorate(priority int, text string) string {
	switch {
	case priority >= 9:
		return "🚨 " + text
	case priority >= 7:
		return "⚠️ " + text
	case priority >= 5:
		return "ℹ️ " + text
	default:
		return text
	}
}
