// Package ledger is the capped, append-only delivery audit trail.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kasbon/internal/reminder"
	"kasbon/internal/storage"
	logx "kasbon/pkg/logx"
)

// Ledger records delivery attempts. Persistence failures are logged and
// counted, never returned from Record.
type Ledger struct {
	store   storage.Store
	log     logx.Logger
	cap     int
	now     func() time.Time
	onError func(error)
}

type Option func(*Ledger)

// WithCap overrides the retained entry count.
func WithCap(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.cap = n
		}
	}
}

// WithErrorHook is called for every swallowed persistence error.
func WithErrorHook(fn func(error)) Option {
	return func(l *Ledger) { l.onError = fn }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func New(store storage.Store, log logx.Logger, opts ...Option) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	l := &Ledger{store: store, log: log, cap: storage.DefaultHistoryCap, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record appends e, assigning an ID and timestamp when missing.
func (l *Ledger) Record(ctx context.Context, e reminder.HistoryEntry) {
	if l == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = l.now()
	}
	if l.store == nil {
		return
	}
	if err := l.store.AppendDelivery(ctx, e, l.cap); err != nil {
		l.log.Error("ledger write failed",
			logx.String("entry_id", e.ID),
			logx.Debtor(e.DebtorID),
			logx.Channel(string(e.Channel)),
			logx.Err(err),
		)
		if l.onError != nil {
			l.onError(err)
		}
	}
}

// Recent returns up to limit entries, most recent first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]reminder.HistoryEntry, error) {
	if l == nil || l.store == nil {
		return nil, storage.ErrDisabled
	}
	return l.store.RecentDeliveries(ctx, limit)
}

// Clear empties the ledger unconditionally.
func (l *Ledger) Clear(ctx context.Context) error {
	if l == nil || l.store == nil {
		return storage.ErrDisabled
	}
	if err := l.store.ClearDeliveries(ctx); err != nil {
		return err
	}
	l.log.Info("delivery history cleared")
	return nil
}

// Summary counts sent and failed entries in es.
func Summary(es []reminder.HistoryEntry) (sent, failed int) {
	for _, e := range es {
		switch e.Status {
		case reminder.StatusSent:
			sent++
		case reminder.StatusFailed:
			failed++
		}
	}
	return sent, failed
}
