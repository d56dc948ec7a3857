package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

// Store is the persistence API used by the engine, ledger and notifier.
type Store interface {
	// GetReminderConfig returns ok=false when nothing has been stored yet.
	GetReminderConfig(ctx context.Context) (cfg reminder.Configuration, ok bool, err error)
	PutReminderConfig(ctx context.Context, cfg reminder.Configuration) error

	GetRunState(ctx context.Context) (reminder.RunState, error)
	PutRunState(ctx context.Context, st reminder.RunState) error
	ResetRunState(ctx context.Context) error

	// AppendDelivery appends e and evicts the oldest entries (by insertion
	// order) beyond cap. cap <= 0 disables eviction.
	AppendDelivery(ctx context.Context, e reminder.HistoryEntry, cap int) error
	// RecentDeliveries returns up to limit entries, most recent first.
	// limit <= 0 returns everything retained.
	RecentDeliveries(ctx context.Context, limit int) ([]reminder.HistoryEntry, error)
	ClearDeliveries(ctx context.Context) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// newestFirst copies the tail of entries (oldest first) in reverse order.
func newestFirst(entries []reminder.HistoryEntry, limit int) []reminder.HistoryEntry {
	n := len(entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]reminder.HistoryEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, entries[i])
	}
	return out
}

func trimToCap(entries []reminder.HistoryEntry, cap int) []reminder.HistoryEntry {
	if cap <= 0 || len(entries) <= cap {
		return entries
	}
	kept := make([]reminder.HistoryEntry, cap)
	copy(kept, entries[len(entries)-cap:])
	return kept
}
