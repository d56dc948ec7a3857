package debtors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

// Source yields the current debtor snapshot.
type Source interface {
	Snapshot(ctx context.Context) ([]reminder.Debtor, error)
}

// Config selects and configures a Source.
//
// Driver values:
//   - "file": JSON or YAML document at Path
//   - "http": GET <URL>/debtors with a bearer Token
//   - "postgres": debtors + debtor_transactions tables reachable through DSN
//   - "static": the Debtors list, mostly for tests and demos
type Config struct {
	Driver  string
	Path    string
	URL     string
	Token   string
	DSN     string
	Timeout time.Duration
	Debtors []reminder.Debtor
}

// ErrNoSource is returned by Open when no driver is configured.
var ErrNoSource = errors.New("debtor source not configured")

// Closer is implemented by sources holding connections.
type Closer interface {
	Close()
}

// Open builds the configured source.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Source, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Component("debtors"))

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return nil, ErrNoSource
	case "file":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errors.New("debtors: file driver requires path")
		}
		return NewFileSource(cfg.Path), nil
	case "http", "https":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("debtors: http driver requires url")
		}
		return NewHTTPSource(cfg.URL, cfg.Token, cfg.Timeout), nil
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, errors.New("debtors: postgres driver requires dsn")
		}
		return OpenPostgres(ctx, cfg.DSN, log)
	case "static":
		return Static(cfg.Debtors), nil
	default:
		return nil, fmt.Errorf("debtors: unknown driver %q", cfg.Driver)
	}
}

// Static is a fixed in-memory snapshot.
type Static []reminder.Debtor

func (s Static) Snapshot(context.Context) ([]reminder.Debtor, error) {
	out := make([]reminder.Debtor, len(s))
	copy(out, s)
	return out, nil
}

// Close releases src when it holds resources. Safe on any Source.
func Close(src Source) {
	if c, ok := src.(Closer); ok {
		c.Close()
	}
}
