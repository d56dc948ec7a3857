package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// DefaultHistoryCap is the number of delivery entries retained.
const DefaultHistoryCap = 1000

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (json documents + jsonl ledger)
//   - "sqlite": SQLite database file (pure Go driver)
//   - "memory": process-local, lost on exit
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
