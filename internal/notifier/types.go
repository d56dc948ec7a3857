package notifier

import (
	"time"

	kit "kasbon/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled bool
	// Target is the operator chat every notification goes to.
	Target          kit.ChatTarget
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	InboxSize       int
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// InboxItem is an in-app notice tied to a debtor.
type InboxItem struct {
	At       time.Time
	DebtorID string
	Title    string
	Body     string
	Level    int
}

// NotificationEvent is published on the event bus for pipeline lifecycle
// events (notifier.queued, notifier.sent, notifier.failed, ...).
type NotificationEvent struct {
	Channel  string    `json:"channel"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
