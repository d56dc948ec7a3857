package engine

import (
	"errors"
	"time"

	"kasbon/internal/reminder"
)

type State int32

const (
	StateIdle State = iota
	StatePolling
	StateFiring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateFiring:
		return "firing"
	default:
		return "unknown"
	}
}

// Outcome of one poll or forced run. Used as the metrics label.
type Outcome string

const (
	OutcomeFired         Outcome = "fired"
	OutcomeNotDue        Outcome = "not_due"
	OutcomeDisabled      Outcome = "disabled"
	OutcomeUnconfigured  Outcome = "unconfigured"
	OutcomeBusy          Outcome = "busy"
	OutcomeInvalidConfig Outcome = "invalid_config"
	OutcomeSourceError   Outcome = "source_error"
	OutcomeStoreError    Outcome = "store_error"
)

var (
	// ErrBusy is returned by RunNow while another poll or firing is in flight.
	ErrBusy = errors.New("engine busy")
	// ErrDisabled is returned by RunNow when the configuration is disabled.
	ErrDisabled = errors.New("reminders disabled")
	// ErrUnconfigured means no reminder configuration has been stored yet.
	ErrUnconfigured = errors.New("reminder configuration not set")
)

// Event types published on the bus.
const (
	EventRunStarted  = "engine.run.started"
	EventRunFinished = "engine.run.finished"
	EventDelivery    = "engine.delivery"
)

// Config tunes the driver. Zero values fall back to defaults.
type Config struct {
	PollInterval time.Duration
	Tolerance    time.Duration
	// Timezone is the IANA zone trigger times are computed in.
	Timezone   string
	Escalation reminder.EscalationPolicy
}

// Report summarizes one firing.
type Report struct {
	Forced      bool
	Outcome     Outcome
	StartedAt   time.Time
	FinishedAt  time.Time
	Frequency   reminder.Frequency
	Debtors     int
	Eligible    int
	Processed   int
	Sent        int
	Failed      int
	Interrupted bool
	Err         string
}

// DeliveryEvent is the payload of EventDelivery.
type DeliveryEvent struct {
	Entry reminder.HistoryEntry
}
