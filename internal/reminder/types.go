package reminder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Channel is one delivery mechanism.
type Channel string

const (
	ChannelApp        Channel = "app"
	ChannelChatBot    Channel = "chatbot"
	ChannelShareSheet Channel = "share"
)

// ChannelOrder is the fixed order in which channels are attempted for one debtor.
var ChannelOrder = []Channel{ChannelApp, ChannelChatBot, ChannelShareSheet}

func (c Channel) Valid() bool {
	for _, k := range ChannelOrder {
		if c == k {
			return true
		}
	}
	return false
}

// ChannelSet is the explicit set of enabled channels.
//
// It decodes from a JSON list (["app","chatbot"]) or a single string. The
// legacy aliases "telegram", "whatsapp" and "both" (telegram + whatsapp) are
// expanded on decode; they never exist in memory.
type ChannelSet []Channel

func (s ChannelSet) Has(c Channel) bool {
	for _, x := range s {
		if x == c {
			return true
		}
	}
	return false
}

// Ordered returns the enabled channels in ChannelOrder, without duplicates.
func (s ChannelSet) Ordered() []Channel {
	out := make([]Channel, 0, len(s))
	for _, c := range ChannelOrder {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *ChannelSet) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raw []string
	if len(b) > 0 && b[0] == '"' {
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		raw = []string{one}
	} else if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := ChannelSet{}
	add := func(c Channel) {
		if !out.Has(c) {
			out = append(out, c)
		}
	}
	for _, r := range raw {
		switch strings.ToLower(strings.TrimSpace(r)) {
		case "app", "push":
			add(ChannelApp)
		case "chatbot", "telegram":
			add(ChannelChatBot)
		case "share", "whatsapp":
			add(ChannelShareSheet)
		case "both":
			add(ChannelChatBot)
			add(ChannelShareSheet)
		default:
			return fmt.Errorf("unknown channel %q", r)
		}
	}
	*s = out
	return nil
}

// Eligibility narrows the debtor snapshot. All predicates are AND-combined.
type Eligibility struct {
	OnlyWithPositiveBalance bool     `json:"only_with_positive_balance"`
	MinimumBalance          *float64 `json:"minimum_balance,omitempty"`
	OverdueOnly             bool     `json:"overdue_only"`
	OverdueDays             *int     `json:"overdue_days,omitempty"`
}

// Cascade schedules ahead-of-time app notifications at fixed day offsets.
type Cascade struct {
	Enabled     bool  `json:"enabled"`
	OffsetsDays []int `json:"offsets_days,omitempty"`
}

// DefaultCascadeOffsets is the 7/14/21-day staircase.
var DefaultCascadeOffsets = []int{7, 14, 21}

// Configuration is the engine's persistent input. It is written wholesale by
// the configuration surface and re-read by the engine on every firing.
type Configuration struct {
	Enabled         bool        `json:"enabled"`
	Frequency       Frequency   `json:"frequency"`
	TimeOfDay       string      `json:"time_of_day"`
	DayOfWeek       int         `json:"day_of_week"`
	DayOfMonth      int         `json:"day_of_month"`
	Channels        ChannelSet  `json:"channels"`
	MessageTemplate string      `json:"message_template,omitempty"`
	Eligibility     Eligibility `json:"eligibility"`
	Cascade         Cascade     `json:"cascade"`
}

type TransactionType string

const (
	TransactionDebt    TransactionType = "debt"
	TransactionPayment TransactionType = "payment"
)

type Transaction struct {
	Type   TransactionType `json:"type"`
	Amount float64         `json:"amount"`
	Date   time.Time       `json:"date"`
}

// Debtor is a read-only snapshot owned by the ledger. The engine never mutates it.
type Debtor struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone,omitempty"`
	Balance      float64       `json:"current_balance"`
	Transactions []Transaction `json:"transactions,omitempty"`
	ChatID       string        `json:"chat_id,omitempty"`
}

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// DeliveryResult is produced once per (debtor, channel) attempt.
type DeliveryResult struct {
	DebtorID string    `json:"debtor_id"`
	Channel  Channel   `json:"channel"`
	Status   Status    `json:"status"`
	Reason   Reason    `json:"reason,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// HistoryEntry is the persisted audit projection of a DeliveryResult. Name and
// amount are denormalized so the entry stays readable after the debtor is gone.
type HistoryEntry struct {
	ID         string          `json:"id"`
	DebtorID   string          `json:"debtor_id"`
	DebtorName string          `json:"debtor_name"`
	Amount     float64         `json:"amount"`
	Channel    Channel         `json:"channel"`
	Status     Status          `json:"status"`
	Reason     Reason          `json:"reason,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Level      EscalationLevel `json:"level"`
	At         time.Time       `json:"at"`
}

// NewHistoryEntry projects a result for the ledger.
func NewHistoryEntry(d Debtor, level EscalationLevel, r DeliveryResult) HistoryEntry {
	return HistoryEntry{
		DebtorID:   r.DebtorID,
		DebtorName: d.Name,
		Amount:     d.Balance,
		Channel:    r.Channel,
		Status:     r.Status,
		Reason:     r.Reason,
		Detail:     r.Detail,
		Level:      level,
		At:         r.At,
	}
}

// RunState is the global "last fired" marker used by the rate governor.
type RunState struct {
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
}
