package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"kasbon/internal/reminder"
)

type memStore struct {
	mu         sync.Mutex
	cfg        *reminder.Configuration
	state      reminder.RunState
	deliveries []reminder.HistoryEntry
	dedup      map[string]time.Time
	closed     bool
}

// NewMemory returns a process-local Store.
func NewMemory() Store {
	return &memStore{dedup: map[string]time.Time{}}
}

func (s *memStore) GetReminderConfig(ctx context.Context) (reminder.Configuration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reminder.Configuration{}, false, ErrClosed
	}
	if s.cfg == nil {
		return reminder.Configuration{}, false, nil
	}
	return cloneConfig(*s.cfg), true, nil
}

func (s *memStore) PutReminderConfig(ctx context.Context, cfg reminder.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	c := cloneConfig(cfg)
	s.cfg = &c
	return nil
}

func (s *memStore) GetRunState(ctx context.Context) (reminder.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reminder.RunState{}, ErrClosed
	}
	return cloneState(s.state), nil
}

func (s *memStore) PutRunState(ctx context.Context, st reminder.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.state = cloneState(st)
	return nil
}

func (s *memStore) ResetRunState(ctx context.Context) error {
	return s.PutRunState(ctx, reminder.RunState{})
}

func (s *memStore) AppendDelivery(ctx context.Context, e reminder.HistoryEntry, cap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.deliveries = trimToCap(append(s.deliveries, e), cap)
	return nil
}

func (s *memStore) RecentDeliveries(ctx context.Context, limit int) ([]reminder.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return newestFirst(s.deliveries, limit), nil
}

func (s *memStore) ClearDeliveries(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.deliveries = nil
	return nil
}

func (s *memStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.dedup[key] = until
	return nil
}

func (s *memStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, false, ErrClosed
	}
	until, ok := s.dedup[strings.TrimSpace(key)]
	return until, ok, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func cloneConfig(c reminder.Configuration) reminder.Configuration {
	c.Channels = append(reminder.ChannelSet(nil), c.Channels...)
	c.Cascade.OffsetsDays = append([]int(nil), c.Cascade.OffsetsDays...)
	if c.Eligibility.MinimumBalance != nil {
		v := *c.Eligibility.MinimumBalance
		c.Eligibility.MinimumBalance = &v
	}
	if c.Eligibility.OverdueDays != nil {
		v := *c.Eligibility.OverdueDays
		c.Eligibility.OverdueDays = &v
	}
	return c
}

func cloneState(st reminder.RunState) reminder.RunState {
	if st.LastFiredAt != nil {
		t := *st.LastFiredAt
		st.LastFiredAt = &t
	}
	return st
}
