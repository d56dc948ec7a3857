package supervisor

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Counters are best-effort operational numbers.
type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

func (s *Supervisor) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	return Counters{Active: s.stats.active.Load(), Started: s.stats.started.Load()}
}

// TaskStats aggregates runs of tasks sharing a name.
type TaskStats struct {
	Name        string    `json:"name"`
	Active      int64     `json:"active"`
	Runs        uint64    `json:"runs"`
	Restarts    uint64    `json:"restarts"`
	Panics      uint64    `json:"panics"`
	LastStartAt time.Time `json:"last_start_at"`
	LastErr     string    `json:"last_err,omitempty"`
	LastErrAt   time.Time `json:"last_err_at"`
}

// Tasks returns a copy of per-name stats, active tasks first.
func (s *Supervisor) Tasks() []TaskStats {
	if s == nil {
		return nil
	}
	out := s.stats.snapshot()
	slices.SortFunc(out, func(a, b TaskStats) int {
		if c := cmp.Compare(b.Active, a.Active); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

type taskTable struct {
	started atomic.Uint64
	active  atomic.Int64

	mu     sync.Mutex
	byName map[string]*TaskStats
}

func (t *taskTable) spawned() {
	t.started.Add(1)
	t.active.Add(1)
}

func (t *taskTable) exited() { t.active.Add(-1) }

func (t *taskTable) entry(name string) *TaskStats {
	if t.byName == nil {
		t.byName = map[string]*TaskStats{}
	}
	st := t.byName[name]
	if st == nil {
		st = &TaskStats{Name: name}
		t.byName[name] = st
	}
	return st
}

func (t *taskTable) begin(name string, restart bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.entry(name)
	st.Active++
	st.Runs++
	st.LastStartAt = time.Now()
	if restart {
		st.Restarts++
	}
}

func (t *taskTable) end(name string, err error, panicked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.entry(name)
	st.Active--
	if panicked {
		st.Panics++
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		st.LastErr = err.Error()
		st.LastErrAt = time.Now()
	}
}

func (t *taskTable) snapshot() []TaskStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TaskStats, 0, len(t.byName))
	for _, st := range t.byName {
		out = append(out, *st)
	}
	return out
}
