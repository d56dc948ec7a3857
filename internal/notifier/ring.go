package notifier

import (
	"sync"
	"time"
)

// ring keeps the most recent max items.
type ring[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *ring[T]) push(v T, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
	if max > 0 && len(r.items) > max {
		r.items = append(r.items[:0:0], r.items[len(r.items)-max:]...)
	}
}

// oldestFirst copies the retained items.
func (r *ring[T]) oldestFirst() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

// newestFirst returns up to limit items; limit <= 0 means all.
func (r *ring[T]) newestFirst(limit int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]T, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.items[i])
	}
	return out
}

// timerSet tracks pending time.AfterFunc timers so they can be cancelled.
type timerSet struct {
	mu sync.Mutex
	m  map[*time.Timer]struct{}
}

func (ts *timerSet) after(d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.m == nil {
		ts.m = map[*time.Timer]struct{}{}
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		ts.mu.Lock()
		delete(ts.m, t)
		ts.mu.Unlock()
		fn()
	})
	ts.m[t] = struct{}{}
}

func (ts *timerSet) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.m)
}

func (ts *timerSet) cancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for t := range ts.m {
		t.Stop()
		delete(ts.m, t)
	}
}
