package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"kasbon/internal/storage"
	kit "kasbon/internal/transport"
	logx "kasbon/pkg/logx"
)

// dedupKey identifies a notification by destination, priority and text.
func dedupKey(n kit.Notification) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d:%d|%d|%s", n.Channel, n.Target.ChatID, n.Target.ThreadID, n.Priority, n.Text)
	return fmt.Sprintf("%016x", h.Sum64())
}

// dedupCache maps keys to the end of their suppression window. It is bounded;
// when full the entries closest to expiry go first.
type dedupCache struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func newDedupCache() *dedupCache { return &dedupCache{until: map[string]time.Time{}} }

func (c *dedupCache) suppressed(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.until[key]
	return ok && now.Before(u)
}

func (c *dedupCache) set(key string, until, now time.Time, max int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[key] = until
	for k, u := range c.until {
		if !now.Before(u) {
			delete(c.until, k)
		}
	}
	if over := len(c.until) - max; max > 0 && over > 0 {
		keys := make([]string, 0, len(c.until))
		for k := range c.until {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b string) int { return c.until[a].Compare(c.until[b]) })
		for _, k := range keys[:over] {
			delete(c.until, k)
		}
	}
}

// admit reports whether key may be sent at now and opens its window if so.
// With persist the store is consulted and updated on a best-effort basis so a
// restart does not resend inside the window.
func (s *Service) admit(ctx context.Context, key string, now time.Time, cfg Config) bool {
	if s.dedup.suppressed(key, now) {
		return false
	}
	var st storage.Store
	if cfg.PersistDedup {
		st = s.store
	}
	if st != nil {
		rctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		until, ok, err := st.GetDedup(rctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dedup.set(key, until, now, cfg.DedupMaxEntries)
			return false
		}
	}

	until := now.Add(cfg.DedupWindow)
	s.dedup.set(key, until, now, cfg.DedupMaxEntries)
	if st != nil {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 250*time.Millisecond)
		defer cancel()
		if err := st.PutDedup(wctx, key, until); err != nil {
			s.log.Debug("dedup persist failed", logx.Err(err))
		}
	}
	return true
}
