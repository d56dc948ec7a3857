// Package eventbus is an in-memory fanout used to decouple the engine from
// its observers (operator summaries, metrics, logs).
package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one engine or notifier signal. Type is dot-separated
// ("engine.run.finished") so subscribers can filter by prefix.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus delivers events to subscribers without ever blocking Publish; a full
// subscriber buffer loses the event.
type Bus interface {
	Publish(e Event)
	// Subscribe returns events whose Type starts with any of prefixes (all
	// events when none are given).
	Subscribe(buffer int, prefixes ...string) (ch <-chan Event, unsubscribe func())
	// Dropped counts events lost to full subscriber buffers.
	Dropped() uint64
}

const defaultBuffer = 8

// New returns a bus without background goroutines.
func New() Bus { return &fanout{} }

type subscriber struct {
	ch       chan Event
	prefixes []string
	closed   bool
}

func (s *subscriber) matches(typ string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

type fanout struct {
	mu      sync.RWMutex
	subs    []*subscriber
	dropped atomic.Uint64
}

// Publish sends under the read lock. Sends never block, and unsubscribe closes
// channels under the write lock, so a send never races a close.
func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.matches(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *fanout) Subscribe(buffer int, prefixes ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &subscriber{ch: make(chan Event, buffer), prefixes: append([]string(nil), prefixes...)}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return s.ch, func() { b.remove(s) }
}

func (b *fanout) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for i, cur := range b.subs {
		if cur == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	close(s.ch)
}

func (b *fanout) Dropped() uint64 { return b.dropped.Load() }
