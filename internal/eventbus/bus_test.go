package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	runs, unsubRuns := b.Subscribe(4, "engine.run.")
	defer unsubRuns()

	b.Publish(Event{Type: "engine.run.started"})
	b.Publish(Event{Type: "engine.delivery"})

	if got := len(all); got != 2 {
		t.Fatalf("all got %d", got)
	}
	if got := len(runs); got != 1 {
		t.Fatalf("runs got %d", got)
	}
	e := <-runs
	if e.Type != "engine.run.started" || e.Time.IsZero() {
		t.Fatalf("event %+v", e)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked")
	}
	if b.Dropped() != 9 {
		t.Fatalf("dropped %d", b.Dropped())
	}

	unsub()
	unsub()
	b.Publish(Event{Type: "after"})
}

func TestUnsubscribeClosesAndRacesPublish(t *testing.T) {
	t.Parallel()

	b := New()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(Event{Type: "engine.tick"})
			}
		}
	}()
	defer close(stop)

	for i := 0; i < 100; i++ {
		ch, unsub := b.Subscribe(1, "engine.")
		unsub()
		for range ch {
		}
	}
}
