package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"kasbon/internal/reminder"
)

type fakeLocal struct {
	mu        sync.Mutex
	perm      Permission
	failNow   error
	now       []LocalNotification
	scheduled []time.Time
	levels    []reminder.EscalationLevel
}

func (f *fakeLocal) Permission(context.Context) (Permission, error) { return f.perm, nil }

func (f *fakeLocal) ScheduleNow(_ context.Context, n LocalNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNow != nil {
		return f.failNow
	}
	f.now = append(f.now, n)
	return nil
}

func (f *fakeLocal) ScheduleAt(_ context.Context, n LocalNotification, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, at)
	f.levels = append(f.levels, n.Payload.EscalationLevel)
	return nil
}

type fakeBot struct {
	mu         sync.Mutex
	token      bool
	reachErr   error
	sendErr    error
	calls      int
	sentChats  []string
	sentBodies []string
}

func (f *fakeBot) Configured() bool { return f.token }

func (f *fakeBot) ChatReachable(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reachErr
}

func (f *fakeBot) SendMessage(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentChats = append(f.sentChats, chatID)
	f.sentBodies = append(f.sentBodies, text)
	return nil
}

func (f *fakeBot) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOpener struct {
	canOpen bool
	opened  []string
	shared  []string
}

func (f *fakeOpener) CanOpen(context.Context, string) bool { return f.canOpen }

func (f *fakeOpener) Open(_ context.Context, url string) error {
	f.opened = append(f.opened, url)
	return nil
}

func (f *fakeOpener) Share(_ context.Context, text string) error {
	f.shared = append(f.shared, text)
	return nil
}

var errBoom = errors.New("boom")
