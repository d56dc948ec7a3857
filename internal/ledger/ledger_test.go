package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"kasbon/internal/reminder"
	"kasbon/internal/storage"
	logx "kasbon/pkg/logx"
)

type failingStore struct {
	storage.Store
}

func (failingStore) AppendDelivery(context.Context, reminder.HistoryEntry, int) error {
	return errors.New("disk full")
}

func TestRecordAssignsIDAndTime(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	l := New(storage.NewMemory(), logx.Nop(), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	l.Record(ctx, reminder.HistoryEntry{DebtorID: "d1", Status: reminder.StatusSent})
	l.Record(ctx, reminder.HistoryEntry{DebtorID: "d2", Status: reminder.StatusFailed})

	got, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].DebtorID != "d2" {
		t.Fatalf("want most recent first, got %+v", got)
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Fatalf("ids not unique: %q %q", got[0].ID, got[1].ID)
	}
	if !got[1].At.Equal(fixed) {
		t.Fatalf("at = %s", got[1].At)
	}
	if s, f := Summary(got); s != 1 || f != 1 {
		t.Fatalf("summary %d/%d", s, f)
	}
}

func TestRecordCap(t *testing.T) {
	t.Parallel()

	l := New(storage.NewMemory(), logx.Nop())
	ctx := context.Background()
	for i := 0; i < 1001; i++ {
		l.Record(ctx, reminder.HistoryEntry{DebtorID: "d", Amount: float64(i)})
	}
	all, _ := l.Recent(ctx, 0)
	if len(all) != 1000 {
		t.Fatalf("retained %d", len(all))
	}
	if all[len(all)-1].Amount != 1 || all[0].Amount != 1000 {
		t.Fatalf("oldest not evicted: first=%v last=%v", all[0].Amount, all[len(all)-1].Amount)
	}

	if err := l.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if all, _ := l.Recent(ctx, 0); len(all) != 0 {
		t.Fatalf("clear left %d", len(all))
	}
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	t.Parallel()

	var hooked error
	l := New(failingStore{storage.NewMemory()}, logx.Nop(), WithErrorHook(func(err error) { hooked = err }))
	l.Record(context.Background(), reminder.HistoryEntry{DebtorID: "d"})
	if hooked == nil {
		t.Fatalf("error hook not called")
	}

	var nilLedger *Ledger
	nilLedger.Record(context.Background(), reminder.HistoryEntry{})
	if _, err := New(nil, logx.Nop()).Recent(context.Background(), 1); !errors.Is(err, storage.ErrDisabled) {
		t.Fatalf("want ErrDisabled, got %v", err)
	}
}
