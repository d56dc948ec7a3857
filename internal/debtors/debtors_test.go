package debtors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

const snapshotJSON = `[
  {"id":"b","name":"Budi","phone":"0812","current_balance":150000,
   "transactions":[{"type":"debt","amount":150000,"date":"2024-01-05T10:00:00Z"}]},
  {"id":"a","name":"Ani","current_balance":0,"chat_id":"-100"}
]`

func TestFileSource_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debtors.json")
	if err := os.WriteFile(path, []byte(snapshotJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileSource(path).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("order not preserved: %+v", got)
	}
	if got[0].Balance != 150000 || len(got[0].Transactions) != 1 {
		t.Fatalf("unexpected debtor: %+v", got[0])
	}
	if got[1].ChatID != "-100" {
		t.Fatalf("chat id = %q", got[1].ChatID)
	}
}

func TestFileSource_YAMLWrapped(t *testing.T) {
	doc := `debtors:
  - id: "1"
    name: Citra
    current_balance: 20000
    transactions:
      - type: debt
        amount: 20000
        date: "2024-03-01T08:00:00Z"
`
	path := filepath.Join(t.TempDir(), "debtors.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileSource(path).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Citra" {
		t.Fatalf("got %+v", got)
	}
	want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if !got[0].Transactions[0].Date.Equal(want) {
		t.Fatalf("date = %v", got[0].Transactions[0].Date)
	}
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.json")).Snapshot(context.Background())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/debtors" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad token"))
			return
		}
		_, _ = w.Write([]byte(`{"debtors":` + snapshotJSON + `}`))
	}))
	defer srv.Close()

	got, err := NewHTTPSource(srv.URL+"/api/", "secret", time.Second).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Budi" {
		t.Fatalf("got %+v", got)
	}

	_, err = NewHTTPSource(srv.URL+"/api", "wrong", time.Second).Snapshot(context.Background())
	if err == nil || !strings.Contains(err.Error(), "API error 401") {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTPSource_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := NewHTTPSource(srv.URL, "", 50*time.Millisecond).Snapshot(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not bounded: %v", time.Since(start))
	}
}

func TestAttachTransactions(t *testing.T) {
	ds := []reminder.Debtor{{ID: "2"}, {ID: "1"}}
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []txRow{
		{debtorID: "1", tx: reminder.Transaction{Type: reminder.TransactionDebt, Amount: 10, Date: d1}},
		{debtorID: "2", tx: reminder.Transaction{Type: reminder.TransactionPayment, Amount: 5, Date: d1}},
		{debtorID: "1", tx: reminder.Transaction{Type: reminder.TransactionDebt, Amount: 20, Date: d1.AddDate(0, 0, 1)}},
		{debtorID: "9", tx: reminder.Transaction{Type: reminder.TransactionDebt, Amount: 1, Date: d1}},
	}
	if n := attachTransactions(ds, rows); n != 1 {
		t.Fatalf("orphans = %d, want 1", n)
	}
	if ds[0].ID != "2" || len(ds[0].Transactions) != 1 {
		t.Fatalf("debtor 2: %+v", ds[0])
	}
	if len(ds[1].Transactions) != 2 || ds[1].Transactions[1].Amount != 20 {
		t.Fatalf("debtor 1: %+v", ds[1])
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{}, logx.Nop()); err != ErrNoSource {
		t.Fatalf("empty driver err = %v", err)
	}
	if _, err := Open(ctx, Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file without path should fail")
	}
	if _, err := Open(ctx, Config{Driver: "carrier-pigeon"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
	src, err := Open(ctx, Config{Driver: "static", Debtors: []reminder.Debtor{{ID: "x"}}}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	got, _ := src.Snapshot(ctx)
	got[0].ID = "mutated"
	again, _ := src.Snapshot(ctx)
	if again[0].ID != "x" {
		t.Fatal("static snapshot leaked mutation")
	}
}
