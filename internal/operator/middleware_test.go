package operator

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "kasbon/pkg/logx"
)

func TestInvokeRecoversPanic(t *testing.T) {
	ad := &fakeAdapter{}
	req := &Request{Command: "status", adapter: ad}

	err := invoke(context.Background(), func(context.Context, *Request) error {
		panic("boom")
	}, req, time.Second, logx.Nop())

	if err == nil || err.Error() != "internal error in /status" {
		t.Fatalf("err = %v", err)
	}
	if got := ad.texts(); len(got) != 1 || got[0] != "error: internal error in /status" {
		t.Fatalf("replies = %q", got)
	}
}

func TestInvokeAppliesTimeout(t *testing.T) {
	ad := &fakeAdapter{}
	req := &Request{Command: "run", adapter: ad}

	err := invoke(context.Background(), func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, req, 20*time.Millisecond, logx.Nop())

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if len(ad.texts()) != 1 {
		t.Fatalf("expected one error reply, got %q", ad.texts())
	}
}

func TestInvokeSuccessIsSilent(t *testing.T) {
	ad := &fakeAdapter{}
	req := &Request{Command: "help", adapter: ad}
	if err := invoke(context.Background(), func(context.Context, *Request) error { return nil }, req, 0, logx.Nop()); err != nil {
		t.Fatal(err)
	}
	if len(ad.texts()) != 0 {
		t.Fatalf("unexpected replies %q", ad.texts())
	}
}
