package operator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "kasbon/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// slowCommand promotes the success log of a command from debug to info.
const slowCommand = 750 * time.Millisecond

// invoke runs h for req under timeout. A panic becomes an error, and any
// error is reported back to the chat before being returned.
func invoke(ctx context.Context, h HandlerFunc, req *Request, timeout time.Duration, fallback logx.Logger) error {
	log := req.logger(fallback)
	start := time.Now()

	err := callGuarded(ctx, h, req, timeout, log)
	if err != nil {
		req.Reply(context.WithoutCancel(ctx), "error: "+err.Error())
	}
	logCommand(log, time.Since(start), err)
	return err
}

func callGuarded(ctx context.Context, h HandlerFunc, req *Request, timeout time.Duration, log logx.Logger) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("command panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("internal error in /%s", req.Command)
		}
	}()
	return h(ctx, req)
}

func logCommand(log logx.Logger, took time.Duration, err error) {
	dur := logx.Duration("dur", took)
	switch {
	case err != nil:
		log.Warn("command failed", dur, logx.Err(err))
	case took >= slowCommand:
		log.Info("command ok (slow)", dur)
	default:
		log.Debug("command ok", dur)
	}
}
