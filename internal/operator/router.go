package operator

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "kasbon/internal/runtime/supervisor"
	kit "kasbon/internal/transport"
	logx "kasbon/pkg/logx"
)

type Access int

const (
	AccessOwnerOnly Access = iota
	AccessEveryone
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	adapter kit.Sender
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r == nil || r.Logger.IsZero() {
		return fallback
	}
	return r.Logger
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) {
	if r.adapter == nil {
		return
	}
	if _, err := r.adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		r.Logger.Warn("reply failed", logx.Err(err))
	}
}

// router resolves commands and runs them on a bounded worker pool.
type router struct {
	mu       sync.RWMutex
	commands map[string]*Command
	ordered  []*Command
	owners   []int64

	log     logx.Logger
	adapter kit.Adapter
	timeout time.Duration
	workers int
	jobs    chan func()
}

func newRouter(adapter kit.Adapter, log logx.Logger, timeout time.Duration, workers int) *router {
	if workers <= 0 {
		workers = 2
	}
	return &router{
		commands: map[string]*Command{},
		log:      log,
		adapter:  adapter,
		timeout:  timeout,
		workers:  workers,
		jobs:     make(chan func(), 64),
	}
}

func (rt *router) register(cmds []Command) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i := range cmds {
		c := cmds[i]
		if c.Name == "" || c.Handle == nil {
			continue
		}
		rt.commands[c.Name] = &c
		for _, a := range c.Aliases {
			if a = strings.TrimSpace(a); a != "" {
				rt.commands[a] = &c
			}
		}
		rt.ordered = append(rt.ordered, &c)
	}
	sort.SliceStable(rt.ordered, func(i, j int) bool { return rt.ordered[i].Name < rt.ordered[j].Name })
}

func (rt *router) setOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	rt.mu.Lock()
	rt.owners = cp
	rt.mu.Unlock()
}

func (rt *router) isOwner(id int64) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for _, o := range rt.owners {
		if o == id {
			return true
		}
	}
	return false
}

func (rt *router) list() []*Command {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]*Command(nil), rt.ordered...)
}

func (rt *router) menu() []kit.BotCommand {
	var out []kit.BotCommand
	for _, c := range rt.list() {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// run consumes updates until ctx is done or updates is closed.
func (rt *router) run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(rt.log.With(logx.Component("operator.router"))),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < rt.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-rt.jobs:
					func() {
						defer func() {
							if r := recover(); r != nil {
								rt.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		rt.log.Info("command dispatcher stopped")
	}()
	rt.log.Info("command dispatcher started", logx.Int("workers", rt.workers))

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			rt.route(ctx, up)
		}
	}
}

func (rt *router) route(ctx context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	rt.mu.RLock()
	cmd, ok := rt.commands[word]
	rt.mu.RUnlock()
	if !ok {
		_, _ = rt.adapter.SendText(ctx, chat, "unknown command. try /help", nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !rt.isOwner(msg.FromID) {
		_, _ = rt.adapter.SendText(ctx, chat, "unauthorized", nil)
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   rid,
		Logger: rt.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		adapter: rt.adapter,
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = rt.timeout
	}
	select {
	case rt.jobs <- func() { _ = invoke(ctx, cmd.Handle, req, timeout, rt.log) }:
	default:
		_, _ = rt.adapter.SendText(ctx, chat, "busy, try again", nil)
	}
}
