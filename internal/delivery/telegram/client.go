// Package telegram implements delivery.ChatBot on the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides https://api.telegram.org (tests, self-hosted API).
	APIURL  string
	Timeout time.Duration
}

// Client talks to the Bot API through an offline telebot instance: no
// polling and no getMe at construction, only explicit method calls.
type Client struct {
	log logx.Logger

	mu  sync.Mutex
	bot *tele.Bot
	cfg Config
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{log: log}
	if err := c.Apply(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply swaps in a new token/endpoint.
func (c *Client) Apply(cfg Config) error {
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	var bot *tele.Bot
	if cfg.Token != "" {
		var err error
		bot, err = tele.NewBot(tele.Settings{
			Token:   cfg.Token,
			URL:     cfg.APIURL,
			Client:  &http.Client{Timeout: cfg.Timeout},
			Offline: true,
		})
		if err != nil {
			return fmt.Errorf("chatbot: %w", err)
		}
	}
	c.mu.Lock()
	c.bot = bot
	c.cfg = cfg
	c.mu.Unlock()
	return nil
}

func (c *Client) Configured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bot != nil
}

// ChatReachable looks chatID up with getChat.
func (c *Client) ChatReachable(ctx context.Context, chatID string) error {
	_, err := c.raw(ctx, "getChat", map[string]string{"chat_id": chatID})
	return err
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	_, err := c.raw(ctx, "sendMessage", map[string]string{"chat_id": chatID, "text": text})
	return err
}

// Identity returns the bot's @username via getMe.
func (c *Client) Identity(ctx context.Context) (string, error) {
	res, err := c.raw(ctx, "getMe", map[string]string{})
	if err != nil {
		return "", err
	}
	var me struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(res, &me); err != nil {
		return "", reminder.Fail(reminder.ReasonTransientNetworkError, err)
	}
	return "@" + me.Username, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// raw runs a Bot API method and returns its result. telebot's Raw has no
// context parameter, so the call runs aside and ctx only abandons it; the
// http.Client timeout bounds the request itself.
func (c *Client) raw(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	bot := c.bot
	c.mu.Unlock()
	if bot == nil {
		return nil, reminder.Fail(reminder.ReasonMissingBotToken, nil)
	}

	type out struct {
		data []byte
		err  error
	}
	ch := make(chan out, 1)
	go func() {
		data, err := bot.Raw(method, payload)
		ch <- out{data, err}
	}()

	var o out
	select {
	case <-ctx.Done():
		return nil, reminder.Fail(reminder.ReasonTransientNetworkError, ctx.Err())
	case o = <-ch:
	}

	var resp apiResponse
	if len(o.data) > 0 && json.Unmarshal(o.data, &resp) == nil {
		if resp.OK {
			return resp.Result, nil
		}
		if resp.Description != "" {
			return nil, Classify(errors.New(resp.Description))
		}
	}
	if o.err != nil {
		return nil, Classify(o.err)
	}
	return nil, reminder.Fail(reminder.ReasonTransientNetworkError, fmt.Errorf("%s: unexpected response", method))
}

// Classify maps a Bot API error description onto the failure vocabulary.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	var reason reminder.Reason
	switch {
	case strings.Contains(msg, "chat not found"),
		strings.Contains(msg, "can't initiate conversation"),
		strings.Contains(msg, "user not found"):
		reason = reminder.ReasonRecipientUnreachable
	case strings.Contains(msg, "blocked by the user"),
		strings.Contains(msg, "user is deactivated"),
		strings.Contains(msg, "kicked"):
		reason = reminder.ReasonRecipientBlocked
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "invalid token"):
		reason = reminder.ReasonProviderAuthInvalid
	default:
		reason = reminder.ReasonTransientNetworkError
	}
	return reminder.Fail(reason, err)
}
