package telegram

import (
	"context"
	"slices"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "kasbon/internal/transport"
	logx "kasbon/pkg/logx"
)

// textLimit stays under the Bot API's 4096 character message cap.
const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. A cut moves back to
// the last newline when that keeps the chunk at least a third full; newlines
// at the cut are dropped.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rest := []rune(s)
	if len(rest) <= limit {
		return []string{s}
	}
	var chunks []string
	for len(rest) > 0 {
		cut := min(limit, len(rest))
		if cut < len(rest) {
			if nl := lastNewline(rest[:cut]); nl >= limit/3 {
				cut = nl + 1
			}
		}
		chunks = append(chunks, strings.TrimRight(string(rest[:cut]), "\n"))
		rest = rest[cut:]
		for len(rest) > 0 && rest[0] == '\n' {
			rest = rest[1:]
		}
	}
	return chunks
}

func lastNewline(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == '\n' {
			return i
		}
	}
	return -1
}

// SendText delivers text, split over several messages when long, and returns
// a reference to the first one.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	send := &tele.SendOptions{
		ParseMode:             o.ParseMode,
		DisableWebPagePreview: o.DisablePreview,
		DisableNotification:   o.Silent,
		ThreadID:              to.ThreadID,
	}
	chat := &tele.Chat{ID: to.ChatID}

	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return ref, err
		}
		msg, err := a.bot.Send(chat, chunk, send)
		if err != nil {
			return ref, err
		}
		if i == 0 {
			ref.MessageID = msg.ID
		}
	}
	return ref, nil
}

// UpdateMenuCommands publishes cmds as the bot menu, skipping the API call
// when the list is unchanged.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	list := menuCommands(cmds)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if a.menu != nil && slices.Equal(a.menu, list) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return err
	}
	a.menu = list
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

func menuCommands(cmds []kit.BotCommand) []tele.Command {
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		desc := c.Description
		if desc == "" {
			desc = c.Command
		}
		list = append(list, tele.Command{Text: c.Command, Description: desc})
	}
	return list
}
