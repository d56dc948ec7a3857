// Package transport holds the chat-platform neutral types shared by the
// operator console and the notifier.
package transport

import "context"

// Update is one inbound event from the chat platform. Only text messages are
// forwarded.
type Update struct {
	Message *Message
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic, 0 when none
	FromID   int64
	Text     string
}

// ChatTarget addresses a chat, optionally a topic inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef is the first message of a (possibly split) send.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// Notification is one message queued for the operator. Priority follows the
// escalation scale, 0 to 10.
type Notification struct {
	Channel  string
	Priority int
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a running chat platform connection.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
