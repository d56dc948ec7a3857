// Package delivery sends one debtor's reminder over every enabled channel.
//
// Channels are attempted in reminder.ChannelOrder. Each attempt yields exactly
// one reminder.DeliveryResult; a failing channel is recorded and never stops
// the channels after it. Collaborators (OS notifications, chat-bot API, share
// sheet) are injected as interfaces so the dispatcher never senses its
// environment on its own; PlatformCapabilities says what the target supports.
package delivery
