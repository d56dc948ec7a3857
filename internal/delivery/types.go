package delivery

import (
	"context"
	"time"

	"kasbon/internal/reminder"
)

// PlatformCapabilities describes the delivery target.
type PlatformCapabilities struct {
	// SupportsLocalNotifications is false on targets without an OS
	// notification scheduler; the app channel then reports channel_unavailable.
	SupportsLocalNotifications bool
	// NativeShare selects the provider URL scheme / share dialog instead of
	// the web send link.
	NativeShare bool
}

type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// Payload travels with a local notification.
type Payload struct {
	DebtorID        string                   `json:"debtor_id"`
	Amount          float64                  `json:"amount"`
	EscalationLevel reminder.EscalationLevel `json:"escalation_level"`
	Priority        int                      `json:"priority"`
}

type LocalNotification struct {
	Title   string
	Body    string
	Payload Payload
}

// LocalNotifier is the OS notification scheduler.
type LocalNotifier interface {
	Permission(ctx context.Context) (Permission, error)
	ScheduleNow(ctx context.Context, n LocalNotification) error
	ScheduleAt(ctx context.Context, n LocalNotification, at time.Time) error
}

// NotificationSender posts an in-app notice tied to a debtor.
type NotificationSender interface {
	SendInApp(ctx context.Context, debtorID string, n LocalNotification) error
}

// ChatBot is the chat-bot HTTP API. Errors are *reminder.DeliveryError with
// a classified reason.
type ChatBot interface {
	// Configured reports whether a bot token is present.
	Configured() bool
	// ChatReachable is the pre-flight check for chatID.
	ChatReachable(ctx context.Context, chatID string) error
	SendMessage(ctx context.Context, chatID, text string) error
}

// Opener performs share-sheet actions.
type Opener interface {
	// CanOpen reports whether a URL scheme resolves to an installed handler.
	CanOpen(ctx context.Context, url string) bool
	Open(ctx context.Context, url string) error
	// Share opens the OS generic share dialog with text.
	Share(ctx context.Context, text string) error
}
