package notifier

import (
	"context"
	"time"

	"kasbon/internal/delivery"
	kit "kasbon/internal/transport"
	logx "kasbon/pkg/logx"
)

var (
	_ delivery.LocalNotifier      = (*Service)(nil)
	_ delivery.NotificationSender = (*Service)(nil)
	_ delivery.Opener             = (*Service)(nil)
)

// Permission is granted while the pipeline is enabled and has a target chat.
func (s *Service) Permission(ctx context.Context) (delivery.Permission, error) {
	cfg := s.config()
	if !cfg.Enabled {
		return delivery.PermissionDenied, nil
	}
	if cfg.Target.ChatID == 0 {
		return delivery.PermissionUndetermined, nil
	}
	return delivery.PermissionGranted, nil
}

// ScheduleNow queues n for the operator chat.
func (s *Service) ScheduleNow(ctx context.Context, n delivery.LocalNotification) error {
	return s.Notify(ctx, kit.Notification{
		Priority: n.Payload.Priority,
		Text:     formatLocal(n),
		Options:  &kit.SendOptions{DisablePreview: true},
	})
}

// ScheduleAt holds n on a timer until at. Pending timers live in memory
// only and are cancelled by Stop.
func (s *Service) ScheduleAt(ctx context.Context, n delivery.LocalNotification, at time.Time) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	d := time.Until(at)
	if d <= 0 {
		return s.ScheduleNow(ctx, n)
	}
	s.timers.after(d, func() {
		if err := s.ScheduleNow(context.Background(), n); err != nil {
			s.log.Warn("scheduled notification not sent", logx.Debtor(n.Payload.DebtorID), logx.Err(err))
		}
	})
	return nil
}

// Pending is the number of notifications waiting on timers.
func (s *Service) Pending() int { return s.timers.len() }

// SendInApp records an in-app notice for a debtor.
func (s *Service) SendInApp(ctx context.Context, debtorID string, n delivery.LocalNotification) error {
	s.inbox.push(InboxItem{
		At:       time.Now(),
		DebtorID: debtorID,
		Title:    n.Title,
		Body:     n.Body,
		Level:    int(n.Payload.EscalationLevel),
	}, s.config().InboxSize)
	return nil
}

// Inbox returns up to limit in-app notices, newest first.
func (s *Service) Inbox(limit int) []InboxItem { return s.inbox.newestFirst(limit) }

// CanOpen is false: there is no native handler on a server.
func (s *Service) CanOpen(ctx context.Context, url string) bool { return false }

// Open relays a share link to the operator, who forwards it by hand.
func (s *Service) Open(ctx context.Context, url string) error {
	return s.Notify(ctx, kit.Notification{Priority: 5, Text: "Share reminder:\n" + url})
}

// Share relays the message text itself.
func (s *Service) Share(ctx context.Context, text string) error {
	return s.Notify(ctx, kit.Notification{Priority: 5, Text: "Share reminder:\n" + text})
}

func formatLocal(n delivery.LocalNotification) string {
	if n.Title == "" {
		return n.Body
	}
	return n.Title + "\n" + n.Body
}
