// Package notifier is the asynchronous operator notification pipeline.
//
// Messages are queued and sent by a small worker pool through a
// transport.Adapter, with a token-bucket rate limit, jittered retry and
// time-window dedup (optionally persisted through storage so restarts do not
// resend).
//
// The service is also the daemon's "device": it implements
// delivery.LocalNotifier (reminders become messages in the operator chat,
// future ones are held on timers), delivery.NotificationSender (an in-app
// inbox per debtor) and delivery.Opener (share links are relayed to the
// operator, who forwards them).
package notifier
