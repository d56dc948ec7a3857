package reminder

import (
	"errors"
	"fmt"
)

// ErrConfigInvalid marks a malformed ReminderConfiguration. A run that hits it
// is aborted before any dispatch.
var ErrConfigInvalid = errors.New("reminder config invalid")

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// Reason is the failure vocabulary recorded on a failed delivery.
type Reason string

const (
	ReasonPermissionDenied      Reason = "permission_denied"
	ReasonChannelUnavailable    Reason = "channel_unavailable"
	ReasonMissingBotToken       Reason = "missing_bot_token"
	ReasonMissingRecipientID    Reason = "missing_recipient_id"
	ReasonMalformedRecipientID  Reason = "malformed_recipient_id"
	ReasonRecipientUnreachable  Reason = "recipient_unreachable"
	ReasonRecipientBlocked      Reason = "recipient_blocked"
	ReasonProviderAuthInvalid   Reason = "provider_auth_invalid"
	ReasonMissingPhoneNumber    Reason = "missing_phone_number"
	ReasonTransientNetworkError Reason = "transient_network_error"
)

// Remediation returns operator-facing guidance for a failure reason.
func (r Reason) Remediation() string {
	switch r {
	case ReasonPermissionDenied:
		return "Notifications are not allowed on this device. Grant notification permission and try again."
	case ReasonChannelUnavailable:
		return "This channel is not available on the current platform."
	case ReasonMissingBotToken:
		return "No chat-bot token is configured. Add the bot token in the settings."
	case ReasonMissingRecipientID:
		return "The customer has no chat ID and no default chat ID is configured."
	case ReasonMalformedRecipientID:
		return "The chat ID must be a number (optionally negative for groups). Check the customer's chat ID."
	case ReasonRecipientUnreachable:
		return "The bot cannot reach this chat. Ask the customer to open the bot and press Start again."
	case ReasonRecipientBlocked:
		return "The customer has blocked the bot. Ask them to unblock it and press Start again."
	case ReasonProviderAuthInvalid:
		return "The chat-bot token was rejected. Check the token with the bot provider."
	case ReasonMissingPhoneNumber:
		return "The customer has no phone number. Add one to share reminders."
	case ReasonTransientNetworkError:
		return "A network error occurred. The reminder will be retried on the next scheduled run."
	default:
		return ""
	}
}

// DeliveryError is a classified per-channel failure.
type DeliveryError struct {
	Reason Reason
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Fail wraps err with a reason.
func Fail(reason Reason, err error) error {
	return &DeliveryError{Reason: reason, Err: err}
}

// ReasonOf extracts the reason from err. Unclassified errors are transient.
func ReasonOf(err error) Reason {
	var de *DeliveryError
	if errors.As(err, &de) && de.Reason != "" {
		return de.Reason
	}
	return ReasonTransientNetworkError
}
