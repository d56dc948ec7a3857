package reminder

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Renderer turns a debtor and escalation level into reminder text.
type Renderer struct {
	p      *message.Printer
	prefix string
}

// NewRenderer builds a renderer for a BCP 47 locale ("id-ID", "en"). Unknown
// or empty locales fall back to English. prefix is prepended to amounts ("Rp ").
func NewRenderer(locale, prefix string) *Renderer {
	tag := language.English
	if locale != "" {
		if t, err := language.Parse(locale); err == nil {
			tag = t
		}
	}
	return &Renderer{p: message.NewPrinter(tag), prefix: prefix}
}

// FormatAmount rounds to a whole number and adds locale thousands separators.
func (r *Renderer) FormatAmount(v float64) string {
	return r.prefix + r.p.Sprintf("%d", int64(math.Round(v)))
}

// Title is the short notification heading for a level.
func (r *Renderer) Title(level EscalationLevel) string {
	switch level {
	case LevelWarning:
		return "Payment reminder: overdue"
	case LevelCritical:
		return "Urgent: payment overdue"
	default:
		return "Payment reminder"
	}
}

// Render substitutes {name}, {amount} and {phone} literally into template. An
// empty template selects the built-in text for the level.
func (r *Renderer) Render(template string, d Debtor, level EscalationLevel) string {
	amount := r.FormatAmount(d.Balance)
	if strings.TrimSpace(template) != "" {
		return strings.NewReplacer(
			"{name}", d.Name,
			"{amount}", amount,
			"{phone}", d.Phone,
		).Replace(template)
	}
	switch level {
	case LevelWarning:
		return "Hello " + d.Name + ", your outstanding balance of " + amount +
			" is now overdue. Please arrange payment soon."
	case LevelCritical:
		return "Hello " + d.Name + ", your balance of " + amount +
			" is seriously overdue. Please settle it as soon as possible or contact us today."
	default:
		return "Hello " + d.Name + ", this is a friendly reminder that your outstanding balance is " +
			amount + ". Thank you."
	}
}
