package reminder

import (
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	r := NewRenderer("en", "Rp ")
	d := Debtor{Name: "Budi", Phone: "0812", Balance: 1250000}
	got := r.Render("Hi {name}, owe {amount}. Call {phone}. {name}!", d, LevelReminder)
	want := "Hi Budi, owe Rp 1,250,000. Call 0812. Budi!"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderBuiltIn(t *testing.T) {
	t.Parallel()

	r := NewRenderer("", "")
	d := Debtor{Name: "Sari", Balance: 99999.6}
	for _, l := range []EscalationLevel{LevelReminder, LevelWarning, LevelCritical} {
		msg := r.Render("", d, l)
		if !strings.Contains(msg, "Sari") || !strings.Contains(msg, "100,000") {
			t.Fatalf("level %s: %q", l, msg)
		}
	}
	if r.Render("", d, LevelReminder) == r.Render("", d, LevelCritical) {
		t.Fatalf("levels should differ in tone")
	}
}

func TestFormatAmountLocale(t *testing.T) {
	t.Parallel()

	if got := NewRenderer("id", "").FormatAmount(1500000); got != "1.500.000" {
		t.Fatalf("id: got %q", got)
	}
	if got := NewRenderer("not a locale!!", "").FormatAmount(1500); got != "1,500" {
		t.Fatalf("fallback: got %q", got)
	}
}
