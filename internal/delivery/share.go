package delivery

import (
	"net/url"
	"strings"
)

// ShareConfig shapes share-sheet links.
type ShareConfig struct {
	// ProviderURL is the web base, e.g. "https://api.whatsapp.com".
	ProviderURL string
	// AppScheme is the native handler, e.g. "whatsapp://send".
	AppScheme string
	// DefaultCountryCode replaces a leading trunk "0".
	DefaultCountryCode string
}

func (c ShareConfig) withDefaults() ShareConfig {
	if c.ProviderURL == "" {
		c.ProviderURL = "https://api.whatsapp.com"
	}
	if c.AppScheme == "" {
		c.AppScheme = "whatsapp://send"
	}
	if c.DefaultCountryCode == "" {
		c.DefaultCountryCode = "62"
	}
	return c
}

// NormalizePhone reduces a phone number to E.164 digits without "+". A
// leading trunk 0 becomes countryCode. Returns "" when no digits remain.
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "0") && countryCode != "" && !strings.HasPrefix(strings.TrimSpace(raw), "+") {
		digits = countryCode + strings.TrimLeft(digits, "0")
	}
	return digits
}

// WebURL builds "<provider>/send?phone=<e164>&text=<encoded>".
func (c ShareConfig) WebURL(phone, text string) string {
	base := strings.TrimRight(c.ProviderURL, "/")
	return base + "/send?phone=" + phone + "&text=" + encodeText(text)
}

// AppURL builds the native scheme link.
func (c ShareConfig) AppURL(phone, text string) string {
	return c.AppScheme + "?phone=" + phone + "&text=" + encodeText(text)
}

// encodeText percent-encodes spaces as %20; some providers show a literal "+".
func encodeText(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
