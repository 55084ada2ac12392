package whatsapp

import "strings"

const jidSuffix = "@s.whatsapp.net"

// NormalizeNumber rewrites a Saudi phone number to bare country-coded
// digits: non-digits dropped, "00"/"+" international prefixes stripped,
// and the national "05" prefix rewritten to "966".
func NormalizeNumber(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "00") {
		digits = strings.TrimPrefix(digits, "00")
	}
	if strings.HasPrefix(digits, "05") {
		digits = "966" + digits[1:]
	}
	return digits
}

// JID builds the provider address for a phone number.
func JID(raw string) string {
	return NormalizeNumber(raw) + jidSuffix
}
