// Package phone normalizes phone numbers and chat identifiers coming from the
// messaging gateway, the booking form and manual lead entry so that all of
// them compare equal.
package phone

import (
	"strings"
	"unicode"

	"go.mau.fi/whatsmeow/types"
)

// Channel names accepted by the gateway.
const (
	ChannelWhatsApp  = "whatsapp"
	ChannelInstagram = "instagram"
	ChannelFacebook  = "facebook"
)

// Normalize strips a chat server suffix (@c.us, @s.whatsapp.net, ...) and a
// device part, then keeps only digits.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return digitsOnly(userPart(raw))
}

func userPart(raw string) string {
	if !strings.Contains(raw, "@") {
		return raw
	}
	if jid, err := types.ParseJID(raw); err == nil && jid.User != "" {
		return jid.User
	}
	user := raw[:strings.Index(raw, "@")]
	if i := strings.IndexAny(user, ":."); i >= 0 {
		user = user[:i]
	}
	return user
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ChatID builds the gateway chat identifier for a lead. A stored chat id
// always wins; whatsapp numbers get the @c.us suffix, other channels use the
// raw identifier.
func ChatID(stored, rawPhone, channel string) string {
	if stored = strings.TrimSpace(stored); stored != "" {
		return stored
	}
	if channel == "" || channel == ChannelWhatsApp {
		digits := Normalize(rawPhone)
		if digits == "" {
			return ""
		}
		return digits + "@c.us"
	}
	return strings.TrimSpace(rawPhone)
}

// ValidChannel reports whether ch is one of the supported gateway channels.
func ValidChannel(ch string) bool {
	switch ch {
	case ChannelWhatsApp, ChannelInstagram, ChannelFacebook:
		return true
	}
	return false
}
