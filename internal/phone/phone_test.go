package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5491122334455@c.us", "5491122334455"},
		{"5491122334455@s.whatsapp.net", "5491122334455"},
		{"5491122334455:12@s.whatsapp.net", "5491122334455"},
		{"+54 9 11 2233-4455", "5491122334455"},
		{"(011) 2233.4455", "01122334455"},
		{"  ", ""},
		{"", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeSameForBookingAndWebhookInputs(t *testing.T) {
	fromWebhook := Normalize("5215512345678@c.us")
	fromBooking := Normalize("+52 1 55 1234 5678")
	assert.Equal(t, fromWebhook, fromBooking)
}

func TestChatID(t *testing.T) {
	assert.Equal(t, "stored@c.us", ChatID(" stored@c.us ", "+1 555", ChannelWhatsApp))
	assert.Equal(t, "1555123@c.us", ChatID("", "+1 555-123", ChannelWhatsApp))
	assert.Equal(t, "1555123@c.us", ChatID("", "+1 555-123", ""))
	assert.Equal(t, "ig-user-77", ChatID("", "ig-user-77", ChannelInstagram))
	assert.Equal(t, "", ChatID("", "", ChannelWhatsApp))
}

func TestValidChannel(t *testing.T) {
	assert.True(t, ValidChannel(ChannelWhatsApp))
	assert.True(t, ValidChannel(ChannelInstagram))
	assert.True(t, ValidChannel(ChannelFacebook))
	assert.False(t, ValidChannel("telegram"))
}
