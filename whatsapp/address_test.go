package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalAddress(t *testing.T) {
	got := CanonicalAddress("+1 (555) 000-1111")
	assert.Equal(t, "15550001111@s.whatsapp.net", got)

	// Idempotent: canonical input passes through unchanged.
	assert.Equal(t, got, CanonicalAddress(got))

	assert.Equal(t, "5511999998888@s.whatsapp.net", CanonicalAddress("5511999998888"))
}

func TestSenderID(t *testing.T) {
	assert.Equal(t, "15550001111", SenderID("15550001111@s.whatsapp.net"))
	assert.Equal(t, "15550001111", SenderID("15550001111"))
	assert.Equal(t, "", SenderID("@s.whatsapp.net"))
}
