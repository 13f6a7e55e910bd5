package whatsapp

import "strings"

// CanonicalSuffix is the user server part of a canonical address.
const CanonicalSuffix = "@s.whatsapp.net"

// CanonicalAddress normalizes a destination phone number into the transport
// address form: digits only plus the user server suffix. Already-canonical
// input is returned unchanged, so the function is idempotent.
func CanonicalAddress(number string) string {
	if strings.HasSuffix(number, CanonicalSuffix) {
		return number
	}
	var digits strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String() + CanonicalSuffix
}

// SenderID strips the transport suffix from a raw sender identifier,
// leaving the bare user part.
func SenderID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
