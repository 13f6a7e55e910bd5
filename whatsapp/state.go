package whatsapp

import "strings"

// IsBadState reports whether a state should trigger a restart. Ready and the
// transitional states are left alone; only states the client cannot recover
// from on its own count.
func IsBadState(state ConnectionState) bool {
	switch state {
	case StateConflict, StateUnlaunched, StateDisconnected:
		return true
	}
	return false
}

// detachedFrameSignatures are the known error wordings of the automation
// layer losing its control surface. Matching on message text is fragile, so
// it lives here and nowhere else; swap for a structured code if upstream
// ever exposes one.
var detachedFrameSignatures = []string{
	"detached frame",
	"frame was detached",
	"session closed",
}

// IsDetachedFrameError reports whether a state-query failure means the
// control surface is gone and the client must be rebuilt.
func IsDetachedFrameError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range detachedFrameSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
