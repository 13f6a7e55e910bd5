package relay

import (
	"time"

	"whatsapp-relay-bot/cache"
)

// Dedupe remembers recently seen message IDs so redelivered events are not
// forwarded to the backend twice.
type Dedupe struct {
	seen *cache.Cache
	ttl  time.Duration
}

func NewDedupe(capacity int, ttl time.Duration) *Dedupe {
	return &Dedupe{
		seen: cache.NewCache(capacity),
		ttl:  ttl,
	}
}

// FirstSeen records the ID and reports whether this was its first sighting.
func (d *Dedupe) FirstSeen(id string) bool {
	if _, exists := d.seen.Get(id); exists {
		return false
	}
	d.seen.Set(id, struct{}{}, d.ttl)
	return true
}
