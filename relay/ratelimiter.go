package relay

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter holds one token bucket per sender.
type RateLimiter struct {
	senders map[string]*rate.Limiter
	mutex   sync.Mutex
	limit   rate.Limit
	burst   int
}

// NewRateLimiter creates a new per-sender rate limiter
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		senders: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// Allow checks if a sender may have another message processed
func (rl *RateLimiter) Allow(senderID string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	limiter, exists := rl.senders[senderID]
	if !exists {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.senders[senderID] = limiter
	}

	return limiter.Allow()
}
