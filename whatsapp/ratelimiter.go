package whatsapp

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per sender so a chatty customer gets a
// single redirect instead of one per message.
type RateLimiter struct {
	visitors map[string]*visitor
	mutex    sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing limit events per second with the
// given burst. A limit of zero or less disables limiting.
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow checks if sender may receive another reply now
func (rl *RateLimiter) Allow(sender string) bool {
	if rl.limit == rate.Inf {
		return true
	}
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	v, exists := rl.visitors[sender]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[sender] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// StartCleanup drops senders idle for longer than the idle window until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanupStaleVisitors()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (rl *RateLimiter) cleanupStaleVisitors() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for sender, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.visitors, sender)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.visitors)
}
