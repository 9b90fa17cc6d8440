package signal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter throttles inbound messages per participant.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[domain.ParticipantID]*limiterEntry
	rps   rate.Limit
	burst int
	now   func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		m:     make(map[domain.ParticipantID]*limiterEntry),
		rps:   rate.Limit(rps),
		burst: burst,
		now:   time.Now,
	}
}

func (rl *RateLimiter) Allow(p domain.ParticipantID) bool {
	rl.mu.Lock()
	e, ok := rl.m[p]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.m[p] = e
	}
	now := rl.now()
	e.seen = now
	rl.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// Sweep forgets participants idle for longer than idle.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idle)
	n := 0
	for p, e := range rl.m {
		if e.seen.Before(cutoff) {
			delete(rl.m, p)
			n++
		}
	}
	return n
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.m)
}

// Run sweeps idle participants every idle period until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Sweep(idle); n > 0 {
				log.Debug().Str("module", "signal").Int("swept", n).Msg("rate limiter sweep")
			}
		}
	}
}
