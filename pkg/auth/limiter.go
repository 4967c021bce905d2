package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Unauthenticated callers are keyed by client IP, so a scan can grow the
// pool without bound; past this cap the pool resets, which only refills
// buckets.
const maxTrackedCallers = 4096

// limiterPool hands out one token bucket per caller.
type limiterPool struct {
	rps   rate.Limit
	burst int

	mu sync.RWMutex
	m  map[string]*rate.Limiter
}

func newLimiterPool(cfg SecConfig) *limiterPool {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{
		rps:   rate.Limit(rps),
		burst: burst,
		m:     make(map[string]*rate.Limiter),
	}
}

func (p *limiterPool) Allow(caller string) bool {
	p.mu.RLock()
	l, ok := p.m[caller]
	p.mu.RUnlock()
	if ok {
		return l.Allow()
	}

	p.mu.Lock()
	if l, ok = p.m[caller]; !ok {
		if len(p.m) >= maxTrackedCallers {
			p.m = make(map[string]*rate.Limiter, maxTrackedCallers)
		}
		l = rate.NewLimiter(p.rps, p.burst)
		p.m[caller] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
