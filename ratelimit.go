package privmsg

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterTTL         = 10 * time.Minute
	limiterSweepPeriod = time.Minute
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per sender.
// Idle buckets are swept lazily on access.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// newLimiterPool returns nil when rate limiting is disabled.
func newLimiterPool(perSecond float64, burst int) *limiterPool {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		limit: rate.Limit(perSecond),
		burst: burst,
		now:   time.Now,
	}
}

// allow reports whether key may send now. A nil pool allows everything.
func (p *limiterPool) allow(key string) bool {
	if p == nil {
		return true
	}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastSweep) >= limiterSweepPeriod {
		cutoff := now.Add(-limiterTTL)
		for k, e := range p.m {
			if e.lastSeen.Before(cutoff) {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}

	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(p.limit, p.burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	return e.l.AllowN(now, 1)
}
