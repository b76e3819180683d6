package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bandcoach/bandcoach/internal/telegram"
	"github.com/bandcoach/bandcoach/internal/transport"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter throttles inbound updates per learner. Entries idle for longer
// than the TTL are swept.
type Limiter struct {
	mu       sync.Mutex
	visitors map[int64]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewLimiter allows perSecond updates per learner with the given burst.
func NewLimiter(perSecond float64, burst int, ttl time.Duration) *Limiter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Limiter{
		visitors: make(map[int64]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether userID may send another update now.
func (l *Limiter) Allow(userID int64) bool {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Sweep drops idle learners and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked learners.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Run sweeps once per minute until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Guard returns a sink that drops over-limit updates before they reach
// next. onDrop, if set, is called for every dropped update.
func (l *Limiter) Guard(next telegram.Sink, onDrop func()) telegram.Sink {
	return func(ctx context.Context, ev transport.Event) bool {
		if !l.Allow(ev.User.ID) {
			if onDrop != nil {
				onDrop()
			}
			return false
		}
		return next(ctx, ev)
	}
}
