package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

const idleSweepEvery = 1024

type bucket struct {
	limiter  *xrate.Limiter
	lastSeen time.Time
}

// Local is an in-process token bucket [Limiter]. Each key refills at
// MaxAttempts per Window with a burst of MaxAttempts.
type Local struct {
	mu      sync.Mutex
	config  Config
	limit   xrate.Limit
	buckets map[string]*bucket
	calls   int
	now     func() time.Time
}

func NewLocal(cfg Config) *Local {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Local{
		config:  cfg,
		limit:   xrate.Every(cfg.Window / time.Duration(cfg.MaxAttempts)),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *Local) Allow(_ context.Context, identifier, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%idleSweepEvery == 0 {
		l.sweepLocked(now)
	}

	if !l.bucketLocked(loginUserKey(identifier), now).AllowN(now, 1) {
		return ErrRateLimited
	}
	if l.config.EnableIPThrottle && ip != "" {
		if !l.bucketLocked(loginIPKey(ip), now).AllowN(now, 1) {
			return ErrRateLimited
		}
	}
	return nil
}

func (l *Local) Reset(_ context.Context, identifier, _ string) error {
	l.mu.Lock()
	delete(l.buckets, loginUserKey(identifier))
	l.mu.Unlock()
	return nil
}

func (l *Local) bucketLocked(key string, now time.Time) *xrate.Limiter {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: xrate.NewLimiter(l.limit, l.config.MaxAttempts)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweepLocked forgets keys idle for a full window; their buckets are full again.
func (l *Local) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.config.Window {
			delete(l.buckets, key)
		}
	}
}
