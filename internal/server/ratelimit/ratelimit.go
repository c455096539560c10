// Package ratelimit throttles API clients with per-route token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision describes the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Rule       string
	Limit      int // Zero when the request was not metered
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	burst    int
	lastSeen time.Time
}

// Limiter tracks one bucket per client and rule.
type Limiter struct {
	cfg *Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter. A nil config uses DefaultConfig.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	if cfg.Enabled && cfg.SweepInterval > 0 {
		go l.sweepLoop(cfg.SweepInterval)
	}
	return l
}

// Allow meters one request from clientID.
func (l *Limiter) Allow(clientID, method, path string) Decision {
	if !l.cfg.Enabled || l.cfg.Allow[clientID] {
		return Decision{Allowed: true}
	}
	if l.cfg.Deny[clientID] {
		return Decision{Rule: "deny"}
	}

	rule := Match(l.cfg.Rules, method, path)
	if rule == nil {
		rule = &l.cfg.Default
	}
	if rule.Exempt() || rule.Window <= 0 {
		return Decision{Allowed: true, Rule: rule.Name}
	}

	now := l.now()
	b := l.bucket(clientID+"|"+rule.Name, *rule, now)
	allowed := b.lim.AllowN(now, 1)

	d := Decision{Allowed: allowed, Rule: rule.Name, Limit: rule.Limit}
	tokens := max(b.lim.TokensAt(now), 0)
	d.Remaining = int(tokens)
	perSecond := float64(b.lim.Limit())
	d.ResetAt = now
	if perSecond > 0 && tokens < float64(b.burst) {
		d.ResetAt = now.Add(seconds((float64(b.burst) - tokens) / perSecond))
	}
	if !allowed && perSecond > 0 {
		d.RetryAfter = seconds((1 - tokens) / perSecond)
	}
	return d
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (l *Limiter) bucket(key string, rule Rule, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		perSecond := rate.Limit(float64(rule.Limit) / rule.Window.Seconds())
		b = &bucket{lim: rate.NewLimiter(perSecond, rule.burst()), burst: rule.burst()}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops buckets idle since before now minus the configured TTL.
func (l *Limiter) Sweep() int {
	ttl := l.cfg.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			dropped++
		}
	}
	return dropped
}

func (l *Limiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
