package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/models"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused caller keeps its bucket.
const idleLimiterTTL = time.Hour

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per caller: the API key when auth set
// one, the client IP otherwise.
type Limiter struct {
	cfg config.RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

// NewLimiter returns a Limiter for cfg.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Limiter{cfg: cfg, limiters: make(map[string]*limiterEntry)}
}

func (l *Limiter) get(identity string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[identity]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.limiters[identity] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Sweep drops buckets idle since before cutoff and returns how many it dropped.
func (l *Limiter) Sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			n++
		}
	}
	return n
}

// Run sweeps idle buckets every five minutes until stop is closed.
func (l *Limiter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			l.Sweep(now.Add(-idleLimiterTTL))
		}
	}
}

// Middleware rejects callers that exhausted their bucket with 429 and a
// Retry-After hint.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key, ok := c.Get(apiKeyContextKey); ok {
			identity = "key:" + key.(string)
		}

		now := time.Now()
		r := l.get(identity, now).ReserveN(now, 1)
		if !r.OK() {
			abort(c, http.StatusTooManyRequests, models.ErrKindRateLimited, "rate limit exceeded, please slow down")
			return
		}
		if wait := r.DelayFrom(now); wait > 0 {
			r.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abort(c, http.StatusTooManyRequests, models.ErrKindRateLimited, "rate limit exceeded, please slow down")
			return
		}

		c.Next()
	}
}
