package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to the token bucket it draws from.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP buckets signed-in users by identity and everyone else by
// client IP. Only routes behind RequireAuth ever see a user.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := userID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyByIP buckets by client IP under namespace, so a route limiter (sign-in
// links) never shares buckets with the engine-wide one.
func KeyByIP(namespace string) KeyFunc {
	return func(c *gin.Context) string {
		return namespace + ":" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-process token bucket per key. Idle buckets are
// dropped by Sweep; call Run to do that periodically.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	keyFn   KeyFunc
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter refills rps tokens per second up to burst (at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		idleTTL: 10 * time.Minute,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Sweep removes buckets idle for at least the idle TTL and reports how many
// it removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for k, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.idleTTL {
			delete(rl.buckets, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			rl.Sweep(now)
		}
	}
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as
// a replay of a stored response.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler rejects requests over the key's budget with 429 and a Retry-After
// in whole seconds. Idempotent replays do not consume tokens.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		if rl.limiterFor(rl.keyFn(c), time.Now()).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": requestID(c),
			"code":       "too_many_requests",
			"message":    "Zu viele Anfragen. Bitte versuchen Sie es später erneut.",
		})
	}
}

// retryAfter is the time for one token to refill, rounded up, at least 1s.
func (rl *RateLimiter) retryAfter() int {
	if rl.limit <= 0 || math.IsInf(float64(rl.limit), 1) {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(rl.limit))))
}
