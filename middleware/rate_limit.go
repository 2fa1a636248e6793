package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/dailyink/utils"
)

const bucketIdle = 5 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller and scope. Callers are keyed by
// the authenticated user id when present, otherwise by client IP.
type RateLimiter struct {
	every rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter allows perMinute requests per caller with a burst of half that.
func NewRateLimiter(perMinute int) *RateLimiter {
	perMinute = max(perMinute, 1)
	return &RateLimiter{
		every:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   max(perMinute/2, 1),
		buckets: make(map[string]*bucket),
	}
}

// Handler limits requests within scope. Scopes do not share buckets, so reads
// of public stats never eat into a user's write allowance.
func (l *RateLimiter) Handler(scope string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		caller := "ip:" + ctx.ClientIP()
		if uid := ctx.GetString(ContextUserIDKey); uid != "" {
			caller = "user:" + uid
		}
		if !l.allow(scope + "|" + caller) {
			utils.Abort(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

func (l *RateLimiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketIdle {
			delete(l.buckets, k)
		}
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}
