package main

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// userLimiter pairs a token bucket with the last time it was used.
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimiter throttles inference routes per user. Idle entries are dropped
// by cleanup so the map does not grow with every user ever seen.
type rateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu       sync.Mutex
	limiters map[int]*userLimiter

	stopCh chan struct{}
}

// newRateLimiter allows perMinute requests per user per minute, with a burst
// of the same size, and starts the background cleanup loop.
func newRateLimiter(perMinute int) *rateLimiter {
	rl := &rateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		ttl:      10 * time.Minute,
		limiters: make(map[int]*userLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) stop() {
	close(rl.stopCh)
}

func (rl *rateLimiter) get(userID int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[userID] = ul
	}
	ul.lastAccess = time.Now()
	return ul.limiter
}

func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup removes limiters unused for longer than ttl.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, ul := range rl.limiters {
		if now.Sub(ul.lastAccess) > rl.ttl {
			delete(rl.limiters, id)
		}
	}
}

// middleware must run after authMiddleware; it reads user_id from the context.
// onReject is called for every rejected request (may be nil).
func (rl *rateLimiter) middleware(onReject func()) gin.HandlerFunc {
	retryAfter := int(math.Ceil(1 / float64(rl.limit)))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return func(c *gin.Context) {
		if rl.get(c.GetInt("user_id")).Allow() {
			c.Next()
			return
		}
		if onReject != nil {
			onReject()
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		apiError(c, http.StatusTooManyRequests, "too many requests")
		c.Abort()
	}
}
