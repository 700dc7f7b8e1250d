package httpx

import (
	"net/http"
	"sync"
	"time"
)

// LocalRateLimiter is the single-replica fallback for RedisRateLimiter. Counts are per
// process, so N replicas admit up to N times the limit.
type LocalRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*fixedWindow
	sweepAt time.Time
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

func NewLocalRateLimiter(limit int, window time.Duration) *LocalRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LocalRateLimiter{limit: limit, window: window, now: time.Now, windows: map[string]*fixedWindow{}}
}

func (rl *LocalRateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(clientKey(r)) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *LocalRateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.After(rl.sweepAt) {
		for k, fw := range rl.windows {
			if now.After(fw.resetAt) {
				delete(rl.windows, k)
			}
		}
		rl.sweepAt = now.Add(rl.window)
	}

	fw := rl.windows[key]
	if fw == nil || now.After(fw.resetAt) {
		rl.windows[key] = &fixedWindow{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	if fw.count >= rl.limit {
		return false
	}
	fw.count++
	return true
}
