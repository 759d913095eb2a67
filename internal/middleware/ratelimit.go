package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/praxis-lab/Polya/go/decomposer/internal/auth"
	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
)

// RateLimiter enforces a per-principal request budget. With Redis
// configured the counter is shared across replicas; without it, or when
// Redis errors, a process-local token bucket takes over so a cache outage
// never disables limiting entirely.
type RateLimiter struct {
	redis  *redis.Client
	logger *zap.Logger

	requestsPerMinute int
	burstSize         int

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimiter(rdb *redis.Client, logger *zap.Logger, requestsPerMinute, burstSize int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burstSize <= 0 {
		burstSize = 10
	}
	return &RateLimiter{
		redis:             rdb,
		logger:            logger,
		requestsPerMinute: requestsPerMinute,
		burstSize:         burstSize,
		local:             make(map[string]*rate.Limiter),
	}
}

// Middleware returns the HTTP middleware function.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := rl.subjectKey(r)

		allowed, remaining, resetAt := rl.check(ctx, key)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.requestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

		if !allowed {
			limiter := "redis"
			if rl.redis == nil {
				limiter = "local"
			}
			metrics.RateLimitRejections.WithLabelValues(limiter).Inc()
			rl.logger.Warn("Rate limit exceeded",
				zap.String("subject", key),
				zap.String("path", r.URL.Path),
			)
			retryAfter := resetAt.Unix() - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			rl.sendRateLimitError(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// subjectKey identifies who the budget belongs to: the authenticated
// principal when present, the client address otherwise.
func (rl *RateLimiter) subjectKey(r *http.Request) string {
	if p, err := auth.PrincipalFrom(r.Context()); err == nil {
		return "principal:" + p.ID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func (rl *RateLimiter) check(ctx context.Context, key string) (allowed bool, remaining int, resetAt time.Time) {
	now := time.Now()
	window := now.Truncate(time.Minute)
	resetAt = window.Add(time.Minute)

	if rl.redis == nil {
		return rl.checkLocal(key), rl.requestsPerMinute, resetAt
	}

	windowKey := fmt.Sprintf("polya:ratelimit:%s:%d", key, window.Unix())

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, time.Minute+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn("Shared rate limit check failed, using local limiter", zap.Error(err))
		return rl.checkLocal(key), rl.requestsPerMinute, resetAt
	}

	count := incr.Val()
	remaining = rl.requestsPerMinute - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(rl.requestsPerMinute), remaining, resetAt
}

func (rl *RateLimiter) checkLocal(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.local[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(rl.requestsPerMinute)/60.0), rl.burstSize)
		rl.local[key] = lim
	}
	return lim.Allow()
}

func (rl *RateLimiter) sendRateLimitError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "rate limit exceeded",
		"message": "too many requests; retry after the window resets",
	})
}
