package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cloudvars/cloudvars-api/internal/pkg/response"
)

// Throttle limits requests per client IP using Redis INCR/EXPIRE.
// With a nil Redis client it allows everything (fail open, no Redis in dev).
type Throttle struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewThrottle creates an IP-keyed request throttle
func NewThrottle(redisClient *redis.Client, limit int, window time.Duration) *Throttle {
	return &Throttle{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the given key may issue another request
func (t *Throttle) Allow(r *http.Request, key string) bool {
	if t.redis == nil {
		return true
	}

	redisKey := fmt.Sprintf("ratelimit:api:%s", key)
	ctx := r.Context()

	count, err := t.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true // Fail open
	}

	if count == 1 {
		t.redis.Expire(ctx, redisKey, t.window)
	}

	return count <= int64(t.limit)
}

// Handler wraps an http.Handler with the throttle
func (t *Throttle) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.Allow(r, ClientIP(r)) {
			response.TooManyRequests(w, "Too many requests, please slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
