package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window.
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting.
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns the limits for unauthenticated
// requests.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
	}
}

// PerUserRateLimitConfig returns the limits for authenticated sessions.
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter implements a fixed-window rate limit counter in Redis so
// limits hold across replicas.
type RateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewRateLimiter creates a Redis-backed rate limiter.
func NewRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RateLimiter{redis: redisClient, config: config, prefix: prefix}
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.prefix + ":" + key

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining returns the number of remaining requests in the window.
func (rl *RateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.prefix+":"+key).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TTL returns the time until the rate limit window resets.
func (rl *RateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.prefix+":"+key).Result()
}

// Reset clears the rate limit for a key.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.prefix+":"+key).Err()
}

// RateLimitMiddleware applies per-member limits to authenticated
// requests and per-IP limits to anonymous ones. Redis failures fail
// open by default: losing the limiter must not take the console down.
type RateLimitMiddleware struct {
	memberLimiter   *RateLimiter
	anonLimiter     *RateLimiter
	fallbackEnabled bool
}

// NewRateLimitMiddleware creates the rate limit middleware.
func NewRateLimitMiddleware(redisClient *redis.Client) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		memberLimiter:   NewRateLimiter(redisClient, PerUserRateLimitConfig(), "ratelimit:member"),
		anonLimiter:     NewRateLimiter(redisClient, DefaultRateLimitConfig(), "ratelimit:anon"),
		fallbackEnabled: true,
	}
}

// SetFallbackEnabled controls whether Redis errors fail open (true) or
// closed (false).
func (m *RateLimitMiddleware) SetFallbackEnabled(enabled bool) {
	m.fallbackEnabled = enabled
}

// Handler wraps an HTTP handler with rate limiting.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var key string
		var limiter *RateLimiter
		if claims, ok := GetSessionClaims(r); ok {
			key = fmt.Sprintf("tenant:%d:user:%d", claims.TenantID, claims.UserID)
			limiter = m.memberLimiter
		} else {
			key = "ip:" + clientIP(r)
			limiter = m.anonLimiter
		}

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			if m.fallbackEnabled {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		if !allowed {
			m.rateLimitExceeded(ctx, w, limiter, key)
			return
		}

		if remaining, err := limiter.Remaining(ctx, key); err == nil {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) rateLimitExceeded(ctx context.Context, w http.ResponseWriter, limiter *RateLimiter, key string) {
	retryAfter := limiter.config.WindowDuration.Seconds()
	if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
		retryAfter = ttl.Seconds()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + fmt.Sprintf("%.0f", retryAfter) + `}`))
}

// clientIP extracts the client address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
