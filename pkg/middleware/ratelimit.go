package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/taskflow/pkg/httputil"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// LoginRateLimitConfig returns the default limit for login attempts per client IP
func LoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// Limiter decides whether the request identified by key may proceed. When it
// may not, retryAfter says how long until it may.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimiter is an in-process token bucket limiter. Use
// DistributedRateLimiter when several instances must share the limit.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = LoginRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket. Buckets refill continuously at
// RequestsPerWindow per WindowDuration.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	capacity := float64(rl.config.RequestsPerWindow)
	window := rl.config.WindowDuration.Seconds()

	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: capacity, lastUpdate: now}
		rl.buckets[key] = b
	}

	b.tokens = math.Min(capacity, b.tokens+now.Sub(b.lastUpdate).Seconds()*capacity/window)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, nil
	}

	wait := time.Duration((1 - b.tokens) * window / capacity * float64(time.Second))
	return false, wait, nil
}

// Cleanup removes buckets that have been idle long enough to be full again
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup starts a background goroutine to cleanup old buckets
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware limits requests per client IP
type RateLimitMiddleware struct {
	limiter Limiter
	scope   string
	metrics *observability.Metrics
}

// NewRateLimitMiddleware creates a middleware enforcing limiter per client IP.
// scope prefixes the limiter keys so several routes can share one limiter.
func NewRateLimitMiddleware(limiter Limiter, scope string, metrics *observability.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, scope: scope, metrics: metrics}
}

// Handler wraps an HTTP handler with rate limiting. Limiter errors fail open.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.scope + ":" + ClientIP(r)

		allowed, retryAfter, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			m.metrics.RecordDenial("rate_limit:" + m.scope)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retryAfter.Seconds()))))
			httputil.WriteTooManyRequests(w, "Too many requests, try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address without its port
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
