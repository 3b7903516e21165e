package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientLimiter hands out one token bucket per client address
type ClientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*clientEntry
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows each client limit requests per second with the given burst. Buckets
// unused for idle are dropped.
func NewClientLimiter(limit float64, burst int, idle time.Duration) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		limit:    rate.Limit(limit),
		burst:    burst,
		idle:     idle,
		limiters: make(map[string]*clientEntry),
	}
}

// Allow reports whether client may make a request now
func (c *ClientLimiter) Allow(client string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.limiters[client]
	if !ok {
		c.sweep(now)
		entry = &clientEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops idle buckets (caller must hold lock)
func (c *ClientLimiter) sweep(now time.Time) {
	for client, entry := range c.limiters {
		if now.Sub(entry.lastSeen) > c.idle {
			delete(c.limiters, client)
		}
	}
}

// V1RateLimitMiddleware applies a per-client rate limit. Clients are keyed by remote address, so
// it belongs after middleware.RealIP.
func V1RateLimitMiddleware(limiter *ClientLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				client = host
			}

			if !limiter.Allow(client) {
				logger.Warn("Request rate limited",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", client))

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := w.Write([]byte(`{"code":"RATE_LIMIT_EXCEEDED","message":"Rate limit exceeded"}`)); err != nil {
					logger.Error("Failed to write rate limit error response", zap.Error(err))
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
