package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gerrors "github.com/openchami/tokengate/pkg/errors"
	"github.com/openchami/tokengate/pkg/logging"
	"github.com/openchami/tokengate/pkg/metrics"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int `json:"requests_per_window"`
	// Window is the time window for rate limiting
	Window time.Duration `json:"window"`
	// Burst allows for temporary bursts above the rate limit
	Burst int `json:"burst"`
}

// DefaultIssueLimit applies to the token issuance endpoints.
var DefaultIssueLimit = RateLimitConfig{
	RequestsPerWindow: 60,
	Window:            time.Minute,
	Burst:             10,
}

// Enabled reports whether the config describes a usable limit.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0 && c.Burst > 0
}

// KeyExtractor groups requests for rate limiting
type KeyExtractor func(*http.Request) string

// RemoteAddrKeyExtractor keys on the connection's remote address and ignores forwarding headers.
func RemoteAddrKeyExtractor(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// IPKeyExtractor extracts the client IP address, honouring X-Forwarded-For and X-Real-IP.
// Clients can set those headers freely, so use it only behind a proxy that overwrites them.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return RemoteAddrKeyExtractor(r)
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	limiters    sync.Map // map[string]*rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	rl.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket has refilled, at most every five minutes.
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit limits requests per key, answering 429 with Retry-After when a key is over its limit.
// A disabled config passes every request through.
func RateLimit(config RateLimitConfig, keyExtractor KeyExtractor, recorder metrics.Recorder) func(http.Handler) http.Handler {
	if !config.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	if keyExtractor == nil {
		keyExtractor = RemoteAddrKeyExtractor
	}
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}

	rl := &rateLimiter{
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       config.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getLimiter(key)
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			reservation := limiter.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()
			retryAfter := max(int(delay.Seconds()), 1)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", config.Window.String())

			recorder.RecordRateLimited(r.URL.Path)
			logger := logging.LoggerFromContextWithComponent(r.Context(), "ratelimit")
			logger.Warn().
				Str("key", key).
				Str("path", r.URL.Path).
				Int("retry_after", retryAfter).
				Msg("rate limit exceeded")

			gerrors.WriteStatus(w, r, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		})
	}
}
