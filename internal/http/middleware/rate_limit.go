package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"github.com/diagnosis/gatepass/internal/http/response"
	"github.com/diagnosis/gatepass/pkg/logger"
)

// Counter increments a fixed-window counter and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests int                            // Max requests per window
	Window   time.Duration                  // Time window duration
	Prefix   string                         // Namespace for counter keys
	KeyFunc  func(r *http.Request) []string // Function to generate rate limit keys
	SkipFunc func(r *http.Request) bool     // Function to skip rate limiting
}

type RateLimiter struct {
	counter Counter
	config  RateLimitConfig
}

func NewRateLimiter(counter Counter, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKeyFunc
	}
	return &RateLimiter{counter: counter, config: config}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				if !rl.Allow(r.Context(), key) {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.config.Window.Seconds())))
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Allow reports whether key is still within its window. Counter failures
// allow the request (fail open).
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	sum := sha256.Sum256([]byte(key))
	hashedKey := fmt.Sprintf("%s:%x", rl.config.Prefix, sum)

	count, err := rl.counter.Incr(ctx, hashedKey, rl.config.Window)
	if err != nil {
		logger.WarnContext(ctx, "Rate limit counter unavailable, allowing request", "error", err)
		return true
	}
	return count <= int64(rl.config.Requests)
}

// ClientIPKeyFunc limits per client address.
func ClientIPKeyFunc(r *http.Request) []string {
	if ip := ClientIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

var trustedProxies atomic.Pointer[[]netip.Prefix]

func init() {
	if err := SetTrustedProxies([]string{"127.0.0.0/8", "::1/128"}); err != nil {
		panic(err)
	}
}

// SetTrustedProxies replaces the peers whose X-Forwarded-For and X-Real-IP
// headers ClientIP believes. An empty list trusts nobody.
func SetTrustedProxies(cidrs []string) error {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return fmt.Errorf("invalid trusted proxy %q: %w", c, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	trustedProxies.Store(&prefixes)
	return nil
}

func trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range *trustedProxies.Load() {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the peer address. Forwarding headers are only honoured
// when the peer is a trusted proxy such as the gateway.
func ClientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil || !trusted(addr) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}
