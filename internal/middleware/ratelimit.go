package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RealIP returns the client address. Proxy headers (CF-Connecting-IP, then
// the first X-Forwarded-For hop) are only trusted when they parse as an IP.
func RealIP(r *http.Request) string {
	candidates := []string{r.Header.Get("CF-Connecting-IP")}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		candidates = append(candidates, first)
	}
	for _, c := range candidates {
		if addr, err := netip.ParseAddr(strings.TrimSpace(c)); err == nil {
			return addr.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RetryAfter is the whole number of seconds until the window resets,
// never less than one.
func (d Decision) RetryAfter(now time.Time) int {
	return max(int((d.Reset.Sub(now)+time.Second-1)/time.Second), 1)
}

type bucket struct {
	hits  int
	reset time.Time
}

// RateLimiter counts hits per key in fixed windows. Windows are created on
// the first hit and expire as a whole.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]bucket
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]bucket), now: time.Now}
}

// Take records a hit for key and reports whether it fits within limit.
func (rl *RateLimiter) Take(key string, limit int, window time.Duration) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b := rl.buckets[key]
	if !now.Before(b.reset) {
		b = bucket{reset: now.Add(window)}
	}
	b.hits++
	rl.buckets[key] = b

	return Decision{
		Allowed:   b.hits <= limit,
		Remaining: max(limit-b.hits, 0),
		Reset:     b.reset,
	}
}

// Cleanup drops keys whose window has passed and returns how many went.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	n := 0
	for key, b := range rl.buckets {
		if !now.Before(b.reset) {
			delete(rl.buckets, key)
			n++
		}
	}
	return n
}

// ByIP keys on client address, method and path so each endpoint has its
// own budget.
func ByIP(r *http.Request) string {
	return RealIP(r) + " " + r.Method + " " + r.URL.Path
}

// RateLimit rejects requests over limit per window with 429. Every response
// carries X-RateLimit-Limit and X-RateLimit-Remaining.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Take(keyFunc(r), limit, window)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(limiter.now())))
			if wantsJSON(r) {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
		})
	}
}
