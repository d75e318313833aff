package app

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"awsquiz/internal/app/apiresp"

	"golang.org/x/crypto/bcrypt"
)

const adminTokenHeader = "X-Admin-Token"

// SlidingLimiter bounds calls per key within a trailing window. Each key
// keeps the timestamps of its accepted calls; stale ones are dropped on
// every check.
type SlidingLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	calls  map[string][]time.Time
	now    func() time.Time
}

func NewSlidingLimiter(max int, window time.Duration) *SlidingLimiter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingLimiter{
		max:    max,
		window: window,
		calls:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether another call for key fits in the current window,
// recording it when it does.
func (l *SlidingLimiter) Allow(key string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.calls[key][:0]
	for _, t := range l.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.calls[key] = kept
		return false
	}
	l.calls[key] = append(kept, now)
	return true
}

// RetryAfterSeconds is the hint returned with a rejection: the full
// window length.
func (l *SlidingLimiter) RetryAfterSeconds() int {
	return int(l.window / time.Second)
}

// ClientKey identifies the caller for rate limiting: the first entry of
// X-Forwarded-For when present, otherwise the peer address.
func ClientKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// RateLimitMiddleware gates AI-cost-incurring endpoints. Runs before any
// handler work so rejected calls are cheap.
func RateLimitMiddleware(l *SlidingLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientKey(r)) {
				apiresp.WriteRateLimited(w, l.RetryAfterSeconds())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminToken guards admin endpoints. The configured value is a
// bcrypt hash of the token, so the secret itself never sits in config.
func RequireAdminToken(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(tokenHash) == "" {
				apiresp.WriteError(w, http.StatusServiceUnavailable, "admin access not configured")
				return
			}
			token := strings.TrimSpace(r.Header.Get(adminTokenHeader))
			if token == "" {
				apiresp.WriteError(w, http.StatusUnauthorized, "admin token required")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				apiresp.WriteError(w, http.StatusUnauthorized, "admin token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
