package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestSlidingLimiterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewSlidingLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		now = now.Add(200 * time.Millisecond)
		if !l.Allow("k") {
			t.Fatalf("call %d within limit must be allowed", i+1)
		}
	}
	if l.Allow("k") {
		t.Fatalf("6th call within the window must be rejected")
	}

	// Other keys are unaffected.
	if !l.Allow("other") {
		t.Fatalf("distinct key must not share the quota")
	}

	// Past the window the quota frees up again.
	now = now.Add(61 * time.Second)
	if !l.Allow("k") {
		t.Fatalf("call after the window must be allowed")
	}
}

func TestSlidingLimiterRetryAfter(t *testing.T) {
	l := NewSlidingLimiter(1, time.Minute)
	if got := l.RetryAfterSeconds(); got != 60 {
		t.Fatalf("expected retry-after 60, got %d", got)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	if got := ClientKey(req); got != "10.0.0.9" {
		t.Fatalf("expected peer host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := ClientKey(req); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded entry, got %q", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewSlidingLimiter(1, time.Minute)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(l)(next)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/check-answer", nil)
	req.RemoteAddr = "10.0.0.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first call must pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call must be limited, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
}

func TestRequireAdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generate hash: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAdminToken(string(hash))(next)

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/questions/upload", nil)
		req.Header.Set(adminTokenHeader, "s3cret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/questions/upload", nil)
		req.Header.Set(adminTokenHeader, "nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/questions/upload", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		unconfigured := RequireAdminToken("")(next)
		req := httptest.NewRequest(http.MethodPost, "/api/questions/upload", nil)
		rec := httptest.NewRecorder()
		unconfigured.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}
