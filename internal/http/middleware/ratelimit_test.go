package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(userIDKey, "u123")
	if got := KeyByUserOrIP()(c); got != "user:u123" {
		t.Fatalf("user key = %q", got)
	}
}

func TestMemoryLimiter_BurstAndReuse(t *testing.T) {
	m := NewMemoryLimiter(0.0001, 0)
	if m.burst != 1 {
		t.Fatalf("burst = %d; want 1", m.burst)
	}
	ctx := context.Background()
	if ok, _ := m.Allow(ctx, "k"); !ok {
		t.Fatalf("first call should pass")
	}
	if ok, _ := m.Allow(ctx, "k"); ok {
		t.Fatalf("second call should be limited")
	}
	if ok, _ := m.Allow(ctx, "other"); !ok {
		t.Fatalf("other key has its own bucket")
	}
	if m.bucket("k") != m.bucket("k") {
		t.Fatalf("bucket not reused")
	}
}

func TestMemoryLimiter_SweepsIdleBuckets(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	m.ttl = time.Nanosecond
	m.bucket("old")
	time.Sleep(time.Millisecond)

	m.lookups = sweepEvery - 1
	m.bucket("new")
	if m.size() != 1 {
		t.Fatalf("tracked keys = %d; want 1 after sweep", m.size())
	}
}

type stubLimiter struct {
	allow bool
	err   error
	calls int
}

func (s *stubLimiter) Allow(context.Context, string) (bool, error) {
	s.calls++
	return s.allow, s.err
}

func serveLimited(l Limiter, pre gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	if pre != nil {
		r.Use(pre)
	}
	r.Use(RateLimit(l, nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestRateLimit_Rejects429(t *testing.T) {
	w := serveLimited(&stubLimiter{allow: false}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d; want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "rate_limited" || body["success"] != false || body["request_id"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestRateLimit_BackendErrorFailsOpen(t *testing.T) {
	w := serveLimited(&stubLimiter{err: errors.New("down")}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
}

func TestRateLimit_ReplayBypasses(t *testing.T) {
	s := &stubLimiter{allow: false}
	w := serveLimited(s, func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	if w.Code != http.StatusOK || s.calls != 0 {
		t.Fatalf("status=%d calls=%d; want 200 and no limiter call", w.Code, s.calls)
	}
}

func TestRedisLimiter_Defaults(t *testing.T) {
	l := NewRedisLimiter(nil, 0, time.Millisecond)
	if l.limit != 1 || l.window != time.Second {
		t.Fatalf("limit=%d window=%v", l.limit, l.window)
	}
}

func TestRedisLimiter_WindowKey(t *testing.T) {
	l := NewRedisLimiter(nil, 10, time.Minute)
	t0 := time.Date(2025, 1, 1, 10, 0, 5, 0, time.UTC)
	a := l.windowKey("user:u1", t0)
	b := l.windowKey("user:u1", t0.Add(50*time.Second))
	c := l.windowKey("user:u1", t0.Add(time.Minute))
	if a != b {
		t.Fatalf("same window produced %q and %q", a, b)
	}
	if a == c {
		t.Fatalf("next window reused key %q", a)
	}
}

func TestRedisLimiter_UnreachableFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLimiter(rdb, 1, time.Second)
	if _, err := l.Allow(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
	if w := serveLimited(l, nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 when redis is down", w.Code)
	}
}
