package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogger points the global logger at a buffer for the test.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// logLines decodes one JSON object per line.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("bad log line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/users/friends", func(c *gin.Context) {
		v, _ := c.Get(requestIDKey)
		seen = asString(v)
		c.Status(http.StatusNoContent)
	})

	cases := map[string]struct{ in, want string }{
		"generated":       {"", ""},
		"canonical":       {"X-Request-ID", "Z-REQ-123"},
		"lowercase alias": {"x-request-id", "abc-123"},
	}
	for name, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/users/friends", nil)
		if tc.in != "" {
			req.Header.Set(tc.in, tc.want)
		}
		r.ServeHTTP(w, req)

		got := w.Header().Get(requestIDHeader)
		if got == "" || got != seen {
			t.Fatalf("%s: header=%q context=%q", name, got, seen)
		}
		if tc.want != "" && got != tc.want {
			t.Fatalf("%s: request id = %q; want %q", name, got, tc.want)
		}
	}
}

func TestLogger_LevelsByOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/users/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.PUT("/users/friend-request/:id/accept", func(c *gin.Context) {
		_ = c.Error(errors.New("already accepted"))
		c.Status(http.StatusBadRequest)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	for _, rq := range []struct{ method, path string }{
		{http.MethodGet, "/users/u1?token=abc"},
		{http.MethodGet, "/missing"},
		{http.MethodPut, "/users/friend-request/r1/accept"},
		{http.MethodGet, "/boom"},
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(rq.method, rq.path, nil))
	}

	lines := logLines(t, buf)
	if len(lines) != 4 {
		t.Fatalf("want 4 access lines, got %d:\n%s", len(lines), buf.String())
	}
	want := []struct{ level, path string }{
		{"info", "/users/:id"},
		{"warn", "/missing"},
		{"error", "/users/friend-request/:id/accept"},
		{"error", "/boom"},
	}
	for i, w := range want {
		if lines[i]["level"] != w.level || lines[i]["path"] != w.path {
			t.Fatalf("line %d = %v; want level=%s path=%s", i, lines[i], w.level, w.path)
		}
		if lines[i]["request_id"] == "" || lines[i]["latency"] == nil {
			t.Fatalf("line %d missing request fields: %v", i, lines[i])
		}
	}
	if lines[0]["query"] != "token=abc" {
		t.Fatalf("query = %v", lines[0]["query"])
	}
	if lines[2]["errors"] == nil {
		t.Fatalf("gin errors not logged: %v", lines[2])
	}
}

func TestLogger_ContextLoggerCarriesRequestAndUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/auth/me", func(c *gin.Context) {
		c.Set(userIDKey, "u-42")
		zerolog.Ctx(c.Request.Context()).Info().Msg("from-service")
		LoggerFrom(c).Info().Msg("from-handler")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set(requestIDHeader, "rid-ctx")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("want 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	for _, ln := range lines[:2] {
		if ln["request_id"] != "rid-ctx" || ln["path"] != "/auth/me" {
			t.Fatalf("scoped logger missing request fields: %v", ln)
		}
	}
	if lines[2]["user_id"] != "u-42" || lines[2]["status"] != float64(http.StatusOK) {
		t.Fatalf("access line = %v", lines[2])
	}
}

func TestLoggerFrom_FallsBackToGlobal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	LoggerFrom(c).Info().Msg("plain")

	lines := logLines(t, buf)
	if len(lines) != 1 || lines[0]["message"] != "plain" || lines[0]["request_id"] != nil {
		t.Fatalf("fallback log = %v", lines)
	}

	// A foreign value under the key is ignored.
	c.Set(loggerKey, "not a logger")
	if LoggerFrom(c) == nil {
		t.Fatal("nil logger")
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.POST("/users/friend-request/:id", func(c *gin.Context) { panic("nil recipient") })
	r.GET("/users/friends", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users/friend-request/u2", nil)
	req.Header.Set(requestIDHeader, "rid-panic")
	r.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if w.Code != http.StatusInternalServerError || body["code"] != "internal_error" || body["success"] != false || body["request_id"] != "rid-panic" {
		t.Fatalf("panic response = %d %v", w.Code, body)
	}
	if !strings.Contains(buf.String(), `"panic":"nil recipient"`) || !strings.Contains(buf.String(), `"stack"`) {
		t.Fatalf("panic not logged:\n%s", buf.String())
	}

	// After a write the envelope cannot be sent.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/friends", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("envelope written after body: %q", w.Body.String())
	}
}

func TestHelpers(t *testing.T) {
	if asString("x") != "x" || asString(123) != "" || asString(nil) != "" {
		t.Fatal("asString")
	}
	for _, tc := range []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
	} {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncate(%q,%d) = %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
