package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func securedResponse(opt SecurityOptions, prep func(*http.Request), pre gin.HandlerFunc) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := securedResponse(SecurityOptions{}, nil, nil)
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %v", h)
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security", "Access-Control-Expose-Headers"} {
		if h.Get(k) != "" {
			t.Fatalf("%s set without being enabled", k)
		}
	}
}

func TestSecurityHeaders_Optional(t *testing.T) {
	h := securedResponse(SecurityOptions{NoStore: true, EnablePolicy: true}, nil, nil)
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers: %v", h)
	}
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers: %v", h)
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true}

	if h := securedResponse(opt, nil, nil); h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS sent over plain HTTP")
	}

	viaProxy := securedResponse(opt, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, nil)
	if got := viaProxy.Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("HSTS via proxy = %q", got)
	}

	custom := securedResponse(SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour},
		func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, nil)
	if got := custom.Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS over TLS = %q", got)
	}
}

func TestSecurityHeaders_ExposesRequestID(t *testing.T) {
	h := securedResponse(SecurityOptions{}, nil, RequestID())
	if h.Get("Access-Control-Expose-Headers") != requestIDHeader {
		t.Fatalf("expose = %q", h.Get("Access-Control-Expose-Headers"))
	}

	h = securedResponse(SecurityOptions{}, nil, func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "ETag")
		c.Header(requestIDHeader, "rid")
		c.Next()
	})
	if h.Get("Access-Control-Expose-Headers") != "ETag, X-Request-ID" {
		t.Fatalf("expose append = %q", h.Get("Access-Control-Expose-Headers"))
	}

	h = securedResponse(SecurityOptions{}, nil, func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "x-request-id")
		c.Header(requestIDHeader, "rid")
		c.Next()
	})
	if h.Get("Access-Control-Expose-Headers") != "x-request-id" {
		t.Fatalf("expose duplicated = %q", h.Get("Access-Control-Expose-Headers"))
	}
}
