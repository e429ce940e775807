// This file implements RedactingLogger, an access logger for deployments that
// must keep personal data out of logs. It never logs bodies; it masks the
// session headers outright and scrubs emails, UUIDs and phone numbers from
// the query string and the remaining header values.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra headers replaced by "[REDACTED]" in addition to
	// Authorization, Cookie and Set-Cookie. Case-insensitive.
	MaskHeaders []string
	// MaskQuery are query parameters whose values are replaced wholesale,
	// e.g. "token". Case-sensitive, as in URLs.
	MaskQuery []string
}

const redacted = "[REDACTED]"

// UUIDs go first so the looser phone pattern cannot eat their digit groups.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// scrub removes identifiers from s.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// redactor holds the compiled masking rules.
type redactor struct {
	headers map[string]struct{}
	query   map[string]struct{}
}

func newRedactor(opts RedactOptions) redactor {
	r := redactor{
		headers: map[string]struct{}{"authorization": {}, "cookie": {}, "set-cookie": {}},
		query:   map[string]struct{}{},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.headers[h] = struct{}{}
		}
	}
	for _, q := range opts.MaskQuery {
		if q = strings.TrimSpace(q); q != "" {
			r.query[q] = struct{}{}
		}
	}
	return r
}

func (r redactor) headerMap(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.headers[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = scrub(strings.Join(vv, ", "))
	}
	return out
}

// rawQuery masks listed parameters and scrubs the rest, keeping the
// original order and encoding.
func (r redactor) rawQuery(raw string) string {
	if raw == "" {
		return raw
	}
	parts := strings.Split(raw, "&")
	for i, p := range parts {
		k, _, _ := strings.Cut(p, "=")
		if name, err := url.QueryUnescape(k); err == nil {
			if _, ok := r.query[name]; ok {
				parts[i] = k + "=" + redacted
				continue
			}
		}
		parts[i] = scrub(p)
	}
	return strings.Join(parts, "&")
}

// RedactingLogger logs one "http_request" line per request with scrubbed
// metadata, at info, warn (4xx) or error (5xx). Like Logger it publishes a
// request-scoped logger so handlers and services share the request id.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	r := newRedactor(opts)

	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		query := r.rawQuery(c.Request.URL.RawQuery)
		headers := r.headerMap(c.Request.Header)

		rid, _ := c.Get(requestIDKey)
		l := LoggerFrom(c).With().Str("request_id", asString(rid)).Logger()
		attachLogger(c, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}
		uid, _ := c.Get(userIDKey)
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Str("user_id", asString(uid)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
