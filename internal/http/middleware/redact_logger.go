package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions adds header names (case-insensitive) whose values are
// replaced by "[REDACTED]" on top of Authorization, Cookie and Set-Cookie.
type RedactOptions struct {
	MaskHeaders []string
}

// maxQueryLogLength caps the scrubbed query string in the access line.
const maxQueryLogLength = 2048

var (
	tokenRE = regexp.MustCompile(`(?i)\b((?:access_)?token)=[^&\s]*`)
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// German plates, raw or URL-encoded ("M-AB 1234", "M-AB%201234").
	plateRE = regexp.MustCompile(`\b[A-Z]{1,3}-[A-Z]{1,2}(?:\s|%20|\+)?\d{1,4}\b`)
	// Digits only, so UUID hex runs are never taken for a number.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Route parameters that identify a domain object, keyed by the route prefix
// they follow. The ids are logged in the clear; they are opaque UUIDs the
// owner already holds.
var routeIDFields = []struct{ prefix, field string }{
	{"/wizard/:id", "wizard_session_id"},
	{"/claims/:id", "claim_id"},
}

// scrub masks sign-in tokens, then UUIDs, emails, plates and phone numbers.
// Phone runs last; it is the loosest pattern.
func scrub(s string) string {
	if s == "" {
		return s
	}
	out := tokenRE.ReplaceAllString(s, "$1=[REDACTED]")
	out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	out = plateRE.ReplaceAllString(out, "[REDACTED:plate]")
	out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
	return out
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// RedactingLogger writes one "http_request" line per request with the query
// and headers scrubbed; bodies are never logged. Before the handlers run it
// installs a request-scoped logger (request_id, method, route and any wizard
// session or claim id) in the Gin context and in the request context, so
// LoggerFrom and zerolog.Ctx both return it. Level follows the outcome:
// error for 5xx or collected Gin errors, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		lc := log.With().
			Str("request_id", requestID(c)).
			Str("method", c.Request.Method).
			Str("path", route)
		for _, rf := range routeIDFields {
			if strings.Contains(route, rf.prefix) {
				lc = lc.Str(rf.field, c.Param("id"))
			}
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		// RequireAuth sits on route groups and runs after this middleware.
		done := l
		if uid := userID(c); uid != "" {
			done = l.With().Str("user_id", uid).Logger()
		}

		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = done.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = done.Error()
		case status >= 400:
			ev = done.Warn()
		default:
			ev = done.Info()
		}
		ev.
			Str("query", truncate(scrub(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
