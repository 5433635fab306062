// Package middleware holds the Gin middleware of the claims API: correlation
// ids, the redacting access log, panic recovery, metrics, rate limiting,
// idempotency keys, security headers and bearer-session auth.
//
// The expected order on the engine is RequestID, RedactingLogger, Recovery.
// RedactingLogger installs the request-scoped logger that LoggerFrom and
// zerolog.Ctx hand out further down the chain, so a panic caught by Recovery
// is logged with the same request_id, route and user as the access line.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
	userIDKey       = "userID"
)

// Client supplied ids end up in every log line of the request.
var requestIDRE = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// RequestID reuses a well-formed X-Request-ID from the client or mints a
// UUIDv4. The id is stored under "requestID" and echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !requestIDRE.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// requestID resolves the correlation id: context first, then the response
// header, then whatever the client sent.
func requestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if v := c.Writer.Header().Get(requestIDHeader); v != "" {
		return v
	}
	return c.GetHeader(requestIDHeader)
}

// RequestIDFrom returns the correlation id of the request for error bodies.
func RequestIDFrom(c *gin.Context) string { return requestID(c) }

// userID returns the id RequireAuth stored, or "".
func userID(c *gin.Context) string {
	if s, ok := c.Get(userIDKey); ok {
		if v, ok := s.(string); ok {
			return v
		}
	}
	return ""
}

// Recovery turns a panic into a JSON 500 carrying the request id. When the
// handler already wrote a response only the status is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := requestID(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger RedactingLogger scoped to this request, or
// the global logger when none was installed. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}
