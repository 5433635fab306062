package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on claim creation.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// AnonymousUser owns idempotency records of requests without a session.
const AnonymousUser = "anonymous"

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// GetIdempotencyKey returns the key IdempotencyValidator accepted.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a stored result exists for this request's key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// UserIDFrom returns the identity RequireAuth stored, or AnonymousUser.
func UserIDFrom(c *gin.Context) string {
	if uid := userID(c); uid != "" {
		return uid
	}
	return AnonymousUser
}

// IdempotencyOwner returns the owner of the request's idempotency records:
// the signed-in user, or AnonymousUser qualified by the client IP so callers
// without a session cannot replay each other's results.
func IdempotencyOwner(c *gin.Context) string {
	if uid := userID(c); uid != "" {
		return uid
	}
	return AnonymousUser + ":" + c.ClientIP()
}

// IdempotencyOptions bounds accepted keys. MaxLen <= 0 means 200; a nil
// Pattern allows letters, digits and ._~:-
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether an unexpired record exists for
// (userID, scope, key) at now. scope is the route pattern. Errors count as
// a miss.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key of POST, PUT, PATCH and
// DELETE requests and stores it for the handler. A malformed key is a 400.
// When lookup finds a stored record the request is flagged as a replay and
// skips the rate limiter; serving the stored result is up to the handler.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": requestID(c),
				"code":       "bad_request",
				"message":    "Ungültiger Idempotency-Key.",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			hit, err := lookup(c.Request.Context(), IdempotencyOwner(c), c.FullPath(), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if hit {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
