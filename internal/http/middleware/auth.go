package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-claims-backend/internal/auth"
)

// SessionCookie is the cookie consulted when no Authorization header is sent.
const SessionCookie = "claims_session"

const ctxKeyIdentity = "identity"

// SessionResolver validates a bearer token.
type SessionResolver interface {
	Session(ctx context.Context, token string) (auth.Identity, error)
}

// RequireAuth rejects requests without a valid session with 401 and, on
// success, stores the identity id under "userID" (read by the rate limiter
// and idempotency lookups) and the full identity for IdentityFrom.
func RequireAuth(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			unauthorized(c, "missing session token")
			return
		}
		id, err := resolver.Session(c.Request.Context(), token)
		if err != nil {
			msg := "invalid session"
			if errors.Is(err, auth.ErrSessionExpired) {
				msg = "session expired"
			}
			unauthorized(c, msg)
			return
		}
		c.Set(userIDKey, id.ID)
		c.Set(ctxKeyIdentity, id)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// BearerToken extracts the session token from the Authorization header or
// the session cookie.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if v, err := c.Cookie(SessionCookie); err == nil {
		return v
	}
	return ""
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="claims"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": requestID(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}
