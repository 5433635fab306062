package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions selects the optional headers of SecurityHeaders. Route
// lists hold Gin route patterns ("/api/env", "/files/*filepath").
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days.
	HSTSMaxAge time.Duration
	// NoStore marks every response Cache-Control: no-store, except on
	// Cacheable and Revalidate routes.
	NoStore bool
	// Cacheable routes set their own Cache-Control.
	Cacheable []string
	// Revalidate routes answer with ETags; the browser may keep a private
	// copy but must revalidate it.
	Revalidate []string
	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityHeaders hardens API responses: nosniff, DENY framing and
// no-referrer always, the rest per opt. X-Request-ID is added to the
// exposed headers so browser clients can quote it in bug reports.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	always := http.Header{}
	always.Set("X-Content-Type-Options", "nosniff")
	always.Set("X-Frame-Options", "DENY")
	always.Set("Referrer-Policy", "no-referrer")
	if opt.EnablePolicy {
		always.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
		always.Set("X-Permitted-Cross-Domain-Policies", "none")
	}

	cachePolicy := make(map[string]string, len(opt.Cacheable)+len(opt.Revalidate))
	for _, p := range opt.Cacheable {
		cachePolicy[p] = ""
	}
	for _, p := range opt.Revalidate {
		cachePolicy[p] = "private, no-cache"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range always {
			h[k] = append([]string(nil), v...)
		}

		if opt.NoStore {
			policy, listed := cachePolicy[c.FullPath()]
			switch {
			case !listed:
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
				h.Set("Expires", "0")
			case policy != "":
				h.Set("Cache-Control", policy)
			}
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	if cur == "" {
		h.Set(key, name)
		return
	}
	for _, v := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(v), name) {
			return
		}
	}
	h.Set(key, cur+", "+name)
}

// isHTTPS trusts X-Forwarded-Proto; the API runs behind a proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
