// Auth HTTP handlers.
//
// Passwordless sign-in: a mailed one-time link lands on /auth/verify, which
// exchanges it for a session token. The token travels as a bearer header or
// as the session cookie set here.
package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-claims-backend/internal/auth"
	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/http/middleware"
	"github.com/tbourn/go-claims-backend/internal/services"
)

// MagicLinkRequest asks for a sign-in mail.
type MagicLinkRequest struct {
	Email string `json:"email" example:"anna@example.com"`
	// RedirectTo is where the browser lands after verification. Origins that
	// are not allowed fall back to the configured default.
	RedirectTo  string  `json:"redirect_to,omitempty" example:"https://claims.example.com/app"`
	DisplayName *string `json:"display_name,omitempty" example:"Anna Schmidt"`
}

// MagicLinkResponse acknowledges a sign-in request.
type MagicLinkResponse struct {
	OK bool `json:"ok" example:"true"`
}

// SessionResponse describes the signed-in user.
type SessionResponse struct {
	User    auth.Identity   `json:"user"`
	Profile *domain.Profile `json:"profile"`
}

// RequestMagicLink godoc
// @ID          requestMagicLink
// @Summary     Request a sign-in link
// @Description Mails a one-time sign-in link to the address.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.MagicLinkRequest  true  "Sign-in request"
// @Success     202  {object}  handlers.MagicLinkResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid email"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/magic-link [post]
func (h *Handlers) RequestMagicLink(c *gin.Context) {
	var req MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	err := h.auth.RequestLink(c.Request.Context(), req.Email, req.RedirectTo, req.DisplayName)
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, ErrCodeInvalidEmail, "Bitte geben Sie eine gültige E-Mail-Adresse ein.")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeLinkFailed, err.Error())
		return
	}
	ok(c, http.StatusAccepted, MagicLinkResponse{OK: true})
}

// VerifyMagicLink godoc
// @ID          verifyMagicLink
// @Summary     Verify a sign-in link
// @Description Consumes the one-time token and sets the session cookie. Browsers are redirected with the session in the URL fragment; clients accepting JSON receive the session in the body.
// @Tags        Auth
// @Produce     json
// @Param       token  query  string  true  "One-time sign-in token"
// @Success     200  {object}  auth.Session
// @Success     303  {string}  string  "Redirect to the application"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid or expired link"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/verify [get]
func (h *Handlers) VerifyMagicLink(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token required")
		return
	}
	sess, err := h.auth.Verify(c.Request.Context(), token)
	switch {
	case errors.Is(err, auth.ErrInvalidLink):
		fail(c, http.StatusBadRequest, ErrCodeInvalidLink, "Der Anmeldelink ist ungültig oder abgelaufen.")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	h.setSessionCookie(c, sess.Token, int(h.sessionTTL.Seconds()))

	if sess.RedirectTo == "" || c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		ok(c, http.StatusOK, sess)
		return
	}
	c.Redirect(http.StatusSeeOther, withSessionFragment(sess))
}

// GetSession godoc
// @ID          getSession
// @Summary     Current session
// @Description Returns the signed-in identity and its profile (null when none is stored yet).
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.SessionResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	id, found := middleware.IdentityFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no session")
		return
	}
	resp := SessionResponse{User: id}
	p, err := h.profiles.Get(c.Request.Context(), id.ID)
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	default:
		resp.Profile = p
	}
	ok(c, http.StatusOK, resp)
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Clears the session cookie. Bearer tokens are stateless; clients discard them.
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if id, found := middleware.IdentityFrom(c); found {
		if err := h.auth.SignOut(c.Request.Context(), id); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("sign-out listener failed")
		}
	}
	h.setSessionCookie(c, "", -1)
	noContent(c)
}

func (h *Handlers) setSessionCookie(c *gin.Context, value string, maxAge int) {
	secure := c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, value, maxAge, "/", "", secure, true)
}

// withSessionFragment appends the session to the redirect target's fragment
// so it never reaches server logs or Referer headers.
func withSessionFragment(sess *auth.Session) string {
	target := sess.RedirectTo
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	frag := url.Values{}
	frag.Set("access_token", sess.Token)
	frag.Set("token_type", "bearer")
	frag.Set("expires_at", strconv.FormatInt(sess.ExpiresAt.Unix(), 10))
	return target + "#" + frag.Encode()
}
