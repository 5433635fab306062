package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-claims-backend/internal/http/middleware"
)

const envMethods = "GET, OPTIONS"

// EnvResponse is the public client configuration.
type EnvResponse struct {
	SupabaseURL     string `json:"supabaseUrl" example:"https://xyz.supabase.co"`
	SupabaseAnonKey string `json:"supabaseAnonKey" example:"eyJhbGciOi..."`
}

// PlainError is the {error[, details]} body of the endpoints consumed by
// browser forms outside the wizard.
type PlainError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Env godoc
// @ID          getEnv
// @Summary     Public client configuration
// @Description Returns the backend URL and anonymous key for browser clients. Open to any origin; cacheable for five minutes.
// @Tags        Env
// @Produce     json
// @Success     200  {object}  handlers.EnvResponse
// @Failure     405  {object}  handlers.PlainError  "Method not allowed"
// @Failure     500  {object}  handlers.PlainError  "Not configured"
// @Router      /api/env [get]
func (h *Handlers) Env(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", envMethods)
	c.Header("Access-Control-Allow-Headers", "Content-Type")

	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusOK)
		return
	case http.MethodGet, http.MethodHead:
	default:
		c.Header("Allow", envMethods)
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, PlainError{Error: "Method not allowed"})
		return
	}

	if !h.backend.Configured() {
		middleware.LoggerFrom(c).Error().Msg("SUPABASE_URL or SUPABASE_ANON_KEY not configured")
		c.AbortWithStatusJSON(http.StatusInternalServerError, PlainError{Error: "Server configuration error"})
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	ok(c, http.StatusOK, EnvResponse{
		SupabaseURL:     h.backend.PublicURL,
		SupabaseAnonKey: h.backend.AnonKey,
	})
}
