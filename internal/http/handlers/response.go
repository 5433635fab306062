package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-claims-backend/internal/http/middleware"
	"github.com/tbourn/go-claims-backend/internal/wizard"
)

// ErrorResponse is the error body of the /api/v1 and /auth routes.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"Vorgang nicht gefunden."`
}

// ValidationErrorResponse is the 422 body of a failed wizard step. It
// names the first failing field and the step it belongs to.
type ValidationErrorResponse struct {
	ErrorResponse
	Field string `json:"field" example:"license_plate"`
	Step  int    `json:"step" example:"2"`
}

func envelope(c *gin.Context, code, msg string) ErrorResponse {
	return ErrorResponse{RequestID: middleware.RequestIDFrom(c), Code: code, Message: msg}
}

// fail aborts with the error envelope. For 5xx the message is logged as the
// detail and the client gets msgInternal.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("detail", msg).
			Msg("request failed")
		msg = msgInternal
	}
	c.AbortWithStatusJSON(status, envelope(c, code, msg))
}

// Fail lets the router answer NoRoute and NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func validationFail(c *gin.Context, ve *wizard.ValidationError) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
		ErrorResponse: envelope(c, ErrCodeValidation, ve.Message()),
		Field:         ve.Field.Name(),
		Step:          ve.Step,
	})
}

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
