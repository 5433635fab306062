// Claim HTTP handlers.
//
// This file exposes the claim endpoints outside the wizard:
//   - POST /api/claims/create   (standalone creation, idempotent with a key)
//   - GET  /claims              (dashboard list, paginated, ETag support)
//   - GET  /claims/{id}         (single claim)
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/http/middleware"
	"github.com/tbourn/go-claims-backend/internal/services"
)

//
// DTOs
//

// CreateClaimRequest is the JSON payload of the standalone creation endpoint.
type CreateClaimRequest struct {
	DateOfLoss  string `json:"date_of_loss" example:"2024-03-01T10:00"`
	ClaimType   string `json:"claim_type" example:"collision"`
	Description string `json:"description" example:"Auffahrunfall an der Ampel"`
	// Location is an address string or an object {"address": "..."}.
	Location           json.RawMessage `json:"location,omitempty" swaggertype:"string" example:"Hauptstraße 1, Hamburg"`
	VehicleID          string          `json:"vehicle_id,omitempty"`
	ThirdPartyInvolved any             `json:"third_party_involved,omitempty" swaggertype:"boolean"`
}

// CreateClaimResponse reports the inserted claim.
type CreateClaimResponse struct {
	OK          bool   `json:"ok" example:"true"`
	ClaimID     string `json:"claim_id" example:"9b2f0c1e-7a1d-4b8e-8f0a-1c2d3e4f5a6b"`
	ClaimNumber string `json:"claim_number" example:"CL-20240301100000-7QX2"`
}

// ListClaimsResponse wraps a page of dashboard rows and pagination information.
type ListClaimsResponse struct {
	Claims     []services.ClaimRow `json:"claims"`
	Pagination Pagination          `json:"pagination"`
}

//
// Handlers
//

// CreateClaim godoc
// @ID          createClaim
// @Summary     Create a submitted claim
// @Description Inserts a claim with status submitted for external forms. Supports idempotency via the Idempotency-Key header (same key → same claim).
// @Tags        Claims
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.CreateClaimRequest  true  "Claim payload"
// @Success     200  {object}  handlers.CreateClaimResponse
// @Header      200  {string}  Idempotency-Replayed  "true when the response is a replay"
// @Failure     400  {object}  handlers.PlainError  "Missing or malformed fields"
// @Failure     405  {object}  handlers.PlainError  "Method Not Allowed"
// @Failure     500  {object}  handlers.PlainError  "Server error"
// @Router      /api/claims/create [post]
func (h *Handlers) CreateClaim(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, PlainError{Error: "Method Not Allowed"})
		return
	}
	ctx := c.Request.Context()
	uid, scope := middleware.IdempotencyOwner(c), c.FullPath()

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idem != nil {
		if rec, err := h.idem.Get(ctx, uid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if cl, err := h.claims.Created(ctx, rec.ResourceID); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, CreateClaimResponse{OK: true, ClaimID: cl.ID, ClaimNumber: cl.ClaimNumber})
				return
			}
		}
	}

	var req CreateClaimRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, PlainError{Error: "invalid JSON body"})
		return
	}
	loc, err := parseLocation(req.Location)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, PlainError{Error: "location must be a string or an object with address"})
		return
	}

	cl, err := h.claims.Create(ctx, services.CreateClaimInput{
		DateOfLoss:         req.DateOfLoss,
		ClaimType:          req.ClaimType,
		Description:        req.Description,
		Location:           loc,
		VehicleID:          req.VehicleID,
		ThirdPartyInvolved: truthy(req.ThirdPartyInvolved),
	})
	switch {
	case errors.Is(err, services.ErrMissingFields), errors.Is(err, services.ErrInvalidDate):
		c.AbortWithStatusJSON(http.StatusBadRequest, PlainError{Error: err.Error()})
		return
	case err != nil:
		middleware.LoggerFrom(c).Error().Err(err).Msg("create claim failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, PlainError{Error: "Server error", Details: err.Error()})
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && h.idem != nil {
		if err := h.idem.Create(ctx, uid, scope, idemKey, cl.ID, http.StatusOK, h.idemTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("claim_id", cl.ID).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusOK, CreateClaimResponse{OK: true, ClaimID: cl.ID, ClaimNumber: cl.ClaimNumber})
}

// ListClaims godoc
// @ID          listClaims
// @Summary     List claims (paginated)
// @Description Returns a page of the user's claims, newest first, with the linked vehicle. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Claims
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListClaimsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /claims [get]
func (h *Handlers) ListClaims(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.claims.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"claims:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.claims.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListClaimsResponse{
		Claims:     items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetClaim godoc
// @ID          getClaim
// @Summary     Get a claim
// @Description Returns one claim of the current user with its linked vehicle.
// @Tags        Claims
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Claim ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Claim
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Claim not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /claims/{id} [get]
func (h *Handlers) GetClaim(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "claim id must be a UUID")
		return
	}
	cl, err := h.claims.Get(c.Request.Context(), userID(c), id)
	switch {
	case errors.Is(err, services.ErrClaimNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "claim not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, cl)
}

//
// Helpers
//

// parseLocation accepts null, an address string or {"address": "..."}.
func parseLocation(raw json.RawMessage) (*domain.Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return nil, nil
		}
		return &domain.Location{Address: s}, nil
	}
	var l domain.Location
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// truthy mirrors loose boolean form input: false, 0, "", "false", "0",
// "nein" and null are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "0", "nein", "no", "off":
			return false
		}
		return true
	}
	return true
}
