// Wizard HTTP handlers.
//
// A wizard session is one user's claim in progress. Every mutating call runs
// under the session's lock and answers with the updated View, so clients
// never have to merge partial state.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/http/middleware"
	"github.com/tbourn/go-claims-backend/internal/wizard"
)

// multipartMemory is kept in memory per upload request; larger parts spill
// to temporary files.
const multipartMemory = 8 << 20

//
// DTOs
//

// SetFieldsRequest maps wire field names to values. Values may be strings,
// booleans, integers or null (clears the field).
type SetFieldsRequest map[string]any

// PartyRequest stages or replaces an involved party.
type PartyRequest struct {
	ID               string `json:"id,omitempty" example:"p-1"`
	Role             string `json:"role" enums:"third_party,witness,police" example:"witness"`
	Name             string `json:"name" example:"Max Muster"`
	Phone            string `json:"phone,omitempty" example:"0401234"`
	Email            string `json:"email,omitempty"`
	Address          string `json:"address,omitempty"`
	InsuranceCompany string `json:"insurance_company,omitempty" example:"Allianz"`
}

func (p PartyRequest) party() wizard.Party {
	return wizard.Party{
		ID:               p.ID,
		Role:             domain.PartyRole(p.Role),
		Name:             p.Name,
		Phone:            p.Phone,
		Email:            p.Email,
		Address:          p.Address,
		InsuranceCompany: p.InsuranceCompany,
	}
}

// UploadResult is the outcome of one uploaded file.
type UploadResult struct {
	Name    string           `json:"name"`
	File    *wizard.FileDesc `json:"file,omitempty"`
	Code    string           `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
}

// UploadResponse lists per-file outcomes and the session afterwards.
type UploadResponse struct {
	Files   []UploadResult `json:"files"`
	Session wizard.View    `json:"session"`
}

// SubmitResponse identifies the submitted claim; Session is the fresh
// wizard the session was reset to.
type SubmitResponse struct {
	ClaimID     string      `json:"claim_id"`
	ClaimNumber string      `json:"claim_number"`
	Session     wizard.View `json:"session"`
}

//
// Helpers
//

// wizardCtx attaches the request logger so wizard failures are logged with
// the request id.
func wizardCtx(c *gin.Context) context.Context {
	return middleware.LoggerFrom(c).WithContext(c.Request.Context())
}

// mutate runs fn under the session lock and answers with the View taken
// right after it.
func (h *Handlers) mutate(c *gin.Context, status int, action, code string, fn func(*wizard.Session) error) {
	var view wizard.View
	err := h.wiz.Do(wizardCtx(c), c.Param("id"), userID(c), action, func(s *wizard.Session) error {
		if err := fn(s); err != nil {
			return err
		}
		view = s.View()
		return nil
	})
	if err != nil {
		wizardFail(c, err, code)
		return
	}
	ok(c, status, view)
}

// wizardStatus maps a wizard error to a status, code and message.
func wizardStatus(err error, fallback string) (int, string, string) {
	switch {
	case errors.Is(err, wizard.ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Wizard-Sitzung nicht gefunden."
	case errors.Is(err, wizard.ErrPartyNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Beteiligte Person nicht gefunden."
	case errors.Is(err, wizard.ErrFileNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Datei nicht gefunden."
	case errors.Is(err, wizard.ErrDuplicateParty):
		return http.StatusConflict, ErrCodeConflict, err.Error()
	case errors.Is(err, wizard.ErrUnknownField), errors.Is(err, wizard.ErrInvalidRole):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, wizard.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "Die Datei ist zu groß (max. 10 MB)."
	case errors.Is(err, wizard.ErrFileType):
		return http.StatusUnsupportedMediaType, ErrCodeFileType, "Nur Bilder und PDF-Dateien sind erlaubt."
	}
	return http.StatusInternalServerError, fallback, err.Error()
}

// wizardFail writes the error envelope for err. Validation errors also name
// the field and step.
func wizardFail(c *gin.Context, err error, fallback string) {
	var ve *wizard.ValidationError
	if errors.As(err, &ve) {
		validationFail(c, ve)
		return
	}
	status, code, msg := wizardStatus(err, fallback)
	fail(c, status, code, msg)
}

// fieldString converts a JSON value to the raw form input the wizard parses.
func fieldString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return "", errors.New("numbers must be integers")
		}
		return strconv.FormatInt(int64(t), 10), nil
	}
	return "", errors.New("unsupported value type")
}

//
// Handlers
//

// StartWizard godoc
// @ID          startWizard
// @Summary     Start a claim wizard
// @Description Opens a fresh wizard session at step 1 for the current user.
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Success     201  {object}  wizard.View
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /wizard [post]
func (h *Handlers) StartWizard(c *gin.Context) {
	s := h.wiz.Start(userID(c))
	view, err := h.wiz.Snapshot(s.ID, userID(c))
	if err != nil {
		wizardFail(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusCreated, view)
}

// GetWizard godoc
// @ID          getWizard
// @Summary     Get a wizard session
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  wizard.View
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /wizard/{id} [get]
func (h *Handlers) GetWizard(c *gin.Context) {
	view, err := h.wiz.Snapshot(c.Param("id"), userID(c))
	if err != nil {
		wizardFail(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, view)
}

// DiscardWizard godoc
// @ID          discardWizard
// @Summary     Discard a wizard session
// @Description Drops unsaved input. Drafts already saved stay in the store.
// @Tags        Wizard
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /wizard/{id} [delete]
func (h *Handlers) DiscardWizard(c *gin.Context) {
	if err := h.wiz.Discard(c.Param("id"), userID(c)); err != nil {
		wizardFail(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// SetWizardFields godoc
// @ID          setWizardFields
// @Summary     Set form fields
// @Description Assigns field values by wire name. Unknown names reject the whole request.
// @Tags        Wizard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                     true  "Session ID"
// @Param       body  body  handlers.SetFieldsRequest  true  "Field values"
// @Success     200  {object}  wizard.View
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown field or malformed value"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Invalid value"
// @Router      /wizard/{id}/fields [patch]
func (h *Handlers) SetWizardFields(c *gin.Context) {
	var req SetFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	values := make(map[string]string, len(req))
	for name, v := range req {
		s, err := fieldString(v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("%s: %v", name, err))
			return
		}
		values[name] = s
	}
	cmd := wizard.SetFields{Values: values}
	h.mutate(c, http.StatusOK, cmd.Name(), ErrCodeInternal, func(s *wizard.Session) error {
		_, err := s.Apply(cmd)
		return err
	})
}

// AdvanceWizard godoc
// @ID          advanceWizard
// @Summary     Next step
// @Description Validates the current step and moves forward. Entering step 5 builds the summary.
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  wizard.View
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Step incomplete"
// @Router      /wizard/{id}/advance [post]
func (h *Handlers) AdvanceWizard(c *gin.Context) {
	h.applyCommand(c, wizard.Advance{})
}

// RetreatWizard godoc
// @ID          retreatWizard
// @Summary     Previous step
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  wizard.View
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /wizard/{id}/retreat [post]
func (h *Handlers) RetreatWizard(c *gin.Context) {
	h.applyCommand(c, wizard.Retreat{})
}

// ResetWizard godoc
// @ID          resetWizard
// @Summary     Start over
// @Description Clears the form, parties and files and returns to step 1. Saved drafts stay in the store.
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  wizard.View
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /wizard/{id}/reset [post]
func (h *Handlers) ResetWizard(c *gin.Context) {
	h.applyCommand(c, wizard.Reset{})
}

func (h *Handlers) applyCommand(c *gin.Context, cmd wizard.Command) {
	h.mutate(c, http.StatusOK, cmd.Name(), ErrCodeInternal, func(s *wizard.Session) error {
		_, err := s.Apply(cmd)
		return err
	})
}

// AddWizardParty godoc
// @ID          addWizardParty
// @Summary     Add an involved party
// @Tags        Wizard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                 true  "Session ID"
// @Param       body  body  handlers.PartyRequest  true  "Party"
// @Success     201  {object}  wizard.View
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid role"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Party id in use"
// @Router      /wizard/{id}/parties [post]
func (h *Handlers) AddWizardParty(c *gin.Context) {
	var req PartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cmd := wizard.AddParty{Party: req.party()}
	h.mutate(c, http.StatusCreated, cmd.Name(), ErrCodeInternal, func(s *wizard.Session) error {
		_, err := s.Apply(cmd)
		return err
	})
}

// UpdateWizardParty godoc
// @ID          updateWizardParty
// @Summary     Replace an involved party
// @Tags        Wizard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                 true  "Session ID"
// @Param       pid   path  string                 true  "Party ID"
// @Param       body  body  handlers.PartyRequest  true  "Party"
// @Success     200  {object}  wizard.View
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid role"
// @Failure     404  {object}  handlers.ErrorResponse  "Session or party not found"
// @Router      /wizard/{id}/parties/{pid} [put]
func (h *Handlers) UpdateWizardParty(c *gin.Context) {
	var req PartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	h.applyCommand(c, wizard.UpdateParty{ID: c.Param("pid"), Party: req.party()})
}

// RemoveWizardParty godoc
// @ID          removeWizardParty
// @Summary     Remove an involved party
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Session ID"
// @Param       pid  path  string  true  "Party ID"
// @Success     200  {object}  wizard.View
// @Failure     404  {object}  handlers.ErrorResponse  "Session or party not found"
// @Router      /wizard/{id}/parties/{pid} [delete]
func (h *Handlers) RemoveWizardParty(c *gin.Context) {
	h.applyCommand(c, wizard.RemoveParty{ID: c.Param("pid")})
}

// UploadWizardFiles godoc
// @ID          uploadWizardFiles
// @Summary     Upload attachments
// @Description Uploads images or PDFs (max. 10 MB each) sent as multipart parts named "files". A draft is saved first when the claim has no id yet. Each file succeeds or fails on its own.
// @Tags        Wizard
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       id     path      string  true  "Session ID"
// @Param       files  formData  file    true  "Files"
// @Success     200  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "No files"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     413  {object}  handlers.ErrorResponse  "Request too large"
// @Router      /wizard/{id}/files [post]
func (h *Handlers) UploadWizardFiles(c *gin.Context) {
	if c.Request.ContentLength > h.maxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "Die Anfrage ist zu groß.")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "Die Anfrage ist zu groß.")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart form with files required")
		return
	}
	form := c.Request.MultipartForm
	defer form.RemoveAll()
	var headers []*multipart.FileHeader
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["file"]...)
	if len(headers) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no files")
		return
	}

	inputs := make([]wizard.FileInput, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file part")
			return
		}
		defer f.Close()
		ct, err := contentType(fh, f)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file part")
			return
		}
		inputs = append(inputs, wizard.FileInput{Name: fh.Filename, Size: fh.Size, ContentType: ct, Body: f})
	}

	ctx := wizardCtx(c)
	owner := userID(c)
	var (
		results []wizard.FileResult
		view    wizard.View
	)
	err := h.wiz.Do(ctx, c.Param("id"), owner, "upload", func(s *wizard.Session) error {
		results = s.UploadBatch(ctx, owner, inputs)
		view = s.View()
		errs := make([]error, 0, len(results))
		for _, r := range results {
			errs = append(errs, r.Err)
		}
		return errors.Join(errs...)
	})
	if results == nil {
		wizardFail(c, err, ErrCodeUploadFailed)
		return
	}

	resp := UploadResponse{Files: make([]UploadResult, 0, len(results)), Session: view}
	for _, r := range results {
		out := UploadResult{Name: r.Name, File: r.File}
		if r.Err != nil {
			_, out.Code, out.Message = wizardStatus(r.Err, ErrCodeUploadFailed)
		}
		resp.Files = append(resp.Files, out)
	}
	ok(c, http.StatusOK, resp)
}

// contentType returns the declared part type, sniffing the content when the
// client sent none.
func contentType(fh *multipart.FileHeader, f multipart.File) (string, error) {
	ct := fh.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		return ct, nil
	}
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mt.String(), nil
}

// RemoveWizardFile godoc
// @ID          removeWizardFile
// @Summary     Remove an attachment
// @Description Deletes the stored object, then its document record.
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Session ID"
// @Param       fid  path  string  true  "File (document) ID"
// @Success     200  {object}  wizard.View
// @Failure     404  {object}  handlers.ErrorResponse  "Session or file not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Removal failed"
// @Router      /wizard/{id}/files/{fid} [delete]
func (h *Handlers) RemoveWizardFile(c *gin.Context) {
	ctx := wizardCtx(c)
	fid := c.Param("fid")
	h.mutate(c, http.StatusOK, "remove_file", ErrCodeRemoveFailed, func(s *wizard.Session) error {
		return s.Remove(ctx, fid)
	})
}

// SaveWizardDraft godoc
// @ID          saveWizardDraft
// @Summary     Save as draft
// @Description Writes the claim with status draft, then the vehicle and the parties.
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  wizard.View
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Malformed value"
// @Failure     500  {object}  handlers.ErrorResponse  "Save failed"
// @Router      /wizard/{id}/draft [post]
func (h *Handlers) SaveWizardDraft(c *gin.Context) {
	ctx := wizardCtx(c)
	owner := userID(c)
	h.mutate(c, http.StatusOK, "save_draft", ErrCodeSaveFailed, func(s *wizard.Session) error {
		return s.SaveDraft(ctx, owner)
	})
}

// SubmitWizard godoc
// @ID          submitWizard
// @Summary     Submit the claim
// @Description Validates every step, requires confirm_accuracy, writes the claim as submitted with vehicle, parties and a status history entry, then resets the session.
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  handlers.SubmitResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Incomplete claim"
// @Failure     500  {object}  handlers.ErrorResponse  "Submit failed"
// @Router      /wizard/{id}/submit [post]
func (h *Handlers) SubmitWizard(c *gin.Context) {
	ctx := wizardCtx(c)
	owner := userID(c)
	var resp SubmitResponse
	err := h.wiz.Do(ctx, c.Param("id"), owner, "submit", func(s *wizard.Session) error {
		res, err := s.Submit(ctx, owner)
		if err != nil {
			return err
		}
		resp = SubmitResponse{ClaimID: res.ClaimID, ClaimNumber: res.ClaimNumber, Session: s.View()}
		return nil
	})
	if err != nil {
		wizardFail(c, err, ErrCodeSubmitFailed)
		return
	}
	ok(c, http.StatusOK, resp)
}

// GetWizardSummary godoc
// @ID          getWizardSummary
// @Summary     Claim summary
// @Description Returns the read-only recap of everything entered so far.
// @Tags        Wizard
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  wizard.Summary
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /wizard/{id}/summary [get]
func (h *Handlers) GetWizardSummary(c *gin.Context) {
	var sum wizard.Summary
	err := h.wiz.Do(wizardCtx(c), c.Param("id"), userID(c), "summary", func(s *wizard.Session) error {
		if cached := s.CachedSummary(); cached != nil {
			sum = *cached
		} else {
			sum = s.Summary()
		}
		return nil
	})
	if err != nil {
		wizardFail(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, sum)
}
