package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-claims-backend/internal/auth"
	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/http/middleware"
	"github.com/tbourn/go-claims-backend/internal/services"
)

// ---------- fakes ----------

type fakeClaims struct {
	mu          sync.Mutex
	createCalls int
	lastIn      services.CreateClaimInput
	createErr   error
	byID        map[string]*domain.Claim

	rows    []services.ClaimRow
	total   int64
	listErr error
	listArg [2]int

	statsCount int64
	statsTS    *time.Time

	get    *domain.Claim
	getErr error
}

func (f *fakeClaims) Create(_ context.Context, in services.CreateClaimInput) (*domain.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastIn = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	if strings.TrimSpace(in.DateOfLoss) == "" || strings.TrimSpace(in.ClaimType) == "" || strings.TrimSpace(in.Description) == "" {
		return nil, services.ErrMissingFields
	}
	c := &domain.Claim{
		ID:          fmt.Sprintf("00000000-0000-4000-8000-%012d", f.createCalls),
		ClaimNumber: fmt.Sprintf("CL-20240301100000-%04d", f.createCalls),
	}
	if f.byID == nil {
		f.byID = map[string]*domain.Claim{}
	}
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeClaims) Created(_ context.Context, id string) (*domain.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, services.ErrClaimNotFound
}

func (f *fakeClaims) ListPage(_ context.Context, _ string, page, pageSize int) ([]services.ClaimRow, int64, error) {
	f.listArg = [2]int{page, pageSize}
	return f.rows, f.total, f.listErr
}

func (f *fakeClaims) Get(context.Context, string, string) (*domain.Claim, error) {
	return f.get, f.getErr
}

func (f *fakeClaims) Stats(context.Context, string) (int64, *time.Time, error) {
	return f.statsCount, f.statsTS, nil
}

type memIdem struct {
	mu   sync.Mutex
	recs map[string]*domain.Idempotency
}

func (m *memIdem) Get(_ context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recs[userID+"|"+scope+"|"+key]; ok && r.ExpiresAt.After(now) {
		return r, nil
	}
	return nil, errors.New("not found")
}

func (m *memIdem) Create(_ context.Context, userID, scope, key, resourceID string, status int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = map[string]*domain.Idempotency{}
	}
	m.recs[userID+"|"+scope+"|"+key] = &domain.Idempotency{
		UserID: userID, Scope: scope, Key: key, ResourceID: resourceID, Status: status,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

type fakeAuth struct {
	linkErr               error
	gotEmail, gotRedirect string
	gotName               *string
	session               *auth.Session
	verifyErr             error
	signedOut             []auth.Identity
	resolveID             auth.Identity
	resolveErr            error
}

func (f *fakeAuth) RequestLink(_ context.Context, email, redirectTo string, displayName *string) error {
	f.gotEmail, f.gotRedirect, f.gotName = email, redirectTo, displayName
	return f.linkErr
}

func (f *fakeAuth) Verify(context.Context, string) (*auth.Session, error) {
	return f.session, f.verifyErr
}

func (f *fakeAuth) SignOut(_ context.Context, id auth.Identity) error {
	f.signedOut = append(f.signedOut, id)
	return nil
}

// Session makes fakeAuth a middleware.SessionResolver.
func (f *fakeAuth) Session(context.Context, string) (auth.Identity, error) {
	return f.resolveID, f.resolveErr
}

type fakeProfiles struct {
	p   *domain.Profile
	err error
}

func (f fakeProfiles) Get(context.Context, string) (*domain.Profile, error) {
	if f.p == nil && f.err == nil {
		return nil, services.ErrProfileNotFound
	}
	return f.p, f.err
}

// ---------- engine ----------

// newTestEngine mounts every handler the way the router does. uid, when
// set, plays the part of RequireAuth for the claim and wizard routes.
func newTestEngine(h *Handlers, uid string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Next()
	})
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.Any("/api/env", h.Env)
	r.Any("/api/claims/create", h.CreateClaim)

	r.POST("/auth/magic-link", h.RequestMagicLink)
	r.GET("/auth/verify", h.VerifyMagicLink)
	if res, ok := h.auth.(middleware.SessionResolver); ok {
		authed := r.Group("/auth", middleware.RequireAuth(res))
		authed.GET("/session", h.GetSession)
		authed.POST("/logout", h.Logout)
	}

	api := r.Group("/api/v1", func(c *gin.Context) {
		if uid != "" {
			c.Set("userID", uid)
		}
		c.Next()
	})
	api.GET("/claims", h.ListClaims)
	api.GET("/claims/:id", h.GetClaim)

	api.POST("/wizard", h.StartWizard)
	api.GET("/wizard/:id", h.GetWizard)
	api.DELETE("/wizard/:id", h.DiscardWizard)
	api.PATCH("/wizard/:id/fields", h.SetWizardFields)
	api.POST("/wizard/:id/advance", h.AdvanceWizard)
	api.POST("/wizard/:id/retreat", h.RetreatWizard)
	api.POST("/wizard/:id/reset", h.ResetWizard)
	api.POST("/wizard/:id/parties", h.AddWizardParty)
	api.PUT("/wizard/:id/parties/:pid", h.UpdateWizardParty)
	api.DELETE("/wizard/:id/parties/:pid", h.RemoveWizardParty)
	api.POST("/wizard/:id/files", h.UploadWizardFiles)
	api.DELETE("/wizard/:id/files/:fid", h.RemoveWizardFile)
	api.POST("/wizard/:id/draft", h.SaveWizardDraft)
	api.POST("/wizard/:id/submit", h.SubmitWizard)
	api.GET("/wizard/:id/summary", h.GetWizardSummary)
	return r
}

func doReq(r http.Handler, method, path string, body io.Reader, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(r http.Handler, method, path string, v any, hdr ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return doReq(r, method, path, strings.NewReader(string(b)), hdr...)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v; body=%s", v, err, w.Body.String())
	}
	return v
}
