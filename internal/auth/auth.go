// Package auth implements passwordless email-link sign-in.
//
// A sign-in request stores the SHA-256 hash of a random one-time token and
// mails a verification link. Verifying the link consumes the token and
// issues a stateless HS256 session token. Identity ids are derived from the
// normalized email address, so a user keeps the same id across sign-ins.
// Listeners registered with Subscribe observe sign-in and sign-out.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/config"
	"github.com/tbourn/go-claims-backend/internal/repo"
)

var (
	// ErrInvalidEmail is returned for addresses that do not parse.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidLink is returned for unknown, used or expired sign-in tokens.
	ErrInvalidLink = errors.New("sign-in link is invalid or expired")
	// ErrInvalidSession is returned for malformed or forged session tokens.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpired is returned for session tokens past their expiry.
	ErrSessionExpired = errors.New("session expired")
)

// identityNamespace scopes the derived identity ids.
var identityNamespace = uuid.MustParse("6f1c1f5e-3f0a-4d8e-9c55-0f3c7a1b2d90")

// Identity is the authenticated user.
type Identity struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// EventKind distinguishes auth transitions.
type EventKind string

const (
	SignedIn  EventKind = "signed_in"
	SignedOut EventKind = "signed_out"
)

// Event is delivered to subscribers.
type Event struct {
	Kind     EventKind
	Identity Identity
}

// Listener reacts to an auth transition. An error from a SignedIn listener
// fails the sign-in.
type Listener func(ctx context.Context, e Event) error

// Session is the result of a successful verification.
type Session struct {
	Token      string    `json:"access_token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Identity   Identity  `json:"user"`
	RedirectTo string    `json:"redirect_to"`
}

// Service implements the auth operations.
type Service struct {
	db         *gorm.DB
	mailer     Mailer
	secret     []byte
	sessionTTL time.Duration
	linkTTL    time.Duration
	verifyURL  string
	redirectTo string
	allowed    map[string]struct{}
	now        func() time.Time

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewService builds a Service from configuration.
func NewService(db *gorm.DB, mailer Mailer, cfg config.AuthConfig) *Service {
	s := &Service{
		db:         db,
		mailer:     mailer,
		secret:     []byte(cfg.JWTSecret),
		sessionTTL: cfg.SessionTTL,
		linkTTL:    cfg.LinkTTL,
		verifyURL:  cfg.VerifyURL,
		redirectTo: cfg.RedirectTo,
		allowed:    map[string]struct{}{},
		now:        func() time.Time { return time.Now().UTC() },
		listeners:  map[int]Listener{},
	}
	if o := origin(cfg.RedirectTo); o != "" {
		s.allowed[o] = struct{}{}
	}
	for _, r := range cfg.AllowedRedirects {
		if o := origin(r); o != "" {
			s.allowed[o] = struct{}{}
		}
	}
	return s
}

// IdentityID returns the stable identity id for an email address.
func IdentityID(email string) string {
	return uuid.NewSHA1(identityNamespace, []byte(NormalizeEmail(email))).String()
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestLink mails a one-time sign-in link to email. redirectTo is where
// the browser lands after verification; it falls back to the configured
// default when empty or not on an allowed origin. displayName, when set, is
// stored on the profile at sign-in.
func (s *Service) RequestLink(ctx context.Context, email, redirectTo string, displayName *string) error {
	email = NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	if displayName != nil {
		if n := strings.TrimSpace(*displayName); n != "" {
			displayName = &n
		} else {
			displayName = nil
		}
	}

	raw, err := newToken()
	if err != nil {
		return err
	}
	if _, err := repo.CreateLoginToken(ctx, s.db, email, hashToken(raw), s.safeRedirect(redirectTo), displayName, s.linkTTL); err != nil {
		return fmt.Errorf("store sign-in token: %w", err)
	}

	link := s.verifyURL + "?token=" + url.QueryEscape(raw)
	if err := s.mailer.SendSignInLink(ctx, email, link); err != nil {
		return err
	}
	return nil
}

// Verify consumes a sign-in token and opens a session.
func (s *Service) Verify(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidLink
	}
	now := s.now()
	lt, err := repo.ConsumeLoginToken(ctx, s.db, hashToken(token), now)
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, repo.ErrTokenUsed), errors.Is(err, repo.ErrTokenExpired):
		return nil, ErrInvalidLink
	case err != nil:
		return nil, err
	}

	id := Identity{ID: IdentityID(lt.Email), Email: lt.Email, DisplayName: lt.DisplayName}
	signed, exp, err := s.issue(id, now)
	if err != nil {
		return nil, err
	}
	id.ExpiresAt = exp

	if err := s.emit(ctx, Event{Kind: SignedIn, Identity: id}); err != nil {
		return nil, err
	}
	return &Session{Token: signed, ExpiresAt: exp, Identity: id, RedirectTo: lt.RedirectTo}, nil
}

// Session validates a session token and returns its identity.
func (s *Service) Session(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidSession
	}
	return s.parse(token)
}

// SignOut notifies subscribers. Tokens are stateless; clients discard them.
func (s *Service) SignOut(ctx context.Context, id Identity) error {
	return s.emit(ctx, Event{Kind: SignedOut, Identity: id})
}

// Subscribe registers fn for auth transitions and returns a function that
// removes it again.
func (s *Service) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) emit(ctx context.Context, e Event) error {
	s.mu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.RUnlock()

	for _, l := range ls {
		if err := l(ctx, e); err != nil {
			log.Error().Err(err).Str("event", string(e.Kind)).Str("user_id", e.Identity.ID).Msg("auth listener failed")
			if e.Kind == SignedIn {
				return err
			}
		}
	}
	return nil
}

// safeRedirect returns r when its origin is allowed, else the default.
func (s *Service) safeRedirect(r string) string {
	r = strings.TrimSpace(r)
	if r == "" {
		return s.redirectTo
	}
	if _, ok := s.allowed[origin(r)]; ok {
		return r
	}
	return s.redirectTo
}

func origin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.Scheme + "://" + strings.ToLower(u.Host)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
