package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the JWT payload of a session token.
type sessionClaims struct {
	Email string  `json:"email"`
	Name  *string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

const issuer = "go-claims-backend"

func (s *Service) issue(id Identity, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.sessionTTL)
	claims := sessionClaims{
		Email: id.Email,
		Name:  id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

func (s *Service) parse(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrSessionExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	c, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidSession
	}
	id := Identity{ID: c.Subject, Email: c.Email, DisplayName: c.Name}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}
