// Package storage provides the blob store used for claim attachments.
//
// Objects are addressed by slash-separated paths of the form
// claims/<claim_id>/<uuid>.<ext>. Two backends exist: Local keeps files on
// disk and is served by the HTTP layer as static content; S3 talks to any
// S3-compatible object store (AWS, Cloudflare R2, MinIO, Supabase Storage).
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-claims-backend/internal/config"
)

// Blob is the path-addressed object store contract.
type Blob interface {
	// Upload stores r under objectPath and returns the stored path.
	Upload(ctx context.Context, objectPath string, r io.Reader, contentType string, size int64) (string, error)
	// Delete removes the given objects. Missing objects are not an error.
	Delete(ctx context.Context, objectPaths ...string) error
	// PublicURL resolves a retrieval URL for objectPath. It may be empty when
	// the backend has no public base configured.
	PublicURL(objectPath string) string
}

// ErrInvalidPath is returned for empty or escaping object paths.
var ErrInvalidPath = errors.New("storage: invalid object path")

// ClaimObjectPath returns a fresh path for an attachment of claimID,
// keeping the lower-cased extension of filename.
func ClaimObjectPath(claimID, filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	return "claims/" + claimID + "/" + uuid.NewString() + ext
}

// NewFromConfig returns an S3 backend when a bucket is configured, else a
// Local backend rooted at cfg.LocalDir.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (Blob, error) {
	if cfg.Bucket != "" {
		s, err := NewS3(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("blob store: s3")
		return s, nil
	}
	l, err := NewLocal(cfg.LocalDir, cfg.LocalPublicBase)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", cfg.LocalDir).Msg("blob store: local filesystem")
	return l, nil
}

// cleanPath validates an object path and returns its canonical form.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrInvalidPath
	}
	c := path.Clean("/" + p)[1:]
	if c == "" || c != strings.TrimPrefix(p, "/") || strings.HasPrefix(c, "../") {
		return "", ErrInvalidPath
	}
	return c, nil
}

func joinURL(base, p string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + p
}
