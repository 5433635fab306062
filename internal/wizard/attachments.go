package wizard

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/storage"
)

// MaxFileBytes is the per-file size ceiling for attachments.
const MaxFileBytes int64 = 10 << 20

// Blob is the object store attachments are written to.
type Blob interface {
	Upload(ctx context.Context, path string, r io.Reader, contentType string, size int64) (string, error)
	Delete(ctx context.Context, paths ...string) error
	PublicURL(path string) string
}

// FileInput is one file offered for upload.
type FileInput struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// FileDesc describes an uploaded attachment. ID is the document id.
type FileDesc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// FileResult is the outcome of one file of a batch.
type FileResult struct {
	Name string    `json:"name"`
	File *FileDesc `json:"file,omitempty"`
	Err  error     `json:"-"`
}

// Accept checks the size ceiling and the declared type (image/* or PDF).
// It touches no collaborator.
func Accept(size int64, contentType string) error {
	if size > MaxFileBytes {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasPrefix(ct, "image/") || ct == "application/pdf" {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrFileType, contentType)
}

// Upload stores one file under the held claim, saving a draft first when no
// claim id is held yet. The blob is written before the document record; if
// the record insert fails the blob stays behind and is logged.
func (s *Session) Upload(ctx context.Context, owner string, f FileInput) (FileDesc, error) {
	if err := Accept(f.Size, f.ContentType); err != nil {
		return FileDesc{}, err
	}
	if s.claimID == "" {
		if err := s.Flush(ctx, owner, domain.StatusDraft); err != nil {
			return FileDesc{}, fmt.Errorf("%w: %w", ErrNoClaimID, err)
		}
		if s.claimID == "" {
			return FileDesc{}, ErrNoClaimID
		}
	}

	path := storage.ClaimObjectPath(s.claimID, f.Name)
	stored, err := s.blob.Upload(ctx, path, f.Body, f.ContentType, f.Size)
	if err != nil {
		return FileDesc{}, fmt.Errorf("upload blob: %w", err)
	}
	doc := &domain.Document{
		ClaimID:     s.claimID,
		UploadedBy:  owner,
		StoragePath: stored,
		FileName:    f.Name,
		MimeType:    f.ContentType,
		SizeBytes:   f.Size,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		log.Warn().Err(err).
			Str("session_id", s.ID).
			Str("claim_id", s.claimID).
			Str("storage_path", stored).
			Msg("document insert failed; blob left orphaned")
		return FileDesc{}, fmt.Errorf("insert document: %w", err)
	}

	desc := FileDesc{
		ID:   doc.ID,
		Name: f.Name,
		Size: f.Size,
		Type: f.ContentType,
		Path: stored,
		URL:  s.blob.PublicURL(stored),
	}
	s.files = append(s.files, desc)
	s.changed()
	return desc, nil
}

// UploadBatch uploads files one at a time. A rejected or failed file does
// not stop the others; each result carries its own outcome.
func (s *Session) UploadBatch(ctx context.Context, owner string, files []FileInput) []FileResult {
	out := make([]FileResult, 0, len(files))
	for _, f := range files {
		desc, err := s.Upload(ctx, owner, f)
		r := FileResult{Name: f.Name, Err: err}
		if err == nil {
			r.File = &desc
		}
		out = append(out, r)
	}
	return out
}

// Remove deletes the blob, then the document record, then the descriptor.
// A failed step stops the ones after it.
func (s *Session) Remove(ctx context.Context, fileID string) error {
	i := -1
	for j := range s.files {
		if s.files[j].ID == fileID {
			i = j
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	f := s.files[i]
	if err := s.blob.Delete(ctx, f.Path); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := s.store.DeleteDocument(ctx, f.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.files = append(s.files[:i], s.files[i+1:]...)
	s.changed()
	return nil
}
