package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores objects below a directory on the local filesystem.
type Local struct {
	dir        string
	publicBase string
}

// NewLocal creates dir if needed. publicBase is the URL prefix under which
// the HTTP layer serves dir (e.g. "/files").
func NewLocal(dir, publicBase string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{dir: dir, publicBase: publicBase}, nil
}

// Dir is the root directory.
func (l *Local) Dir() string { return l.dir }

// PublicBase is the URL prefix files are served under.
func (l *Local) PublicBase() string { return l.publicBase }

// Upload writes r to dir/objectPath.
func (l *Local) Upload(ctx context.Context, objectPath string, r io.Reader, _ string, _ int64) (string, error) {
	p, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := filepath.Join(l.dir, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	dst, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		_ = dst.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("save file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}
	return p, nil
}

// Delete removes the files; missing files are ignored.
func (l *Local) Delete(ctx context.Context, objectPaths ...string) error {
	for _, op := range objectPaths {
		p, err := cleanPath(op)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(l.dir, filepath.FromSlash(p))); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete file: %w", err)
		}
	}
	return nil
}

// PublicURL returns publicBase/objectPath.
func (l *Local) PublicURL(objectPath string) string {
	return joinURL(l.publicBase, objectPath)
}
