package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-claims-backend/internal/config"
)

func TestClaimObjectPath(t *testing.T) {
	re := regexp.MustCompile(`^claims/c-1/[0-9a-f-]{36}\.pdf$`)
	p1 := ClaimObjectPath("c-1", "Gutachten.PDF")
	p2 := ClaimObjectPath("c-1", "Gutachten.PDF")
	assert.Regexp(t, re, p1)
	assert.NotEqual(t, p1, p2, "paths must be unique per upload")

	assert.Regexp(t, `^claims/c-1/[0-9a-f-]{36}$`, ClaimObjectPath("c-1", "noext"))
	assert.True(t, strings.HasSuffix(ClaimObjectPath("c-1", `C:\tmp\foto.JPG`), ".jpg"))
}

func TestCleanPath(t *testing.T) {
	for _, bad := range []string{"", "  ", "../etc/passwd", "claims/../../x", "a//b"} {
		_, err := cleanPath(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
	got, err := cleanPath("/claims/c1/x.png")
	require.NoError(t, err)
	assert.Equal(t, "claims/c1/x.png", got)
}

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(filepath.Join(dir, "uploads"), "/files")
	require.NoError(t, err)
	ctx := context.Background()
	key := "claims/c1/abc.png"

	t.Run("Upload writes file", func(t *testing.T) {
		p, err := l.Upload(ctx, key, strings.NewReader("png-bytes"), "image/png", 9)
		require.NoError(t, err)
		assert.Equal(t, key, p)
		b, err := os.ReadFile(filepath.Join(l.Dir(), "claims", "c1", "abc.png"))
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(b))
	})

	t.Run("PublicURL joins base", func(t *testing.T) {
		assert.Equal(t, "/files/claims/c1/abc.png", l.PublicURL(key))
	})

	t.Run("Upload rejects escaping path", func(t *testing.T) {
		_, err := l.Upload(ctx, "../outside.png", strings.NewReader("x"), "image/png", 1)
		assert.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("Delete removes and tolerates missing", func(t *testing.T) {
		require.NoError(t, l.Delete(ctx, key, "claims/c1/missing.png"))
		_, err := os.Stat(filepath.Join(l.Dir(), "claims", "c1", "abc.png"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestNewFromConfig_LocalWithoutBucket(t *testing.T) {
	b, err := NewFromConfig(context.Background(), config.StorageConfig{
		LocalDir:        t.TempDir(),
		LocalPublicBase: "/files",
	})
	require.NoError(t, err)
	_, ok := b.(*Local)
	assert.True(t, ok, "expected *Local, got %T", b)
}

// fakeS3 records requests made by the SDK against a path-style endpoint.
type fakeS3 struct {
	mu   sync.Mutex
	reqs []string
	body map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, r.Method+" "+r.URL.Path)
	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.body[r.URL.Path] = b
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3_UploadDeleteAgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{body: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewS3(ctx, S3Options{
		Bucket:          "claims-bucket",
		Region:          "auto",
		Endpoint:        srv.URL,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		PublicBaseURL:   "https://cdn.example.com/",
	})
	require.NoError(t, err)

	data := []byte("%PDF-1.4 test")
	p, err := s.Upload(ctx, "claims/c1/doc.pdf", bytes.NewReader(data), "application/pdf", int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, "claims/c1/doc.pdf", p)
	assert.Equal(t, "https://cdn.example.com/claims/c1/doc.pdf", s.PublicURL(p))

	require.NoError(t, s.Delete(ctx, p))
	require.NoError(t, s.Delete(ctx)) // no-op, no request

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.reqs, 2)
	assert.Equal(t, "PUT /claims-bucket/claims/c1/doc.pdf", fake.reqs[0])
	assert.True(t, strings.HasPrefix(fake.reqs[1], "POST /claims-bucket"), fake.reqs[1])
	assert.Contains(t, string(fake.body["/claims-bucket/claims/c1/doc.pdf"]), "%PDF-1.4 test")
}

func TestS3_PublicURLEmptyWithoutBase(t *testing.T) {
	s, err := NewS3(context.Background(), S3Options{Bucket: "b", Endpoint: "http://127.0.0.1:1", AccessKeyID: "k", SecretAccessKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "", s.PublicURL("claims/c1/x.png"))
}
