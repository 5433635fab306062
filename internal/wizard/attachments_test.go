package wizard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/go-claims-backend/internal/storage"
)

func TestAccept(t *testing.T) {
	cases := []struct {
		size int64
		ct   string
		want error
	}{
		{1024, "image/png", nil},
		{1024, "image/jpeg", nil},
		{1024, "application/pdf", nil},
		{1024, "Application/PDF; charset=binary", nil},
		{MaxFileBytes, "image/png", nil},
		{MaxFileBytes + 1, "image/png", ErrFileTooLarge},
		{11 << 20, "application/pdf", ErrFileTooLarge},
		{1024, "text/plain", ErrFileType},
		{1024, "", ErrFileType},
		{1024, "application/zip", ErrFileType},
	}
	for _, tc := range cases {
		err := Accept(tc.size, tc.ct)
		if tc.want == nil && err != nil || tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("Accept(%d, %q) = %v; want %v", tc.size, tc.ct, err, tc.want)
		}
	}
}

func TestUpload_RejectedFilesTouchNothing(t *testing.T) {
	store, blob := newFakeStore(), newFakeBlob()
	s := newTestSession(t, store, blob)
	fillStep1(t, s)

	big := pngFile("big.png", 0)
	big.Size = 11 << 20
	if _, err := s.Upload(ctxBG(), "owner-1", big); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("11 MiB: %v", err)
	}
	txt := FileInput{Name: "notes.txt", Size: 10, ContentType: "text/plain", Body: strings.NewReader("0123456789")}
	if _, err := s.Upload(ctxBG(), "owner-1", txt); !errors.Is(err, ErrFileType) {
		t.Fatalf("text/plain: %v", err)
	}
	if len(store.calls) != 0 || blob.uploads != 0 {
		t.Fatalf("rejections reached collaborators: calls=%v uploads=%d", store.calls, blob.uploads)
	}
	if len(s.Files()) != 0 {
		t.Fatalf("rejected files were staged")
	}
}

func TestUpload_SavesDraftFirstAndRecordsDocument(t *testing.T) {
	store, blob := newFakeStore(), newFakeBlob()
	s := newTestSession(t, store, blob)
	fillStep1(t, s)

	desc, err := s.Upload(ctxBG(), "owner-1", pngFile("Front.PNG", 1024))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if s.ClaimID() == "" {
		t.Fatalf("upload must obtain a claim id")
	}
	want := []string{"CreateClaim", "CreateDocument"}
	if strings.Join(store.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v; want %v", store.calls, want)
	}
	prefix := "claims/" + s.ClaimID() + "/"
	if !strings.HasPrefix(desc.Path, prefix) || !strings.HasSuffix(desc.Path, ".png") {
		t.Fatalf("path = %q", desc.Path)
	}
	if desc.URL != "https://files.example/"+desc.Path || desc.Size != 1024 || desc.Type != "image/png" || desc.Name != "Front.PNG" {
		t.Fatalf("desc = %+v", desc)
	}
	doc := store.docs[desc.ID]
	if doc == nil || doc.ClaimID != s.ClaimID() || doc.UploadedBy != "owner-1" || doc.StoragePath != desc.Path {
		t.Fatalf("document = %+v", doc)
	}
	if len(blob.objects[desc.Path]) != 1024 {
		t.Fatalf("blob not written")
	}

	// A second upload reuses the claim.
	if _, err := s.Upload(ctxBG(), "owner-1", pngFile("back.png", 10)); err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if store.count("CreateClaim") != 1 || len(s.Files()) != 2 {
		t.Fatalf("second upload must not create another claim")
	}
}

func TestUpload_DraftFailureReportsNoClaimID(t *testing.T) {
	store, blob := newFakeStore(), newFakeBlob()
	s := newTestSession(t, store, blob)
	fillStep1(t, s)
	store.fail["CreateClaim"] = errors.New("db down")

	if _, err := s.Upload(ctxBG(), "owner-1", pngFile("a.png", 10)); !errors.Is(err, ErrNoClaimID) {
		t.Fatalf("err = %v; want ErrNoClaimID", err)
	}
	if blob.uploads != 0 {
		t.Fatalf("blob written without a claim")
	}
}

func TestUpload_DocumentFailureLeavesOrphanBlob(t *testing.T) {
	store, blob := newFakeStore(), newFakeBlob()
	s := newTestSession(t, store, blob)
	fillStep1(t, s)
	store.fail["CreateDocument"] = errors.New("insert failed")

	if _, err := s.Upload(ctxBG(), "owner-1", pngFile("a.png", 10)); err == nil {
		t.Fatalf("expected error")
	}
	if len(blob.objects) != 1 {
		t.Fatalf("blob objects = %d; want the orphan to stay", len(blob.objects))
	}
	if len(s.Files()) != 0 {
		t.Fatalf("failed upload was staged")
	}
}

func TestUploadBatch_FilesAreIndependent(t *testing.T) {
	store, blob := newFakeStore(), newFakeBlob()
	s := newTestSession(t, store, blob)
	fillStep1(t, s)

	big := pngFile("big.png", 0)
	big.Size = MaxFileBytes + 1
	res := s.UploadBatch(ctxBG(), "owner-1", []FileInput{
		pngFile("a.png", 10),
		big,
		{Name: "c.pdf", Size: 5, ContentType: "application/pdf", Body: strings.NewReader("%PDF-")},
	})
	if len(res) != 3 {
		t.Fatalf("results = %d", len(res))
	}
	if res[0].Err != nil || res[0].File == nil {
		t.Fatalf("a.png: %+v", res[0])
	}
	if !errors.Is(res[1].Err, ErrFileTooLarge) || res[1].File != nil {
		t.Fatalf("big.png: %+v", res[1])
	}
	if res[2].Err != nil || res[2].File == nil || res[2].File.Type != "application/pdf" {
		t.Fatalf("c.pdf: %+v", res[2])
	}
	if len(s.Files()) != 2 {
		t.Fatalf("staged files = %d; want 2", len(s.Files()))
	}
}

func TestRemove(t *testing.T) {
	store, blob := newFakeStore(), newFakeBlob()
	s := newTestSession(t, store, blob)
	fillStep1(t, s)
	a, _ := s.Upload(ctxBG(), "owner-1", pngFile("a.png", 10))
	b, _ := s.Upload(ctxBG(), "owner-1", pngFile("b.png", 10))

	if err := s.Remove(ctxBG(), "nope"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("unknown id: %v", err)
	}

	blob.deleteErr = errors.New("storage unavailable")
	if err := s.Remove(ctxBG(), a.ID); err == nil {
		t.Fatalf("expected blob error")
	}
	if store.count("DeleteDocument") != 0 || len(s.Files()) != 2 {
		t.Fatalf("a failed blob delete must stop the remaining steps")
	}

	blob.deleteErr = nil
	if err := s.Remove(ctxBG(), a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := blob.objects[a.Path]; ok {
		t.Fatalf("blob still present")
	}
	if _, ok := store.docs[a.ID]; ok {
		t.Fatalf("document still present")
	}
	files := s.Files()
	if len(files) != 1 || files[0].ID != b.ID {
		t.Fatalf("files = %+v; want only b", files)
	}
}

func TestUpload_LocalBlobStore(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocal(dir, "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	s := newTestSession(t, newFakeStore(), local)
	fillStep1(t, s)

	desc, err := s.Upload(ctxBG(), "owner-1", pngFile("photo.jpg", 64))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(desc.Path)))
	if err != nil || len(data) != 64 {
		t.Fatalf("stored file: %d bytes, %v", len(data), err)
	}
	if desc.URL != "http://localhost:8080/files/"+desc.Path {
		t.Fatalf("url = %q", desc.URL)
	}

	if err := s.Remove(ctxBG(), desc.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(desc.Path))); !os.IsNotExist(err) {
		t.Fatalf("file still on disk: %v", err)
	}
}
