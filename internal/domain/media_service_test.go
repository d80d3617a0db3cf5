package domain

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"testing"

	"github.com/google/uuid"
)

// fakeFileStorage records the last save and returns a deterministic URL.
type fakeFileStorage struct {
	savedFolder   string
	savedFilename string
	savedType     string
	savedBytes    int
	saves         int
	deletedURL    string
}

func (s *fakeFileStorage) SaveFile(_ context.Context, file io.Reader, filename, contentType, folder string) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	s.savedFolder = folder
	s.savedFilename = filename
	s.savedType = contentType
	s.savedBytes = len(data)
	s.saves++
	return "http://storage.test/" + folder + "/" + filename, nil
}

func (s *fakeFileStorage) DeleteFile(_ context.Context, fileURL string) error {
	s.deletedURL = fileURL
	return nil
}

func TestMediaService_Upload(t *testing.T) {
	store := &fakeFileStorage{}
	svc := NewMediaService(store, 1024)
	userID := uuid.New()

	data := bytes.Repeat([]byte{0xAB}, 512)
	attachment, err := svc.Upload(context.Background(), data, "photo.png", "image/png", userID)
	if err != nil {
		t.Fatalf("Upload() err = %v", err)
	}
	if attachment.URL != "http://storage.test/"+userID.String()+"/photo.png" {
		t.Errorf("URL = %q", attachment.URL)
	}
	if attachment.Size != 512 {
		t.Errorf("Size = %d, want 512", attachment.Size)
	}
	if store.savedFolder != userID.String() {
		t.Errorf("folder = %q, want uploader id", store.savedFolder)
	}
	if store.savedBytes != 512 {
		t.Errorf("stored %d bytes, want 512", store.savedBytes)
	}
}

func TestMediaService_Upload_SizeBoundary(t *testing.T) {
	store := &fakeFileStorage{}
	svc := NewMediaService(store, 64)
	userID := uuid.New()

	if _, err := svc.Upload(context.Background(), make([]byte, 64), "a.png", "image/png", userID); err != nil {
		t.Errorf("exact-limit upload err = %v, want nil", err)
	}
	if _, err := svc.Upload(context.Background(), make([]byte, 65), "b.png", "image/png", userID); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("over-limit upload err = %v, want ErrFileTooLarge", err)
	}
	if store.saves != 1 {
		t.Errorf("storage called %d times, want 1 (rejected file must not be stored)", store.saves)
	}
}

func TestMediaService_Upload_RejectsMimeType(t *testing.T) {
	store := &fakeFileStorage{}
	svc := NewMediaService(store, 1024)

	_, err := svc.Upload(context.Background(), []byte("%PDF-1.4"), "doc.pdf", "application/pdf", uuid.New())
	if !errors.Is(err, ErrInvalidMediaType) {
		t.Fatalf("Upload() err = %v, want ErrInvalidMediaType", err)
	}
	if store.saves != 0 {
		t.Error("rejected file must not reach storage")
	}
}

func TestMediaService_Upload_ProbesDimensions(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	svc := NewMediaService(&fakeFileStorage{}, 1<<20)
	attachment, err := svc.Upload(context.Background(), buf.Bytes(), "tiny.png", "image/png", uuid.New())
	if err != nil {
		t.Fatalf("Upload() err = %v", err)
	}
	if attachment.Width == nil || attachment.Height == nil {
		t.Fatal("dimensions should be probed for a decodable image")
	}
	if *attachment.Width != 4 || *attachment.Height != 3 {
		t.Errorf("dimensions = %dx%d, want 4x3", *attachment.Width, *attachment.Height)
	}
}

func TestMediaService_Upload_UndecodableImageStillAccepted(t *testing.T) {
	svc := NewMediaService(&fakeFileStorage{}, 1024)

	attachment, err := svc.Upload(context.Background(), []byte("not an image"), "x.png", "image/png", uuid.New())
	if err != nil {
		t.Fatalf("Upload() err = %v", err)
	}
	if attachment.Width != nil || attachment.Height != nil {
		t.Error("undecodable image should have no dimensions")
	}
}

func TestMediaService_Delete(t *testing.T) {
	store := &fakeFileStorage{}
	svc := NewMediaService(store, 1024)

	if err := svc.Delete(context.Background(), "http://storage.test/u/f.png"); err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	if store.deletedURL != "http://storage.test/u/f.png" {
		t.Errorf("deleted URL = %q", store.deletedURL)
	}
}
