package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftspace/backend/internal/domain"
	"github.com/driftspace/backend/internal/middleware"
)

type stubFileStorage struct{}

func (stubFileStorage) SaveFile(_ context.Context, file io.Reader, filename, _, folder string) (string, error) {
	if _, err := io.Copy(io.Discard, file); err != nil {
		return "", err
	}
	return "http://storage.test/" + folder + "/" + filename, nil
}

func (stubFileStorage) DeleteFile(context.Context, string) error { return nil }

func multipartUpload(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("creating part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, uuid.New())
	return req.WithContext(ctx)
}

func TestMediaHandler_Upload_SizeBoundary(t *testing.T) {
	const maxUpload = 1 << 20

	svc := domain.NewMediaService(stubFileStorage{}, maxUpload)
	handler := NewMediaHandler(svc, maxUpload, zap.NewNop())

	tests := []struct {
		name       string
		size       int
		wantStatus int
	}{
		{name: "exactly the limit", size: maxUpload, wantStatus: http.StatusCreated},
		{name: "one byte over", size: maxUpload + 1, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartUpload(t, "photo.png", "image/png", make([]byte, tt.size))
			rec := httptest.NewRecorder()

			handler.Upload(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestMediaHandler_Upload_RejectsMimeType(t *testing.T) {
	svc := domain.NewMediaService(stubFileStorage{}, 1<<20)
	handler := NewMediaHandler(svc, 1<<20, zap.NewNop())

	req := multipartUpload(t, "doc.pdf", "application/pdf", []byte("%PDF-1.4"))
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnsupportedMediaType)
	}
}

func TestMediaHandler_Upload_RequiresAuth(t *testing.T) {
	svc := domain.NewMediaService(stubFileStorage{}, 1<<20)
	handler := NewMediaHandler(svc, 1<<20, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", nil)
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
