package domain

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/driftspace/backend/internal/storage"
)

// MediaService validates uploads and hands the bytes to the storage
// provider. Validation happens before any storage call.
type MediaService struct {
	storage storage.FileStorage
	maxSize int64
}

func NewMediaService(fileStorage storage.FileStorage, maxSize int64) *MediaService {
	if maxSize <= 0 {
		maxSize = MaxAttachmentSize
	}
	return &MediaService{
		storage: fileStorage,
		maxSize: maxSize,
	}
}

// Upload validates the file, stores it under the uploader's folder and
// returns the attachment descriptor. A file of exactly the maximum size
// is accepted; one byte over is rejected.
func (s *MediaService) Upload(ctx context.Context, data []byte, filename, mimeType string, userID uuid.UUID) (*MediaAttachment, error) {
	if !AllowedImageTypes[mimeType] {
		return nil, ErrInvalidMediaType
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}

	url, err := s.storage.SaveFile(ctx, bytes.NewReader(data), filename, mimeType, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	attachment, err := NewMediaAttachment(url, mimeType, filename, int64(len(data)))
	if err != nil {
		return nil, err
	}

	// Dimension probe is best effort; an image the decoder cannot read
	// is still a valid upload.
	if img, decodeErr := imaging.Decode(bytes.NewReader(data)); decodeErr == nil {
		bounds := img.Bounds()
		w, h := bounds.Dx(), bounds.Dy()
		attachment.Width = &w
		attachment.Height = &h
	}

	return attachment, nil
}

// Delete removes a stored file by its URL.
func (s *MediaService) Delete(ctx context.Context, fileURL string) error {
	return s.storage.DeleteFile(ctx, fileURL)
}
