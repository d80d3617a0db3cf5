package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalFileStorage implements FileStorage for local filesystem
type LocalFileStorage struct {
	basePath string
	baseURL  string
}

// NewLocalFileStorage creates a new local file storage
func NewLocalFileStorage(basePath, baseURL string) (*LocalFileStorage, error) {
	// Ensure directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalFileStorage{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// SaveFile saves a file to local disk under the folder subdirectory
func (s *LocalFileStorage) SaveFile(ctx context.Context, file io.Reader, filename, contentType, folder string) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		// Try to guess from content type (simplified)
		chunks := strings.Split(contentType, "/")
		if len(chunks) == 2 {
			ext = "." + chunks[1]
		}
	}

	// The folder is the uploader's scope; Base strips any traversal
	folder = filepath.Base(folder)
	dir := filepath.Join(s.basePath, folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	newFilename := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	fullPath := filepath.Join(dir, newFilename)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file on disk: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save file content: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", s.baseURL, folder, newFilename), nil
}

// DeleteFile deletes a file from local disk
func (s *LocalFileStorage) DeleteFile(ctx context.Context, fileURL string) error {
	// Extract folder/filename from URL
	trimmed := strings.TrimPrefix(fileURL, s.baseURL+"/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return fmt.Errorf("unrecognized file URL: %s", fileURL)
	}
	folder := filepath.Base(parts[len(parts)-2])
	filename := filepath.Base(parts[len(parts)-1])

	fullPath := filepath.Join(s.basePath, folder, filename)

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return nil // Already gone
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
