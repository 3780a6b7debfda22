package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/rmitchellscott/ditherbox/internal/logging"
)

const resultsPrefix = "results/"

// ImageStorage handles storing and retrieving dithered result images
type ImageStorage struct {
	backend StorageBackend
}

// NewImageStorage creates a new image storage instance
func NewImageStorage(backend StorageBackend) *ImageStorage {
	return &ImageStorage{backend: backend}
}

// ResultKey is the storage key of a job's result image.
func ResultKey(jobID uuid.UUID) string {
	return resultsPrefix + jobID.String() + ".png"
}

// StoreResult stores a job's encoded PNG and returns its key.
func (s *ImageStorage) StoreResult(ctx context.Context, jobID uuid.UUID, png []byte) (string, error) {
	key := ResultKey(jobID)
	if err := s.backend.Put(ctx, key, bytes.NewReader(png)); err != nil {
		return "", fmt.Errorf("failed to store result image: %w", err)
	}
	return key, nil
}

// Open returns a reader for a stored result. Callers close it.
func (s *ImageStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Delete removes a stored result.
func (s *ImageStorage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// CleanupOldImages removes results older than maxAge and returns how many
// were removed. Individual failures are logged and skipped.
func (s *ImageStorage) CleanupOldImages(ctx context.Context, maxAge time.Duration) (int, error) {
	files, err := s.backend.ListWithInfo(ctx, resultsPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list result images: %w", err)
	}

	cutoff := time.Now().Add(-maxAge).Unix()
	removed := 0
	for _, file := range files {
		if file.ModTime >= cutoff {
			continue
		}
		if err := s.backend.Delete(ctx, file.Key); err != nil {
			logging.WarnWithComponent(logging.ComponentStorage, "Failed to remove old image", "key", file.Key, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
