package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore persists objects on local disk. publicURL is the address the
// base directory is served from.
type FileStore struct {
	basePath  string
	publicURL string
	logger    *zap.Logger
}

func NewFileStore(basePath, publicURL string, logger *zap.Logger) (*FileStore, error) {
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create base path: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		basePath:  basePath,
		publicURL: publicURL,
		logger:    logger.With(zap.String("component", "file_store")),
	}, nil
}

func (s *FileStore) BasePath() string {
	return s.basePath
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}

	s.logger.Debug("stored object",
		zap.String("key", cleanKey),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)),
	)
	return joinURL(s.publicURL, cleanKey), nil
}

func (s *FileStore) Hosts() []string {
	u, err := url.Parse(s.publicURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}
