// Package storage uploads generated artifacts to object storage and returns
// their public URLs.
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ObjectStore stores data under key and returns the public URL of the object.
// Existing objects with the same key are overwritten.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Hosts returns the hostnames a store serves objects from, for proxy
// exclusion.
type Hosts interface {
	Hosts() []string
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(key)))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
