package storage

import (
	"context"
	"fmt"
	"net/url"

	gcs "cloud.google.com/go/storage"
)

const gcsPublicBase = "https://storage.googleapis.com"

// GCSStore writes objects to a Google Cloud Storage bucket that is readable
// at publicURL, or at the storage.googleapis.com address when publicURL is
// empty.
type GCSStore struct {
	client     *gcs.Client
	bucketName string
	publicURL  string
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, bucketName, publicURL string) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if publicURL == "" {
		publicURL = gcsPublicBase + "/" + bucketName
	}
	return &GCSStore{
		client:     client,
		bucketName: bucketName,
		publicURL:  publicURL,
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectPath, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}

	writer := s.client.Bucket(s.bucketName).Object(objectPath).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "public, max-age=604800"

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write object data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	return joinURL(s.publicURL, objectPath), nil
}

func (s *GCSStore) Hosts() []string {
	u, err := url.Parse(s.publicURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
