package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	storagego "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStore writes objects to a public Supabase Storage bucket.
type SupabaseStore struct {
	client  *storagego.Client
	bucket  string
	baseURL string
}

func NewSupabaseStore(supabaseURL, serviceKey, bucket string) (*SupabaseStore, error) {
	baseURL := strings.TrimRight(supabaseURL, "/")
	client, err := supabase.NewClient(baseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStore{
		client:  client.Storage,
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

// Put uploads with upsert so a retried job overwrites its earlier tiles.
func (s *SupabaseStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	storagePath, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	upsert := true
	_, err = s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(data), storagego.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return s.PublicURL(storagePath), nil
}

func (s *SupabaseStore) PublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, storagePath)
}

func (s *SupabaseStore) Hosts() []string {
	u, err := url.Parse(s.baseURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}
