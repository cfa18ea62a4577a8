package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3-compatible bucket.
type S3Options struct {
	// Endpoint is the service URL, e.g. https://s3.us-east-1.amazonaws.com
	// or a MinIO/R2/OSS address.
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicURL is the address objects are read from. Defaults to the
	// path-style object URL on Endpoint.
	PublicURL      string
	ForcePathStyle bool
}

// S3Store writes objects to an S3-compatible bucket.
type S3Store struct {
	client    *minio.Client
	bucket    string
	endpoint  string
	publicURL string
}

func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("storage: s3 endpoint and bucket are required")
	}
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("storage: invalid s3 endpoint %q", opts.Endpoint)
	}

	lookup := minio.BucketLookupAuto
	if opts.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:       endpoint.Scheme == "https",
		Region:       opts.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = joinURL(opts.Endpoint, opts.Bucket)
	}
	return &S3Store{
		client:    client,
		bucket:    opts.Bucket,
		endpoint:  opts.Endpoint,
		publicURL: publicURL,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectPath, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=604800",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3: %w", objectPath, err)
	}

	return joinURL(s.publicURL, objectPath), nil
}

// Hosts returns the endpoint and public URL hosts.
func (s *S3Store) Hosts() []string {
	var hosts []string
	for _, raw := range []string{s.endpoint, s.publicURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		if len(hosts) == 0 || hosts[0] != u.Hostname() {
			hosts = append(hosts, u.Hostname())
		}
	}
	return hosts
}
