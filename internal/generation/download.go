package generation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Downloader fetches a remote artifact.
type Downloader interface {
	Download(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// HTTPDownloader downloads over HTTP, retrying failed attempts with backoff.
type HTTPDownloader struct {
	client     *http.Client
	maxRetries int
	backoffs   []time.Duration
}

func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDownloader{
		client:     client,
		maxRetries: 3,
		backoffs:   []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// WithBackoff overrides the retry schedule. maxRetries counts attempts.
func (d *HTTPDownloader) WithBackoff(maxRetries int, backoffs ...time.Duration) *HTTPDownloader {
	d.maxRetries = maxRetries
	d.backoffs = backoffs
	return d
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
	)
	err := retryWithBackoff(ctx, d.maxRetries, d.backoffs, func() error {
		var err error
		data, contentType, err = d.get(ctx, url)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

func (d *HTTPDownloader) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("failed to download file: status %d, body: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// retryWithBackoff runs fn up to maxRetries times, sleeping backoffs[i]
// after the i-th failure. A done context stops the retries.
func retryWithBackoff(ctx context.Context, maxRetries int, backoffs []time.Duration, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if i == maxRetries-1 {
			break
		}
		var backoff time.Duration
		if i < len(backoffs) {
			backoff = backoffs[i]
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
