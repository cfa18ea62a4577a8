package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"midjourney-adapter/internal/imagesplit"
	"midjourney-adapter/internal/metrics"
	"midjourney-adapter/internal/progress"
	"midjourney-adapter/internal/storage"
)

// Finisher turns a finished task's artifacts into stored public URLs. Once
// the source artifact has been downloaded nothing it does fails the job: on
// any later error it returns the provider's own URLs.
type Finisher struct {
	downloader Downloader
	store      storage.ObjectStore
	progress   *progress.Publisher
	metrics    *metrics.Collector
	logger     *zap.Logger
	keyPrefix  string
	split      func([]byte) ([][]byte, error)
}

func NewFinisher(d Downloader, store storage.ObjectStore, pub *progress.Publisher, m *metrics.Collector, keyPrefix string, logger *zap.Logger) *Finisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finisher{
		downloader: d,
		store:      store,
		progress:   pub,
		metrics:    m,
		logger:     logger.With(zap.String("component", "finisher")),
		keyPrefix:  strings.Trim(keyPrefix, "/"),
		split:      imagesplit.Split,
	}
}

// ArtifactKey is the storage key of the index-th artifact of a task.
func (f *Finisher) ArtifactKey(provider ProviderName, taskID string, index int, ext string) string {
	return path.Join(f.keyPrefix, provider.Namespace(), taskID, fmt.Sprintf("%d%s", index, ext))
}

// FinishComposite splits the 2x2 composite at artifactURL and uploads the
// four tiles. Only a failed download is returned as an error.
func (f *Finisher) FinishComposite(ctx context.Context, correlationID string, provider ProviderName, taskID, artifactURL string) ([]string, error) {
	f.progress.Info(ctx, correlationID, "Downloading image %s", artifactURL)
	data, _, err := f.downloader.Download(ctx, artifactURL)
	if err != nil {
		f.progress.Error(ctx, correlationID, "Failed to download image %s: %s", artifactURL, err)
		return nil, &Error{
			Kind:     ErrArtifact,
			Provider: provider,
			TaskID:   taskID,
			Message:  "failed to download artifact",
			Cause:    err,
		}
	}

	f.progress.Info(ctx, correlationID, "Splitting image into 4 pieces")
	tiles, err := f.split(data)
	if err != nil {
		f.progress.Warn(ctx, correlationID, "Failed to split image, returning original image: %s", err)
		return []string{artifactURL}, nil
	}

	keys := make([]string, len(tiles))
	for i := range tiles {
		keys[i] = f.ArtifactKey(provider, taskID, i, ".jpg")
		f.progress.Info(ctx, correlationID, "Uploading file %d/%d: %s", i+1, len(tiles), keys[i])
	}

	urls, err := f.uploadAll(ctx, provider, keys, tiles, func(int) string { return "image/jpeg" })
	if err != nil {
		f.progress.Warn(ctx, correlationID, "Failed to upload split images, returning original image: %s", err)
		return []string{artifactURL}, nil
	}

	f.reportResult(ctx, correlationID, urls)
	return urls, nil
}

// FinishMany re-hosts every URL of a provider that returns the images
// separately. Any failure returns sourceURLs unchanged.
func (f *Finisher) FinishMany(ctx context.Context, correlationID string, provider ProviderName, taskID string, sourceURLs []string) ([]string, error) {
	fallback := append([]string(nil), sourceURLs...)

	blobs := make([][]byte, len(sourceURLs))
	types := make([]string, len(sourceURLs))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range sourceURLs {
		f.progress.Info(ctx, correlationID, "Downloading image %d/%d: %s", i+1, len(sourceURLs), u)
		g.Go(func() error {
			data, contentType, err := f.downloader.Download(gctx, u)
			if err != nil {
				return fmt.Errorf("download %s: %w", u, err)
			}
			blobs[i] = data
			types[i] = contentType
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.progress.Warn(ctx, correlationID, "Failed to download images, returning original urls: %s", err)
		return fallback, nil
	}

	keys := make([]string, len(sourceURLs))
	for i, u := range sourceURLs {
		keys[i] = f.ArtifactKey(provider, taskID, i, extension(types[i], u))
		f.progress.Info(ctx, correlationID, "Uploading file %d/%d: %s", i+1, len(sourceURLs), keys[i])
	}

	urls, err := f.uploadAll(ctx, provider, keys, blobs, func(i int) string { return contentTypeFor(types[i], keys[i]) })
	if err != nil {
		f.progress.Warn(ctx, correlationID, "Failed to upload images, returning original urls: %s", err)
		return fallback, nil
	}

	f.reportResult(ctx, correlationID, urls)
	return urls, nil
}

func (f *Finisher) uploadAll(ctx context.Context, provider ProviderName, keys []string, blobs [][]byte, contentType func(int) string) ([]string, error) {
	urls := make([]string, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i := range keys {
		g.Go(func() error {
			u, err := f.store.Put(gctx, keys[i], blobs[i], contentType(i))
			f.metrics.RecordUpload(string(provider), err)
			if err != nil {
				return fmt.Errorf("upload %s: %w", keys[i], err)
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (f *Finisher) reportResult(ctx context.Context, correlationID string, urls []string) {
	encoded, _ := json.Marshal(urls)
	f.progress.Info(ctx, correlationID, "Upload files result: %s", encoded)
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

func extension(contentType, rawURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := imageExtensions[mediaType]; ok {
			return ext
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if ext == ".jpeg" {
			ext = ".jpg"
		}
		for _, known := range imageExtensions {
			if ext == known {
				return ext
			}
		}
	}
	return ".jpg"
}

func contentTypeFor(contentType, key string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if _, ok := imageExtensions[mediaType]; ok {
			return mediaType
		}
	}
	for mediaType, ext := range imageExtensions {
		if strings.HasSuffix(key, ext) {
			return mediaType
		}
	}
	return "image/jpeg"
}
