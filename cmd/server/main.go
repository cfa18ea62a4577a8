package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"midjourney-adapter/internal/config"
	"midjourney-adapter/internal/credentials"
	"midjourney-adapter/internal/generation"
	"midjourney-adapter/internal/goapi"
	"midjourney-adapter/internal/handlers"
	"midjourney-adapter/internal/httpclient"
	"midjourney-adapter/internal/logger"
	"midjourney-adapter/internal/metrics"
	"midjourney-adapter/internal/middleware"
	"midjourney-adapter/internal/progress"
	"midjourney-adapter/internal/storage"
	"midjourney-adapter/internal/youchuan"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	bus, closeBus, err := newBus(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize progress bus", zap.Error(err))
	}
	defer closeBus()

	store, closeStore, err := newStore(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer closeStore()

	// Uploads to our own storage never go through the proxy.
	noProxy := append([]string{}, cfg.Proxy.Exclude...)
	if h, ok := store.(storage.Hosts); ok {
		noProxy = append(noProxy, h.Hosts()...)
	}
	proxyURL := ""
	if cfg.Proxy.Enabled {
		proxyURL = cfg.Proxy.URL
	}

	goapiHTTP := httpclient.New(httpclient.Options{
		Timeout:   cfg.GoAPI.RequestTimeout,
		ProxyURL:  proxyURL,
		NoProxy:   noProxy,
		RateLimit: cfg.GoAPI.RateLimit,
	})
	youchuanHTTP := httpclient.New(httpclient.Options{
		Timeout:   cfg.Youchuan.RequestTimeout,
		ProxyURL:  proxyURL,
		NoProxy:   noProxy,
		RateLimit: cfg.Youchuan.RateLimit,
	})
	logRoute(zl, "goapi", goapiHTTP, cfg.GoAPI.BaseURL)
	logRoute(zl, "youchuan", youchuanHTTP, cfg.Youchuan.BaseURL)

	goapiClient := goapi.NewClient(cfg.GoAPI.BaseURL, goapiHTTP)
	youchuanClient := youchuan.NewClient(cfg.Youchuan.BaseURL, youchuanHTTP)
	downloader := generation.NewHTTPDownloader(httpclient.New(httpclient.Options{
		Timeout:  cfg.Artifact.DownloadTimeout,
		ProxyURL: proxyURL,
		NoProxy:  noProxy,
	}))

	decoder := credentials.JSONDecoder{}
	backends := []generation.Backend{
		{
			Provider: goapiClient,
			Resolver: credentials.NewResolver(string(generation.ProviderGoAPI), credentials.GoAPIFields,
				credentials.Credential{APIKeyOrAppID: cfg.GoAPI.APIKey}, decoder),
			Policy:      generation.PollPolicy{Timeout: cfg.GoAPI.Poll.Timeout, Interval: cfg.GoAPI.Poll.Interval},
			ProcessMode: cfg.GoAPI.ProcessMode,
		},
		{
			Provider: youchuanClient,
			Resolver: credentials.NewResolver(string(generation.ProviderYouchuan), credentials.YouchuanFields,
				credentials.Credential{APIKeyOrAppID: cfg.Youchuan.AppID, Secret: cfg.Youchuan.Secret}, decoder),
			Policy: generation.PollPolicy{Timeout: cfg.Youchuan.Poll.Timeout, Interval: cfg.Youchuan.Poll.Interval},
		},
	}

	publisher := progress.NewPublisher(bus, zl)
	poller := generation.NewPoller(publisher, collector, zl)
	finisher := generation.NewFinisher(downloader, store, publisher, collector, cfg.Artifact.KeyPrefix, zl)
	orchestrator := generation.NewOrchestrator(backends, poller, finisher, publisher, collector, zl)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(zl, collector))

	// Public endpoints
	router.GET("/healthz", handlers.HealthHandler)
	router.GET("/manifest.json", handlers.ManifestHandler(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	if cfg.Storage.Driver == config.StorageDriverFilesystem {
		router.Static("/static", cfg.Storage.Filesystem.BasePath)
	}

	// Log streams carry no secrets and are opened by browsers without
	// credentials.
	logsHandler := handlers.NewLogsHandler(bus, collector, zl)
	logsHandler.Register(router)

	api := router.Group("/")
	api.Use(middleware.AuthMiddleware(cfg.Auth))
	handlers.NewGenerationHandler(orchestrator, zl).Register(api)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: logsHandler.Handler(router),
	}

	go func() {
		zl.Info("Server starting", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// newBus returns the Redis bus when redis.url is set so several replicas
// share one progress channel, and the in-process bus otherwise.
func newBus(ctx context.Context, cfg *config.Config, zl *zap.Logger) (progress.Bus, func(), error) {
	if cfg.Redis.URL == "" {
		zl.Info("Using in-memory progress bus")
		return progress.NewMemoryBus(), func() {}, nil
	}
	bus, err := progress.NewRedisBus(ctx, cfg.Redis.URL, cfg.Redis.Prefix, zl)
	if err != nil {
		return nil, nil, err
	}
	zl.Info("Using redis progress bus", zap.String("prefix", cfg.Redis.Prefix))
	return bus, func() {
		if err := bus.Close(); err != nil {
			zl.Warn("Failed to close redis bus", zap.Error(err))
		}
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (storage.ObjectStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverFilesystem:
		store, err := storage.NewFileStore(cfg.Storage.Filesystem.BasePath, cfg.Storage.Filesystem.PublicURL, zl)
		return store, func() {}, err
	case config.StorageDriverGCS:
		store, err := storage.NewGCSStore(ctx, cfg.Storage.GCS.Bucket, cfg.Storage.GCS.PublicURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				zl.Warn("Failed to close gcs client", zap.Error(err))
			}
		}, nil
	case config.StorageDriverS3:
		s3 := cfg.Storage.S3
		store, err := storage.NewS3Store(storage.S3Options{
			Endpoint:        s3.Endpoint,
			Region:          s3.Region,
			Bucket:          s3.Bucket,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			PublicURL:       s3.PublicURL,
			ForcePathStyle:  s3.ForcePathStyle,
		})
		return store, func() {}, err
	default:
		store, err := storage.NewSupabaseStore(cfg.Storage.Supabase.URL, cfg.Storage.Supabase.Key, cfg.Storage.Supabase.Bucket)
		return store, func() {}, err
	}
}

// logRoute reports whether requests to target leave through the proxy.
func logRoute(zl *zap.Logger, name string, client *http.Client, target string) {
	proxy, err := httpclient.ProxyFor(client, target)
	switch {
	case err != nil:
		zl.Warn("Failed to resolve outbound proxy", zap.String("client", name), zap.Error(err))
	case proxy != nil:
		zl.Info("Outbound requests use proxy", zap.String("client", name), zap.String("proxy", proxy.Redacted()))
	default:
		zl.Info("Outbound requests are direct", zap.String("client", name))
	}
}
