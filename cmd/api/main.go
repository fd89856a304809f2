package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"artpost/internal/adapter/repo"
	"artpost/internal/domain"
	"artpost/internal/http/handlers"
	"artpost/internal/http/httpapi"
	"artpost/internal/infra"
	"artpost/internal/metrics"
	"artpost/internal/notify"
	"artpost/internal/pipeline"
	"artpost/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	prom := metrics.NewProm("artpost")

	metadata, closeMetadata, err := openMetadata(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open metadata repository")
	}
	defer closeMetadata()

	blobs, blobOpener, closeBlobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}
	defer closeBlobs()

	var pusher domain.Pusher = notify.Disabled{}
	if cfg.PushEnabled() {
		pusher = notify.NewWebPush(notify.VAPIDConfig{
			Subject:    cfg.VAPIDSubject,
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			TTL:        cfg.PushTTL,
		}, nil)
	} else {
		logger.Warn().Msg("VAPID keys not configured, push notifications will fail")
	}
	dispatcher := notify.NewDispatcher(pusher,
		notify.WithConcurrency(cfg.DispatchConcurrency),
		notify.WithTimeout(cfg.PushTimeout),
		notify.WithLogger(logger),
		notify.WithMetrics(prom),
	)

	p := pipeline.New(blobs, metadata, dispatcher, pipeline.Config{
		StagingDir: cfg.StagingDir,
		Payload: domain.NotificationPayload{
			Title:   cfg.NotifyTitle,
			Content: cfg.NotifyContent,
			URL:     cfg.NotifyURL,
		},
		UploadTimeout:        cfg.UploadTimeout,
		StoreTimeout:         cfg.StoreTimeout,
		StrictSubscriberRead: cfg.StrictSubscriberRead,
	}, logger, prom)

	app := &handlers.App{
		Config:   cfg,
		Logger:   logger,
		Pipeline: p,
		Records:  metadata,
		Blobs:    blobOpener,
		Metrics:  prom.Handler(),
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	go func() {
		logger.Info().
			Str("metadata_backend", cfg.MetadataBackend).
			Str("blob_backend", cfg.BlobBackend).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func openMetadata(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.MetadataRepository, func(), error) {
	switch cfg.MetadataBackend {
	case infra.BackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewRedisMetadataRepository(client, logger), func() { _ = client.Close() }, nil
	case infra.BackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		pg := repo.NewMetadataRepository(infra.NewSQLRunner(pool, logger))
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported metadata backend %q", cfg.MetadataBackend)
	}
}

func openBlobStore(ctx context.Context, cfg *infra.Config) (domain.BlobStore, handlers.BlobOpener, func(), error) {
	switch cfg.BlobBackend {
	case infra.BackendGCS:
		store, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCloudProject, cfg.GCloudKeyFile)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, closer(store), nil
	case infra.BackendFilesystem:
		store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported blob backend %q", cfg.BlobBackend)
	}
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
