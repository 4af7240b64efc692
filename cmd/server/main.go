package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tubeshelf/internal/batch"
	"tubeshelf/internal/config"
	"tubeshelf/internal/downloader"
	"tubeshelf/internal/events"
	apphttp "tubeshelf/internal/http"
	"tubeshelf/internal/metadata"
	"tubeshelf/internal/repository/sqlite"
	"tubeshelf/internal/service"
	"tubeshelf/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Fatalf("parse log level: %v", err)
	}
	logger.SetLevel(level)

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}
	if strings.TrimSpace(cfg.Auth.RegisterPassword) == "" {
		logger.Fatalf("auth registration password is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	videoRepo := sqlite.NewVideoRepository(db)
	downloadRepo := sqlite.NewDownloadRepository(db)
	collectionRepo := sqlite.NewCollectionRepository(db)
	presetRepo := sqlite.NewPresetRepository(db)
	batchRepo := sqlite.NewBatchRepository(db)
	userRepo := sqlite.NewUserRepository(db)

	if err := sqlite.InitAll(ctx, videoRepo, downloadRepo, collectionRepo, presetRepo, batchRepo, userRepo); err != nil {
		logger.Fatalf("init database: %v", err)
	}

	fetcher := metadata.NewYouTubeFetcher(nil, logger)
	downloadService := service.NewDownloadService(downloadRepo, videoRepo)
	libraryService := service.NewLibraryService(videoRepo, collectionRepo, fetcher)
	batchService := service.NewBatchService(presetRepo, batchRepo)
	userService := service.NewUserService(userRepo, service.AuthConfig{
		JWTSecret:        cfg.Auth.JWTSecret,
		RegisterPassword: cfg.Auth.RegisterPassword,
		TokenTTL:         time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
	})

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	broker := events.NewBroker(logger)
	manager := downloader.NewManager(downloader.Config{
		DataDir:       cfg.Download.DataDir,
		ToolPath:      cfg.Download.ToolPath,
		FFmpegPath:    cfg.Download.FFmpegPath,
		MaxConcurrent: cfg.Download.MaxConcurrent,
		ErrorMaxLen:   cfg.Download.ErrorMaxLen,
		Archive: downloader.ArchiveConfig{
			Bucket:    cfg.Storage.Bucket,
			KeyPrefix: cfg.Storage.KeyPrefix,
		},
		Logger: logger,
	}, downloadService, libraryService, downloader.NewRegistry(), broker, storageSvc)

	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start manager: %v", err)
	}
	if err := manager.Resume(ctx); err != nil {
		logger.Warnf("resume downloads: %v", err)
	}

	coordinator := batch.NewCoordinator(batchService, libraryService, downloadService, manager, logger)
	coordinator.Start(ctx)
	if err := coordinator.Resume(ctx); err != nil {
		logger.Warnf("resume batches: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Config{
		Downloads: downloadService,
		Library:   libraryService,
		Batches:   batchService,
		Users:     userService,
		Manager:   manager,
		Queue:     coordinator,
		Broker:    broker,
		Storage:   storageSvc,
		Bucket:    cfg.Storage.Bucket,
		Logger:    logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	// Stop downloads first so a running batch sees its current item end.
	manager.Shutdown()
	coordinator.Shutdown()

	logger.Info("bye")
}

// buildStorage returns nil when no bucket is configured; archiving is then
// skipped.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("storage bucket not configured, archiving disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
