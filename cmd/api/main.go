package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidstream/internal/api"
	"vidstream/internal/config"
	"vidstream/internal/db"
	"vidstream/internal/logging"
	"vidstream/internal/models"
	"vidstream/internal/redis"
	"vidstream/internal/storage"
	"vidstream/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_api", "service", "vidstream-api", "http_addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL and bring the schema up to date
	if err := db.RunMigrations(ctx, cfg.DBDSN); err != nil {
		logger.Error("migrations_failed", "error", err)
		os.Exit(1)
	}

	dbConn, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		dbConn.Close()
		os.Exit(1)
	}

	// Media store: real S3 when configured, deterministic simulator otherwise
	var media storage.MediaStore
	if cfg.S3Bucket != "" {
		media, err = storage.NewS3Client(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			logger.Error("s3_init_failed", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("s3_not_configured", "using_simulator", true)
		media = storage.NewSimulator("vidstream", cfg.S3Endpoint)
	}

	if cfg.SeedVideos != "" {
		seedVideos(ctx, logger, dbConn, cfg.SeedVideos)
	}

	srv := api.NewServer(logger, dbConn, redisClient, media, cfg)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("api_started", "addr", cfg.HTTPAddr)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("api_stopped")
}

// seedVideos loads a json fixture of videos, dev convenience so watch
// history has something to join against. Failures are non-fatal.
func seedVideos(ctx context.Context, logger *slog.Logger, dbConn *db.DB, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("seed_read_failed", "path", path, "error", err)
		return
	}

	var videos []models.Video
	if err := json.Unmarshal(raw, &videos); err != nil {
		logger.Warn("seed_parse_failed", "path", path, "error", err)
		return
	}

	seedCtx, cancel := context.WithTimeout(ctx, 1*time.Minute)
	defer cancel()

	inserted, err := store.NewVideos(dbConn).InsertMany(seedCtx, videos)
	if err != nil {
		logger.Warn("seed_insert_failed", "path", path, "error", err)
		return
	}
	logger.Info("seed_videos_loaded", "path", path, "inserted", inserted)
}
