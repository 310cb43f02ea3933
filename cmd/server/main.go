package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"quizshow/internal/app"
	"quizshow/internal/config"
	"quizshow/internal/server"
	"quizshow/internal/storage"
	"quizshow/internal/sweep"
	"quizshow/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	objects, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		UseSSL:        cfg.MinioUseSSL,
		PublicBaseURL: cfg.MinioPublicBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	var janitor *sweep.Janitor
	if cfg.RedisAddr != "" {
		janitor, err = sweep.NewJanitor(sweep.Config{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     cfg.SweepStream,
			MaxRetries: cfg.SweepMaxRetries,
		}, objects)
		if err != nil {
			log.Fatalf("failed to init sweep janitor: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:   cfg.DatabaseURL,
		JWTSecret:     cfg.JWTSecret,
		SessionTTL:    cfg.SessionTTL(),
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		Objects:       objects,
		Janitor:       janitor,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:             cfg.MaxUploadBytes,
		AllowedImageExtensions:     cfg.AllowedImageExtensions,
		TrustedProxies:             cfg.TrustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("quizshow server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if janitor != nil {
		concurrency := cfg.SweepConcurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		janitor.Start(ctx, concurrency)
	}

	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
	slog.Info("quizshow server stopped")
}
