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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"sofia/internal/metrics"
	"sofia/internal/ratelimit"
	"sofia/internal/usertoken"
	"sofia/internal/util"
	"sofia/pkg/audit"
	"sofia/pkg/clinical"
	"sofia/pkg/storage"
	"sofia/pkg/store"
	"sofia/services/api/internal/app"
	"sofia/services/api/internal/config"
	"sofia/services/api/internal/server"
)

const (
	webhookRetries   = 2
	webhookRetryWait = 500 * time.Millisecond
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokenTTL, err := config.ParseDuration("tokenTTL", cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token ttl: %v", err)
	}
	tokens, err := usertoken.NewManager(usertoken.Config{Secret: cfg.JWTSecret, TTL: tokenTTL})
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var archive storage.Archive
	if cfg.MinioEndpoint != "" {
		minioArchive, err := storage.NewMinioArchive(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to init document archive: %v", err)
		}
		archive = minioArchive
	}

	var notifier clinical.Notifier
	if webhook := clinical.NewWebhookNotifier(cfg.ClinicianWebhookURL, clinical.WithRetries(webhookRetries, webhookRetryWait)); webhook != nil {
		notifier = webhook
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		window, err := config.ParseDuration("rateLimitWindow", cfg.RateLimitWindow)
		if err != nil {
			log.Fatalf("failed to parse rate limit window: %v", err)
		}
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "sofia:ratelimit", cfg.RateLimitPerWindow, window)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
		defer limiter.Close()
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:          dataStore,
		Tokens:         tokens,
		EncryptionKey:  cfg.EncryptionKey,
		Archive:        archive,
		Notifier:       notifier,
		Metrics:        m,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AdminNames:     cfg.AdminNames,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	recorder := audit.NewRecorder(dataStore, util.NewEntityID, audit.WithLogger(logger), audit.WithCounter(m))
	httpServer, err := server.New(server.Config{
		App:            appCore,
		Recorder:       recorder,
		Metrics:        m,
		Gatherer:       registry,
		Limiter:        limiter,
		TrustedProxies: trusted,
		CORSOrigins:    cfg.CORSOrigins,
		Production:     cfg.IsProduction(),
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

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("sofia api listening", "addr", addr, "environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
	recorder.Wait()
	if err := dataStore.Close(); err != nil {
		logger.Error("store close error", "err", err)
	}
	slog.Info("sofia api stopped")
}
