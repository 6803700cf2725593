package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/api"
	"github.com/alaskacg/tongass-listings/internal/api/handler"
	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/cache"
	"github.com/alaskacg/tongass-listings/internal/config"
	"github.com/alaskacg/tongass-listings/internal/ecosystem"
	"github.com/alaskacg/tongass-listings/internal/observability"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/internal/service"
	"github.com/alaskacg/tongass-listings/internal/storage"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

// version 由 -ldflags "-X main.version=..." 注入
var version = "dev"

// @title Tongass Listings API
// @version 1.0
// @description Regional classified listings with ecosystem hub syndication.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = repository.Close(db) }()
	if cfg.Database.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	var browse *cache.BrowseCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			// 缓存只是加速层，连不上也照常启动
			logger.Warn("redis unavailable, browse cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			browse = cache.NewBrowseCache(rdb, cfg.Redis.BrowseTTL)
		}
		cancel()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics, err := observability.NewMetrics("tongass", prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	hubOpts := []ecosystem.Option{ecosystem.WithObserver(metrics)}
	if cfg.Ecosystem.SharedSecret != "" {
		hubOpts = append(hubOpts, ecosystem.WithSharedSecret(cfg.Ecosystem.SharedSecret))
	}
	hub := ecosystem.NewClient(cfg.Ecosystem.HubURL, cfg.Ecosystem.Timeout, hubOpts...)

	if cfg.Payments.WebhookSecret == "" {
		logger.Warn("payments.webhook_secret not set, payment webhooks will be rejected")
	}

	listings := repository.NewListingRepository(db)
	payments := repository.NewPaymentRepository(db)
	settings := service.NewSettingsService(repository.NewSiteConfigRepository(db))
	syndication := service.NewSyndicationService(listings, hub, cfg.Ecosystem.SiteTag, cfg.Ecosystem.Timeout, metrics)

	var dispatcher *service.SyncDispatcher
	stopDispatcher := func(context.Context) error { return nil }
	if cfg.Ecosystem.SyncOnActivation {
		dispatcher = service.NewSyncDispatcher(listings, syndication, metrics, cfg.Ecosystem.QueueSize, cfg.Ecosystem.Timeout)
		stopDispatcher = dispatcher.Start(cfg.Ecosystem.Workers)
	}
	lifecycle := service.NewLifecycleService(listings, settings, browse, metrics, dispatcher)

	h := handler.NewHandler(handler.Services{
		Listings:       service.NewListingService(listings, store, browse, metrics),
		Submission:     service.NewSubmissionService(listings, store, metrics),
		Lifecycle:      lifecycle,
		Syndication:    syndication,
		Payments:       service.NewPaymentService(payments, listings, lifecycle, settings, cfg.Payments.Currency, cfg.Payments.WebhookSecret),
		Admin:          service.NewAdminService(listings, payments),
		Settings:       settings,
		Store:          store,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Ping:           sqlDB.PingContext,
	})

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	roles := auth.NewRoleResolver(repository.NewRoleRepository(db), cfg.Auth.AdminRole, cfg.Auth.RoleTTL)
	router := api.NewRouter(h, verifier, roles, api.RouterOptions{
		Mode:              cfg.Server.Mode,
		ServiceName:       cfg.Tracing.ServiceName,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		EnableSwagger:     cfg.Server.Mode != "release",
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := stopDispatcher(sctx); err != nil {
		logger.Warn("sync dispatcher did not drain", zap.Int("pending", dispatcher.QueueLen()), zap.Error(err))
	}
	return nil
}

// openStore gridfs 用于部署，memory 用于本地开发
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("using in-memory image storage; uploads are lost on restart")
		return storage.NewMemoryStore(cfg.Storage.PublicBaseURL), func() {}, nil
	}
	client, err := storage.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}
	store, err := storage.NewGridFSStore(client.Database(cfg.Mongo.Database), cfg.Storage.Bucket, cfg.Storage.PublicBaseURL)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}
