package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"careerHub/internal/api"
	"careerHub/internal/auth"
	"careerHub/internal/catalog"
	"careerHub/internal/checkout"
	"careerHub/internal/config"
	"careerHub/internal/database"
	"careerHub/internal/entitlement"
	"careerHub/internal/logging"
	"careerHub/internal/notify"
	"careerHub/internal/payment"
	"careerHub/internal/profile"
	"careerHub/internal/resume"
	"careerHub/internal/storage"
)

var version = "dev"

func main() {
	cfg := config.MustLoad()

	logger, err := logging.New(cfg.Log, "api")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	slog.SetDefault(logger)

	flushSentry, err := logging.InitSentry(cfg.Sentry, version)
	if err != nil {
		log.Fatalf("init sentry: %v", err)
	}
	defer flushSentry()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
		slog.String("db", cfg.Database.Name),
	)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	authService, err := auth.NewAuthService(
		[]byte(cfg.Auth.PrivateKeyPEM),
		[]byte(cfg.Auth.PublicKeyPEM),
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	gateway, err := payment.NewGateway(cfg.Payment)
	if err != nil {
		log.Fatalf("init payment gateway: %v", err)
	}

	catalogSvc := catalog.NewService(db)
	entitlements := entitlement.NewService(db, nil)
	workflow := checkout.NewWorkflow(db, catalogSvc, entitlements, gateway, checkout.Options{
		Currency:   cfg.Payment.Currency,
		SessionTTL: cfg.Checkout.SessionTTL,
		Notifier:   notify.NewRedisPublisher(redisClient),
		Logger:     logger,
	})

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, api.Dependencies{
		Config:       cfg,
		DB:           db,
		Redis:        redisClient,
		Queue:        asynqClient,
		Auth:         authService,
		Storage:      storageClient,
		Scanner:      storage.NewScanner(cfg.Clamd.Addr),
		Catalog:      catalogSvc,
		Entitlements: entitlements,
		Profiles:     profile.NewService(db, entitlements),
		Resumes:      resume.NewStore(db),
		Workflow:     workflow,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr), slog.String("payment_provider", gateway.Provider()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
	logger.Info("api stopped")
}
