package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"careerHub/internal/config"
	"careerHub/internal/database"
	"careerHub/internal/logging"
	"careerHub/internal/metrics"
	"careerHub/internal/notify"
	"careerHub/internal/pdf"
	"careerHub/internal/resume"
	"careerHub/internal/storage"
	"careerHub/internal/tasks"
	"careerHub/internal/worker"
)

var version = "dev"

func main() {
	cfg := config.MustLoad()

	logger, err := logging.New(cfg.Log, "worker")
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
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

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

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(cfg.Checkout.ReconcileSpec, tasks.NewPaymentReconcileTask()); err != nil {
		log.Fatalf("register reconcile schedule: %v", err)
	}
	if _, err := scheduler.Register(cfg.Checkout.PurgeSpec, tasks.NewCheckoutPurgeTask()); err != nil {
		log.Fatalf("register purge schedule: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer scheduler.Shutdown()

	pdfHandler := worker.NewResumePDFHandler(
		resume.NewStore(db),
		storageClient,
		pdf.ChromeRenderer{Timeout: cfg.Worker.RenderTimeout, Bin: cfg.Worker.ChromeBin},
		notify.NewRedisPublisher(redisClient),
		logger,
	)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeResumePDF, pdfHandler)
	mux.Handle(tasks.TypePaymentReconcile, worker.NewReconcileHandler(db, cfg.Payment.PendingTTL, nil, logger))
	mux.Handle(tasks.TypeCheckoutPurge, worker.NewPurgeHandler(db, nil, logger))

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", concurrency),
		slog.String("reconcile_spec", cfg.Checkout.ReconcileSpec),
		slog.String("purge_spec", cfg.Checkout.PurgeSpec),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
