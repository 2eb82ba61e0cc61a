package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fhuszti/picsee-preprocessor/internal/config"
	"github.com/fhuszti/picsee-preprocessor/internal/executor"
	workerHandler "github.com/fhuszti/picsee-preprocessor/internal/handler/worker"
	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
	"github.com/fhuszti/picsee-preprocessor/internal/storage"
	"github.com/fhuszti/picsee-preprocessor/internal/task"
	"github.com/fhuszti/picsee-preprocessor/internal/usecase/staging"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "❌  Configuration error: %v", err)
		os.Exit(1)
	}
	logger.Init()

	if cfg.RedisAddr == "" {
		logger.Error(ctx, "⚠️  REDIS_ADDR must be set to run the worker")
		os.Exit(1)
	}

	strg, err := storage.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize MinIO client: %v", err)
		os.Exit(1)
	}
	stagingBucket, err := strg.WithBucket(ctx, cfg.StagingBucket)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize bucket %q: %v", cfg.StagingBucket, err)
		os.Exit(1)
	}
	uploadBucket, err := strg.WithBucket(ctx, cfg.UploadBucket)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize bucket %q: %v", cfg.UploadBucket, err)
		os.Exit(1)
	}

	factory, err := executor.NewFactory(cfg.Preprocess.Executor, cfg.Preprocess.TransformerBin)
	if err != nil {
		logger.Errorf(ctx, "❌  Invalid executor configuration: %v", err)
		os.Exit(1)
	}
	pool, err := preprocess.New(cfg.Preprocess.PoolConfig(), factory)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to start image preprocessor: %v", err)
		os.Exit(1)
	}

	preprocessSvc := staging.NewObjectPreprocessor(pool, stagingBucket, uploadBucket)

	mux := asynq.NewServeMux()
	mux.HandleFunc(task.TypePreprocessImage, func(ctx context.Context, t *asynq.Task) error {
		p, err := task.ParsePreprocessImagePayload(t)
		if err != nil {
			return err
		}
		return workerHandler.PreprocessImageHandler(ctx, p, preprocessSvc)
	})

	runWorker(ctx, mux, cfg, pool)
}

func runWorker(ctx context.Context, mux *asynq.ServeMux, cfg *config.Settings, pool *preprocess.Pool) {
	// one in-flight task per slot
	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, asynq.Config{
		Concurrency: pool.Size(),
		Queues:      map[string]int{task.QueueImages: 1},
	})

	// Run server in background
	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Errorf(context.Background(), "❌  Worker failed: %v", err)
			os.Exit(1)
		}
	}()
	logger.Infof(ctx, "🚀 Worker started with %d execution contexts", pool.Size())

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info(ctx, "🛑 Shutdown signal received, exiting…")

	// stop accepting new tasks and give in-flight ones up to 30 sec
	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn(ctx, "⚠️  Worker shutdown timed out")
	}

	pool.Terminate()
	logger.Info(ctx, "✅  Worker gracefully stopped")
}
