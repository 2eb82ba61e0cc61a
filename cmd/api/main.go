package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/netutil"

	"github.com/fhuszti/picsee-preprocessor/internal/cache"
	"github.com/fhuszti/picsee-preprocessor/internal/config"
	"github.com/fhuszti/picsee-preprocessor/internal/executor"
	"github.com/fhuszti/picsee-preprocessor/internal/handler/api"
	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	cMiddleware "github.com/fhuszti/picsee-preprocessor/internal/middleware"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
	"github.com/fhuszti/picsee-preprocessor/internal/storage"
	"github.com/fhuszti/picsee-preprocessor/internal/task"
	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
)

// a single POST /uploads may carry this many maximum-size files
const maxFilesPerRequest = 20

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "❌  Configuration error: %v", err)
		os.Exit(1)
	}

	logger.Init()

	r := initRouter(ctx, cfg.JWTSecret)

	uploads := initBucket(ctx, cfg, cfg.UploadBucket)

	var index port.UploadIndex
	var dispatcher port.TaskDispatcher
	if cfg.RedisAddr != "" {
		ri := cache.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.UploadedTTL)
		defer func() { _ = ri.Close() }()
		d := task.NewDispatcher(cfg.RedisAddr, cfg.RedisPassword, cfg.Preprocess.TaskTimeout)
		defer func() { _ = d.Close() }()
		index, dispatcher = ri, d
		logger.Info(ctx, "✅  Redis upload index and background jobs enabled")
	} else {
		index = cache.NewMemoryIndex(cfg.UploadedTTL)
		dispatcher = task.NewNoopDispatcher()
		logger.Warn(ctx, "⚠️  Redis not configured, upload index is in-memory and background jobs are disabled")
	}

	pool := initPool(ctx, cfg.Preprocess)
	session := uploader.NewSession(pool, uploads, index, uploader.Options{
		MaxFileBytes: cfg.MaxUploadBytes,
		LocationTTL:  cfg.UploadedTTL,
	})

	r.Post("/uploads", api.AddUploadsHandler(session, cfg.MaxUploadBytes, cfg.MaxUploadBytes*maxFilesPerRequest))
	r.Get("/uploads", api.ListUploadsHandler(session))
	r.Post("/uploads/upload_all", api.UploadAllHandler(session))
	r.With(cMiddleware.WithItemID()).
		Delete("/uploads/{id}", api.DeleteUploadHandler(session))
	r.Post("/objects/preprocess", api.EnqueuePreprocessHandler(dispatcher))
	r.Get("/pool", api.PoolStatsHandler(pool))

	listenRouter(ctx, r, cfg, session)
}

func initRouter(ctx context.Context, jwtSecret string) *chi.Mux {
	logger.Info(ctx, "initialising router...")

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(cMiddleware.WithJWTAuth(jwtSecret))

	r.NotFound(api.NotFoundHandler())
	r.MethodNotAllowed(api.MethodNotAllowedHandler())

	return r
}

func initBucket(ctx context.Context, cfg *config.Settings, bucket string) port.Storage {
	strg, err := storage.NewMinioClient(
		cfg.MinioEndpoint,
		cfg.MinioAccessKey,
		cfg.MinioSecretKey,
		cfg.MinioUseSSL,
	)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize MinIO client: %v", err)
		os.Exit(1)
	}

	b, err := strg.WithBucket(ctx, bucket)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize bucket %q: %v", bucket, err)
		os.Exit(1)
	}
	return b
}

func initPool(ctx context.Context, cfg config.PreprocessSettings) *preprocess.Pool {
	factory, err := executor.NewFactory(cfg.Executor, cfg.TransformerBin)
	if err != nil {
		logger.Errorf(ctx, "❌  Invalid executor configuration: %v", err)
		os.Exit(1)
	}
	pool, err := preprocess.New(cfg.PoolConfig(), factory)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to start image preprocessor: %v", err)
		os.Exit(1)
	}
	logger.Infof(ctx, "✅  Image preprocessor started with %d %s execution contexts", pool.Size(), cfg.Executor)
	return pool
}

func listenRouter(ctx context.Context, r *chi.Mux, cfg *config.Settings, session *uploader.Session) {
	addr := ":" + strconv.Itoa(cfg.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Errorf(ctx, "❌  Listen error: %v", err)
		os.Exit(1)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConnections)

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	// start serving
	go func() {
		logger.Infof(ctx, "🚀 API listening on %s (max %d connections)", srv.Addr, cfg.MaxConnections)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(ctx, "❌  Serve error: %v", err)
			os.Exit(1)
		}
	}()

	// block until we get SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "🛑 Shutdown signal received, exiting…")

	// graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "❌  Server shutdown failed: %v", err)
	}

	session.Close()
	logger.Info(ctx, "✅  Server gracefully stopped")
}
