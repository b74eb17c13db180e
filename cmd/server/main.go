package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	proctorEventRepo := repository.NewProctorEventRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	examService := service.NewExamService(examRepo, service.NewRedisCache(rdb), cfg.ExamCacheTTL, log)
	monitorService := service.NewMonitorService(monitorRepo)
	publisher := service.NewProctorPublisher(service.NewRedisBus(rdb), log)
	sessionRegistry := service.NewSessionRegistry(rdb)

	// ─── Initialize Handlers ──────────────────────────────────────────
	wsHandler := handler.NewWSHandler(examService, attemptRepo, authService, sessionRegistry, publisher, handler.WSOptions{
		AllowedOrigins:      cfg.AllowedOrigins,
		CameraTimeout:       cfg.CameraTimeout,
		SubmitTimeout:       cfg.SubmitTimeout,
		IntentRatePerSecond: cfg.IntentRatePerSecond,
		IntentBurst:         cfg.IntentBurst,
	}, log)

	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(examService, log),
		WS:            wsHandler,
		Monitor:       handler.NewMonitorHandler(handler.NewRedisSubscriber(rdb), examService, monitorService, log),
		System: handler.NewSystemHandler(map[string]handler.Pinger{
			"postgres": pool,
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	limiter := middleware.NewRateLimiter(cfg.HTTPRatePerMinute)
	eventWorker := worker.NewProctorEventWorker(proctorEventRepo, worker.NewRedisQueue(rdb), cfg.ProctorWorkerBatch, log)

	workers.Add(3)
	go func() { defer workers.Done(); limiter.Run(workerCtx) }()
	go func() { defer workers.Done(); publisher.Run(workerCtx) }()
	go func() { defer workers.Done(); eventWorker.Start(workerCtx) }()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all active exams into Redis BEFORE accepting traffic so the
	// first wave of sessions does not stampede PostgreSQL.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close exam sockets so every session releases its camera and lease.
	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), cfg.SubmitTimeout)
	defer sessionCancel()
	if err := wsHandler.Shutdown(sessionCtx); err != nil {
		log.Error().Err(err).Msg("Exam sessions did not close in time")
	}

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
