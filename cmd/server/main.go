package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/database"
	"github.com/vigilcbt/vigil-backend/internal/handler"
	"github.com/vigilcbt/vigil-backend/internal/logger"
	"github.com/vigilcbt/vigil-backend/internal/repository"
	"github.com/vigilcbt/vigil-backend/internal/router"
	"github.com/vigilcbt/vigil-backend/internal/service"
	"github.com/vigilcbt/vigil-backend/internal/validator"
	"github.com/vigilcbt/vigil-backend/internal/worker"
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
		Msg("Starting Vigil Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

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
	studentRepo := repository.NewStudentRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	flaggedEventRepo := repository.NewFlaggedEventRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	tokenService, err := service.NewTokenService(cfg.EntryTokenSecret, cfg.EntryTokenExpiry, submissionRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("Token service init failed")
	}
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)
	securityService := service.NewSecurityService(cfg, log)
	submissionService := service.NewSubmissionService(cfg, rdb, questionRepo, submissionRepo, flaggedEventRepo, log)
	sessionService := service.NewSessionService(
		cfg, rdb, tokenService, examService, securityService, submissionService,
		studentRepo, submissionRepo, log,
	)
	proctorService := service.NewProctorService(cfg, rdb, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(cfg, sessionService, log),
		WS:      handler.NewWSHandler(cfg, sessionService, proctorService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	flagWorker := worker.NewFlagWorker(pool, rdb, log)
	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	deadlineWorker := worker.NewDeadlineWorker(sessionService, rdb, log)

	go flagWorker.Start(workerCtx)
	go autosaveWorker.Start(workerCtx)
	go deadlineWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenService, handlers, cfg)

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

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
