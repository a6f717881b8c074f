package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/noah-isme/bimbel-api/api/swagger"
	"github.com/noah-isme/bimbel-api/internal/handler"
	"github.com/noah-isme/bimbel-api/internal/repository"
	"github.com/noah-isme/bimbel-api/internal/router"
	"github.com/noah-isme/bimbel-api/internal/service"
	"github.com/noah-isme/bimbel-api/pkg/cache"
	"github.com/noah-isme/bimbel-api/pkg/config"
	"github.com/noah-isme/bimbel-api/pkg/database"
	"github.com/noah-isme/bimbel-api/pkg/jobs"
	"github.com/noah-isme/bimbel-api/pkg/logger"
	"github.com/noah-isme/bimbel-api/pkg/storage"
)

// @title Bimbel API
// @version 1.0.0
// @description Tutoring-center management API: courses, batches, schedules, notices, attendance, fees and media.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Notices.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without listing cache", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metrics, cfg.Notices.CacheTTL, logr, true)
		}
	}

	mediaStorage, err := storage.NewLocalStorage(cfg.Media.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare media storage", "error", err)
	}
	receiptStorage, err := storage.NewLocalStorage(cfg.Receipts.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare receipt storage", "error", err)
	}
	mediaSigner := storage.NewSignedURLSigner(cfg.Media.SignedURLSecret, cfg.Media.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	noticeRepo := repository.NewNoticeRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	mediaRepo := repository.NewMediaRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "bimbel-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, validate, logr)
	batchService := service.NewBatchService(batchRepo, courseRepo, userRepo, validate, logr)
	membershipService := service.NewMembershipService(membershipRepo, batchRepo, userRepo, validate, logr)
	scheduleService := service.NewScheduleService(scheduleRepo, batchRepo, validate, logr)
	noticeService := service.NewNoticeService(noticeRepo, membershipRepo, batchRepo, cacheService, validate, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, batchRepo, membershipRepo, batchRepo, mediaRepo, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, batchRepo, membershipRepo, validate, logr)
	feeService := service.NewFeeService(feeRepo, batchRepo, courseRepo, membershipRepo, userRepo, receiptStorage, validate, logr)
	mediaService := service.NewMediaService(mediaRepo, batchRepo, membershipRepo, batchRepo, mediaStorage, mediaSigner, cfg.Media.MaxFileSizeBytes, validate, logr)

	receiptQueue := jobs.NewQueue("receipts", feeService.HandleReceiptJob, jobs.QueueConfig{
		Workers:    cfg.Receipts.WorkerConcurrency,
		MaxRetries: cfg.Receipts.WorkerRetries,
		Logger:     logr,
	})
	receiptQueue.Start(ctx)
	defer receiptQueue.Stop()
	feeService.SetQueue(receiptQueue)

	sweeper := service.NewNoticeSweeper(noticeRepo, cacheService, metrics, logr, cfg.Notices.SweepInterval, cfg.Notices.SweepTimeout)
	go sweeper.Run(ctx)

	// Rendered receipts are regenerable from invoice data, so expire old files.
	go func() {
		ticker := time.NewTicker(cfg.Receipts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := receiptStorage.CleanupOlderThan(cfg.Receipts.SignedURLTTL)
				if err != nil {
					logr.Sugar().Warnw("receipt cleanup failed", "error", err)
				} else if len(deleted) > 0 {
					logr.Sugar().Infow("receipt cleanup", "deleted", len(deleted))
				}
			}
		}
	}()

	engine := router.New(cfg, logr, authService, metrics, router.Handlers{
		Auth:       handler.NewAuthHandler(authService),
		User:       handler.NewUserHandler(userService),
		Course:     handler.NewCourseHandler(courseService),
		Batch:      handler.NewBatchHandler(batchService),
		Membership: handler.NewMembershipHandler(membershipService),
		Schedule:   handler.NewScheduleHandler(scheduleService),
		Notice:     handler.NewNoticeHandler(noticeService),
		Assignment: handler.NewAssignmentHandler(assignmentService),
		Attendance: handler.NewAttendanceHandler(attendanceService),
		Fee:        handler.NewFeeHandler(feeService),
		Media:      handler.NewMediaHandler(mediaService),
		Metrics:    handler.NewMetricsHandler(metrics, db),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
