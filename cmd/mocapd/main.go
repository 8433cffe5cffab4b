// mocapd — оркестратор mocap-обработки видео на одном GPU.
//
// mocapd:
//   - Принимает заявки по HTTP и из RabbitMQ (mocap.submissions)
//   - Держит ограниченную FIFO-очередь и выполняет tasks по одному
//   - Запускает шаги tracking → track_extraction → smoothing → export → packaging
//   - Удаляет артефакты упавших и устаревших tasks
//   - Опционально ведёт журнал в PostgreSQL и загружает результаты в MinIO
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/mocapd/internal/api"
	"github.com/shaiso/mocapd/internal/artifacts"
	"github.com/shaiso/mocapd/internal/cleanup"
	"github.com/shaiso/mocapd/internal/config"
	"github.com/shaiso/mocapd/internal/executor"
	"github.com/shaiso/mocapd/internal/mq"
	"github.com/shaiso/mocapd/internal/orchestrator"
	"github.com/shaiso/mocapd/internal/pipeline"
	"github.com/shaiso/mocapd/internal/queue"
	"github.com/shaiso/mocapd/internal/repo"
	"github.com/shaiso/mocapd/internal/store"
	"github.com/shaiso/mocapd/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting mocapd")

	if err := run(logger); err != nil {
		logger.Error("mocapd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("mocapd stopped")
}

func run(logger *slog.Logger) error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "mocapd")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	cfg := config.FromEnv()

	layout, err := artifacts.NewLayout(cfg.WorkRoot)
	if err != nil {
		return err
	}

	// Toolchain
	policy, err := pipeline.ParseSmoothingPolicy(cfg.SmoothingPolicy)
	if err != nil {
		return err
	}
	toolchain := pipeline.DefaultToolchain(cfg.ProjectRoot, cfg.Python, cfg.Blender)
	if cfg.Checkpoint != "" {
		toolchain.SmoothingCheckpoint = cfg.Checkpoint
	}
	if cfg.SkipToolchainCheck {
		logger.Warn("toolchain check skipped")
	} else if err := pipeline.CheckToolchain(toolchain, policy); err != nil {
		return err
	}
	if err := cleanup.ValidateSchedule(cfg.CleanupSchedule); err != nil {
		return err
	}

	exec := executor.New(executor.Config{
		GracePeriod: cfg.KillGracePeriod,
		Logger:      logger,
	})
	runner := pipeline.New(pipeline.Config{
		Executor:    exec,
		Toolchain:   toolchain,
		Layout:      layout,
		ProjectRoot: cfg.ProjectRoot,
		Timeouts: pipeline.Timeouts{
			Tracking:   cfg.TrackingTimeout,
			Extraction: cfg.ExtractionTimeout,
			Smoothing:  cfg.SmoothingTimeout,
			Export:     cfg.ExportTimeout,
			Packaging:  cfg.PackagingTimeout,
		},
		SmoothingPolicy: policy,
		Logger:          logger,
	})

	tasks := store.New()
	admission := queue.New(cfg.QueueCapacity)
	slot := orchestrator.NewSlot()

	// PostgreSQL (опционально): журнал и блокировка экземпляра
	var (
		journal        orchestrator.Journal
		history        api.History
		cleanupJournal cleanup.Journal
	)
	if cfg.DatabaseURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("database connected")

		lock, err := repo.AcquireInstanceLock(ctx, pool, repo.LockKey(cfg.WorkRoot))
		if err != nil {
			return err
		}
		defer lock.Release(context.Background())

		taskJournal := repo.NewTaskJournal(pool)
		if err := taskJournal.EnsureSchema(ctx); err != nil {
			return err
		}
		journal = taskJournal
		history = taskJournal
		cleanupJournal = taskJournal
	} else {
		logger.Info("DB_URL not set, task journal disabled")
	}

	// Cleanup + восстановление после рестарта
	cleaner := cleanup.New(cleanup.Config{
		Store:              tasks,
		Layout:             layout,
		Journal:            cleanupJournal,
		CompletedRetention: cfg.CompletedRetention,
		FailedRetention:    cfg.FailedRetention,
		Schedule:           cfg.CleanupSchedule,
		Logger:             logger,
	})
	report, err := cleaner.Recover(ctx, slot)
	if err != nil {
		logger.Warn("recovery incomplete", "error", err)
	}
	logger.Info("recovery finished", "interrupted", len(report.Interrupted))

	if cfg.CleanupEnabled {
		if err := cleaner.Start(ctx); err != nil {
			return err
		}
		defer cleaner.Stop()
	}

	// RabbitMQ (опционально): события и приём заявок
	var (
		events orchestrator.EventPublisher
		mqConn *mq.Connection
	)
	if cfg.AMQPURL != "" {
		conn, err := mq.NewConnection(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in HTTP-only mode", "error", err)
		} else {
			defer conn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			events = mq.NewPublisher(conn, logger)
			if cfg.IntakeEnabled {
				mqConn = conn
			}
		}
	}

	// MinIO (опционально): загрузка итогового артефакта
	var uploader orchestrator.Uploader
	if cfg.MinIOEndpoint != "" {
		u, err := artifacts.NewMinIOUploader(artifacts.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Prefix:    cfg.MinIOPrefix,
			Logger:    logger,
		})
		if err != nil {
			logger.Warn("MinIO uploader disabled", "error", err)
		} else {
			uploader = u
		}
	}

	// Создаём orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Store:          tasks,
		Queue:          admission,
		Slot:           slot,
		Pipeline:       runner,
		Cleaner:        cleaner,
		Journal:        journal,
		Events:         events,
		Uploader:       uploader,
		Conn:           mqConn,
		IntakePrefetch: cfg.IntakePrefetch,
		TaskTimeout:    cfg.TaskTimeout,
		UploadTimeout:  cfg.UploadTimeout,
		Logger:         logger,
	})
	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop()

	// HTTP: API + /metrics
	handler := api.NewHandler(api.Config{
		Service: orch,
		Sweeper: cleaner,
		History: history,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Ожидаем сигнал завершения или ошибку сервера
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}
