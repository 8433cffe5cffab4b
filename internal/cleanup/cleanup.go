package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/mocapd/internal/artifacts"
	"github.com/shaiso/mocapd/internal/domain"
	"github.com/shaiso/mocapd/internal/store"
	"github.com/shaiso/mocapd/internal/telemetry"
)

// Default configuration values.
const (
	defaultRetention = 72 * time.Hour
	defaultSchedule  = "@every 6h"
)

// Причины удаления (метка метрики).
const (
	TriggerFailure   = "failure"
	TriggerRetention = "retention"
	TriggerOrphan    = "orphan"
	TriggerDelete    = "delete"
	TriggerRestart   = "restart"
)

// interruptedReason — сообщение ошибки tasks, прерванных рестартом.
const interruptedReason = "interrupted by restart"

// Slot — эксклюзивный слот, сбрасываемый при восстановлении.
type Slot interface {
	Reset() (uuid.UUID, bool)
}

// Journal помечает прерванные tasks. Реализация: *repo.TaskJournal.
type Journal interface {
	MarkInterrupted(ctx context.Context, reason string) ([]uuid.UUID, error)
}

// Service удаляет артефакты tasks и восстанавливает систему после рестарта.
//
// Каталоги удаляются только целиком и только внутри Layout.Root,
// поэтому повторное удаление безопасно и не задевает другие tasks.
type Service struct {
	store   *store.Store
	layout  artifacts.Layout
	journal Journal

	completedRetention time.Duration
	failedRetention    time.Duration
	schedule           string

	cron   *cron.Cron
	mu     sync.Mutex
	logger *slog.Logger
}

// Config — конфигурация Service.
type Config struct {
	Store  *store.Store
	Layout artifacts.Layout

	// Journal — опционален; без него Recover только сбрасывает слот.
	Journal Journal

	// CompletedRetention — срок хранения COMPLETED tasks (default: 72h).
	CompletedRetention time.Duration

	// FailedRetention — срок хранения FAILED tasks (default: 72h).
	FailedRetention time.Duration

	// Schedule — расписание sweep в формате cron (default: "@every 6h").
	Schedule string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	completed := cfg.CompletedRetention
	if completed <= 0 {
		completed = defaultRetention
	}

	failed := cfg.FailedRetention
	if failed <= 0 {
		failed = defaultRetention
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:              cfg.Store,
		layout:             cfg.Layout,
		journal:            cfg.Journal,
		completedRetention: completed,
		failedRetention:    failed,
		schedule:           schedule,
		logger:             logger,
	}
}

// ValidateSchedule проверяет cron-выражение расписания sweep.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return nil
}

// CleanupFailed удаляет артефакты упавшего task, если не запрошено их сохранение.
func (s *Service) CleanupFailed(task *domain.Task) error {
	logger := telemetry.WithTaskID(s.logger, task.ID.String())

	if task.Options.RetainIntermediate {
		logger.Info("retaining artifacts of failed task", "artifacts", len(task.Artifacts))
		return nil
	}
	if err := s.remove(task.ID, TriggerFailure); err != nil {
		return err
	}
	logger.Info("failed task artifacts removed", "artifacts", len(task.Artifacts))
	return nil
}

// RemoveTask удаляет каталог task (по запросу удаления).
func (s *Service) RemoveTask(id uuid.UUID) error {
	return s.remove(id, TriggerDelete)
}

func (s *Service) remove(id uuid.UUID, trigger string) error {
	if !artifacts.Exists(s.layout.TaskDir(id)) {
		return nil
	}
	if err := s.layout.RemoveTask(id); err != nil {
		return err
	}
	telemetry.CleanupRemoved.WithLabelValues(trigger).Inc()
	return nil
}

// SweepReport — итог одного прохода sweep.
type SweepReport struct {
	Expired int `json:"expired"`
	Orphans int `json:"orphans"`
}

// Sweep удаляет терминальные tasks старше срока хранения вместе с
// артефактами, а также каталоги без task в Store старше того же срока.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SweepReport
	var errs []error

	for _, task := range s.store.Expired(now, s.completedRetention, s.failedRetention) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.store.Delete(task.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		if err := s.remove(task.ID, TriggerRetention); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Expired++
		s.logger.Debug("expired task removed", "task_id", task.ID, "state", task.State)
	}

	orphans, err := s.removeOrphans(ctx, now)
	report.Orphans = orphans
	if err != nil {
		errs = append(errs, err)
	}

	if report.Expired > 0 || report.Orphans > 0 {
		s.logger.Info("cleanup sweep completed",
			"expired", report.Expired,
			"orphans", report.Orphans,
		)
	}
	return report, errors.Join(errs...)
}

// removeOrphans удаляет каталоги, не известные Store и не менявшиеся дольше
// максимального срока хранения. Такие каталоги остаются от прошлых запусков.
func (s *Service) removeOrphans(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.layout.TaskDirs()
	if err != nil {
		return 0, err
	}

	retention := max(s.completedRetention, s.failedRetention)
	removed := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if _, err := s.store.Get(id); err == nil {
			continue
		}
		info, err := os.Stat(s.layout.TaskDir(id))
		if err != nil || now.Sub(info.ModTime()) <= retention {
			continue
		}
		if err := s.remove(id, TriggerOrphan); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// RecoveryReport — итог восстановления после рестарта.
type RecoveryReport struct {
	SlotHolder  *uuid.UUID
	Interrupted []uuid.UUID
}

// Recover выполняется при старте до запуска оркестратора.
//
// Слот сбрасывается безусловно: ни один task не переживает рестарт.
// Если настроен журнал, tasks, бывшие QUEUED или RUNNING, помечаются
// FAILED, а их каталоги удаляются.
func (s *Service) Recover(ctx context.Context, slot Slot) (RecoveryReport, error) {
	var report RecoveryReport

	if holder, held := slot.Reset(); held {
		report.SlotHolder = &holder
		s.logger.Warn("exclusive slot was held, reset", "task_id", holder)
	}

	if s.journal == nil {
		return report, nil
	}

	ids, err := s.journal.MarkInterrupted(ctx, interruptedReason)
	if err != nil {
		return report, fmt.Errorf("mark interrupted tasks: %w", err)
	}
	report.Interrupted = ids

	var errs []error
	for _, id := range ids {
		if err := s.remove(id, TriggerRestart); err != nil {
			errs = append(errs, err)
		}
	}

	if len(ids) > 0 {
		s.logger.Warn("tasks interrupted by restart marked failed", "count", len(ids))
	}
	return report, errors.Join(errs...)
}

// Start запускает периодический sweep по расписанию.
func (s *Service) Start(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))

	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("cleanup sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	c.Start()

	s.logger.Info("cleanup scheduler started",
		"schedule", s.schedule,
		"completed_retention", s.completedRetention,
		"failed_retention", s.failedRetention,
	)
	return nil
}

// Stop останавливает расписание и ждёт завершения текущего sweep.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("cleanup scheduler stopped")
}
