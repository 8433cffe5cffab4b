package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/mocapd/internal/cleanup"
	"github.com/shaiso/mocapd/internal/domain"
	"github.com/shaiso/mocapd/internal/orchestrator"
)

// Service — операции оркестратора, доступные через API.
// Реализация: *orchestrator.Orchestrator.
type Service interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (*domain.Task, error)
	Get(id uuid.UUID) (*domain.Task, error)
	Position(id uuid.UUID) int
	List() []*domain.Task
	Delete(ctx context.Context, id uuid.UUID) error
	QueueInfo() orchestrator.QueueInfo
	Stats() orchestrator.Stats
	IsStopped() bool
}

// Sweeper запускает внеплановую очистку. Реализация: *cleanup.Service.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (cleanup.SweepReport, error)
}

// History отдаёт журнал tasks. Реализация: *repo.TaskJournal.
// Get возвращает ошибку, обёрнутую repo.ErrNotFound, если записи нет.
type History interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Recent(ctx context.Context, limit int) ([]*domain.Task, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	service Service
	sweeper Sweeper
	history History
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service Service

	// Sweeper и History — опциональны.
	Sweeper Sweeper
	History History

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: cfg.Service,
		sweeper: cfg.Sweeper,
		history: cfg.History,
		logger:  logger,
	}
}
