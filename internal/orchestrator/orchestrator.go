package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shaiso/mocapd/internal/domain"
	"github.com/shaiso/mocapd/internal/mq"
	"github.com/shaiso/mocapd/internal/pipeline"
	"github.com/shaiso/mocapd/internal/queue"
	"github.com/shaiso/mocapd/internal/store"
	"github.com/shaiso/mocapd/internal/telemetry"
)

// Default configuration values.
const (
	defaultTaskTimeout   = 1200 * time.Second
	defaultUploadTimeout = 5 * time.Minute
	defaultNotifyTimeout = 5 * time.Second
)

// Pipeline выполняет шаги одного task. Реализация: *pipeline.Runner.
type Pipeline interface {
	Run(ctx context.Context, job pipeline.Job, rep pipeline.Reporter) *pipeline.Result
}

// Cleaner удаляет артефакты tasks. Реализация: *cleanup.Service.
type Cleaner interface {
	CleanupFailed(task *domain.Task) error
	RemoveTask(id uuid.UUID) error
}

// Journal сохраняет snapshot task. Реализация: *repo.TaskJournal.
type Journal interface {
	Save(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EventPublisher публикует события жизненного цикла. Реализация: *mq.Publisher.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, eventType mq.MessageType, payload mq.TaskEventPayload) error
}

// Uploader загружает итоговый артефакт. Реализация: *artifacts.MinIOUploader.
type Uploader interface {
	Upload(ctx context.Context, taskID uuid.UUID, localPath string) (string, error)
}

// Orchestrator принимает заявки и выполняет tasks по одному.
type Orchestrator struct {
	store    *store.Store
	queue    *queue.Queue
	slot     *Slot
	pipeline Pipeline
	cleaner  Cleaner

	// Опциональные интеграции (nil — отключено)
	journal  Journal
	events   EventPublisher
	uploader Uploader

	// Приём заявок из брокера
	conn           *mq.Connection
	intake         *mq.Consumer
	intakePrefetch int

	// wake — сигнал циклу: новая заявка или освобождение слота.
	wake chan struct{}

	// Configuration
	taskTimeout   time.Duration
	uploadTimeout time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Store    *store.Store
	Queue    *queue.Queue
	Slot     *Slot
	Pipeline Pipeline
	Cleaner  Cleaner

	// Journal, Events, Uploader — опциональны.
	Journal  Journal
	Events   EventPublisher
	Uploader Uploader

	// Conn — соединение для приёма заявок из mocap.submissions (nil — только HTTP).
	Conn *mq.Connection

	// IntakePrefetch — prefetch consumer заявок (default: 1).
	IntakePrefetch int

	// TaskTimeout — общий лимит времени task (default: 20m).
	TaskTimeout time.Duration

	// UploadTimeout — лимит загрузки итогового артефакта (default: 5m).
	UploadTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}

	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = defaultUploadTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := cfg.Store
	if st == nil {
		st = store.New()
	}

	q := cfg.Queue
	if q == nil {
		q = queue.New(0)
	}

	slot := cfg.Slot
	if slot == nil {
		slot = NewSlot()
	}

	return &Orchestrator{
		store:          st,
		queue:          q,
		slot:           slot,
		pipeline:       cfg.Pipeline,
		cleaner:        cfg.Cleaner,
		journal:        cfg.Journal,
		events:         cfg.Events,
		uploader:       cfg.Uploader,
		conn:           cfg.Conn,
		intakePrefetch: cfg.IntakePrefetch,
		wake:           make(chan struct{}, 1),
		taskTimeout:    taskTimeout,
		uploadTimeout:  uploadTimeout,
		logger:         logger,
	}
}

// Start запускает цикл выполнения tasks.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"queue_capacity", o.queue.Capacity(),
		"task_timeout", o.taskTimeout,
	)

	if o.conn != nil {
		o.intake = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueSubmissions),
			Handler:  o.HandleSubmission,
			Prefetch: o.intakePrefetch,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.intake.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("intake consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(ctx)
	}()

	// tasks, принятые до старта, должны быть подхвачены сразу
	o.signal()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator. Выполняющийся pipeline отменяется,
// его группа процессов убивается, task помечается FAILED.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.intake != nil {
		o.intake.Stop()
	}
	o.wg.Wait()

	o.logger.Info("orchestrator stopped", "queued", o.queue.Len())
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// signal будит цикл, не блокируясь.
func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// loop — единственный исполнитель tasks.
func (o *Orchestrator) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if o.dispatchNext(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		}
	}
}

// dispatchNext запускает голову очереди, если слот свободен.
// Возвращает false, если делать нечего.
func (o *Orchestrator) dispatchNext(ctx context.Context) bool {
	id, ok := o.queue.Peek()
	if !ok {
		return false
	}
	if !o.slot.TryAcquire(id) {
		return false
	}
	if !o.queue.Remove(id) {
		// task удалён из очереди между Peek и Remove
		o.slot.Release(id)
		return true
	}
	telemetry.QueueDepth.Set(float64(o.queue.Len()))

	o.runTask(ctx, id)
	return true
}

// runTask выполняет task, уже удерживающий слот.
func (o *Orchestrator) runTask(ctx context.Context, id uuid.UUID) {
	defer func() {
		o.slot.Release(id)
		o.signal()
	}()

	logger := telemetry.WithTaskID(o.logger, id.String())

	if err := o.store.MarkRunning(id); err != nil {
		logger.Warn("task not started", "error", err)
		return
	}

	task, err := o.store.Get(id)
	if err != nil {
		logger.Error("task vanished after start", "error", err)
		return
	}

	logger.Info("task started", "video_path", task.VideoPath)
	o.record(ctx, task)
	o.publish(ctx, mq.MessageTypeTaskStarted, task)

	ctx, span := telemetry.StartSpan(ctx, "task.run",
		attribute.String("task_id", id.String()),
	)
	defer span.End()

	res := o.execute(ctx, task, logger)

	if res.Success {
		o.complete(ctx, id, res, logger)
	} else {
		span.SetStatus(codes.Error, res.Error.Error())
		o.fail(ctx, id, *res.Error, logger)
	}

	final, err := o.store.Get(id)
	if err != nil {
		logger.Error("task vanished after finish", "error", err)
		return
	}

	o.record(ctx, final)
	if final.State == domain.TaskStateCompleted {
		o.publish(ctx, mq.MessageTypeTaskCompleted, final)
	} else {
		o.publish(ctx, mq.MessageTypeTaskFailed, final)
	}
}

// execute запускает pipeline под общим лимитом времени task.
// Паника pipeline превращается в INTERNAL_ERROR.
func (o *Orchestrator) execute(ctx context.Context, task *domain.Task, logger *slog.Logger) (res *pipeline.Result) {
	ctx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = &pipeline.Result{Error: domain.InternalError(fmt.Sprintf("pipeline panicked: %v", r))}
		}
	}()

	job := pipeline.Job{
		TaskID:    task.ID,
		VideoPath: task.VideoPath,
		Options:   task.Options,
	}

	res = o.pipeline.Run(ctx, job, o.store)
	switch {
	case res == nil:
		res = &pipeline.Result{Error: domain.InternalError("pipeline returned no result")}
	case !res.Success && res.Error == nil:
		res.Error = domain.InternalError("pipeline failed without an error record")
	}
	return res
}

// complete завершает успешный task и загружает итоговый артефакт.
func (o *Orchestrator) complete(ctx context.Context, id uuid.UUID, res *pipeline.Result, logger *slog.Logger) {
	err := o.store.MarkCompleted(id, store.CompletionInfo{
		FinalArtifact: res.FinalArtifact,
		TrackID:       res.TrackID,
	})
	if err != nil {
		logger.Error("failed to mark task completed", "error", err)
		return
	}

	telemetry.TasksFinished.WithLabelValues(string(domain.TaskStateCompleted), "").Inc()
	logger.Info("task completed", "final_artifact", res.FinalArtifact)

	if o.uploader == nil || res.FinalArtifact == "" {
		return
	}

	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.uploadTimeout)
	defer cancel()

	uri, err := o.uploader.Upload(uploadCtx, id, res.FinalArtifact)
	if err != nil {
		logger.Warn("failed to upload final artifact", "error", err)
		return
	}
	if err := o.store.SetRemoteURI(id, uri); err != nil {
		logger.Warn("failed to record remote uri", "error", err)
		return
	}
	logger.Info("final artifact uploaded", "remote_uri", uri)
}

// fail завершает task с ошибкой и запускает cleanup.
func (o *Orchestrator) fail(_ context.Context, id uuid.UUID, taskErr domain.TaskError, logger *slog.Logger) {
	if err := o.store.MarkFailed(id, taskErr); err != nil {
		logger.Error("failed to mark task failed", "error", err)
		return
	}

	telemetry.TasksFinished.WithLabelValues(string(domain.TaskStateFailed), string(taskErr.Kind)).Inc()
	logger.Warn("task failed",
		"kind", taskErr.Kind,
		"code", taskErr.Code,
		"step", taskErr.Step,
		"error", taskErr.Message,
	)

	if o.cleaner == nil {
		return
	}
	task, err := o.store.Get(id)
	if err != nil {
		logger.Error("failed to load task for cleanup", "error", err)
		return
	}
	if err := o.cleaner.CleanupFailed(task); err != nil {
		logger.Error("failure cleanup failed", "error", err)
	}
}

// SubmitRequest — заявка на обработку видео.
type SubmitRequest struct {
	// TaskID — заранее назначенный ID (uuid.Nil — назначить новый).
	TaskID uuid.UUID

	// VideoPath — путь к уже проверенному и сохранённому видео.
	VideoPath string

	// Options — опции task (nil — значения по умолчанию).
	Options *domain.Options
}

// Submit регистрирует task и ставит его в очередь.
// При переполнении очереди запись task не сохраняется.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error) {
	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}

	opts, err := normalizeRequest(req)
	if err != nil {
		telemetry.TasksRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	id := req.TaskID
	if id == uuid.Nil {
		id = uuid.New()
	}

	if _, err := o.store.Create(id, req.VideoPath, opts); err != nil {
		return nil, err
	}

	if err := o.queue.Push(id); err != nil {
		if delErr := o.store.Delete(id); delErr != nil {
			o.logger.Error("failed to drop rejected task", "task_id", id, "error", delErr)
		}
		if errors.Is(err, queue.ErrQueueFull) {
			telemetry.TasksRejected.WithLabelValues("queue_full").Inc()
			o.logger.Warn("task rejected, queue full", "task_id", id, "queue_capacity", o.queue.Capacity())
			o.notify(ctx, mq.MessageTypeTaskRejected, mq.TaskEventPayload{
				TaskID:    id,
				VideoPath: req.VideoPath,
				ErrorKind: domain.ErrorKindQueueFull,
				ErrorCode: domain.CodeQueueFull,
				Error:     err.Error(),
			})
		}
		return nil, err
	}

	telemetry.TasksSubmitted.Inc()
	telemetry.QueueDepth.Set(float64(o.queue.Len()))

	task, err := o.store.Get(id)
	if err != nil {
		// удалён параллельным Delete
		return nil, err
	}

	position := o.queue.Position(id)
	o.logger.Info("task queued", "task_id", id, "position", position, "video_path", req.VideoPath)
	o.record(ctx, task)
	o.notify(ctx, mq.MessageTypeTaskQueued, mq.TaskEventPayload{
		TaskID:    id,
		State:     task.State,
		VideoPath: task.VideoPath,
		Position:  position,
	})

	o.signal()
	return task, nil
}

func normalizeRequest(req SubmitRequest) (domain.Options, error) {
	if strings.TrimSpace(req.VideoPath) == "" {
		return domain.Options{}, fmt.Errorf("%w: video_path is required", ErrInvalidRequest)
	}

	opts := domain.DefaultOptions()
	if req.Options != nil {
		opts = req.Options.Normalize()
	}
	if err := opts.Validate(); err != nil {
		return domain.Options{}, err
	}
	return opts, nil
}

// Get возвращает snapshot task.
func (o *Orchestrator) Get(id uuid.UUID) (*domain.Task, error) {
	return o.store.Get(id)
}

// Position возвращает позицию task в очереди (0 — не в очереди).
func (o *Orchestrator) Position(id uuid.UUID) int {
	return o.queue.Position(id)
}

// List возвращает snapshot всех tasks.
func (o *Orchestrator) List() []*domain.Task {
	return o.store.List()
}

// Delete удаляет task и его артефакты. Выполняющийся task удалить нельзя.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID) error {
	task, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if task.State == domain.TaskStateRunning {
		return fmt.Errorf("%w: %s", store.ErrTaskRunning, id)
	}

	o.queue.Remove(id)
	if err := o.store.Delete(id); err != nil {
		return err
	}
	telemetry.QueueDepth.Set(float64(o.queue.Len()))

	if o.journal != nil {
		if err := o.journal.Delete(ctx, id); err != nil {
			o.logger.Warn("failed to delete journal record", "task_id", id, "error", err)
		}
	}

	if o.cleaner != nil {
		if err := o.cleaner.RemoveTask(id); err != nil {
			return fmt.Errorf("remove artifacts: %w", err)
		}
	}

	o.logger.Info("task deleted", "task_id", id, "state", task.State)
	return nil
}

// QueueInfo — состояние очереди и слота.
type QueueInfo struct {
	Length   int         `json:"length"`
	Capacity int         `json:"capacity"`
	Running  *uuid.UUID  `json:"running,omitempty"`
	Pending  []uuid.UUID `json:"pending"`
}

// QueueInfo возвращает состояние очереди.
func (o *Orchestrator) QueueInfo() QueueInfo {
	info := QueueInfo{
		Capacity: o.queue.Capacity(),
		Pending:  o.queue.Snapshot(),
	}
	info.Length = len(info.Pending)
	if holder, held := o.slot.Holder(); held {
		info.Running = &holder
	}
	return info
}

// Stats — сводная статистика.
type Stats struct {
	Tasks         store.Stats `json:"tasks"`
	QueueLength   int         `json:"queue_length"`
	QueueCapacity int         `json:"queue_capacity"`
	SlotBusy      bool        `json:"slot_busy"`
}

// Stats возвращает сводную статистику.
func (o *Orchestrator) Stats() Stats {
	_, busy := o.slot.Holder()
	return Stats{
		Tasks:         o.store.Stats(),
		QueueLength:   o.queue.Len(),
		QueueCapacity: o.queue.Capacity(),
		SlotBusy:      busy,
	}
}

// record сохраняет snapshot в журнал.
func (o *Orchestrator) record(ctx context.Context, task *domain.Task) {
	if o.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultNotifyTimeout)
	defer cancel()

	if err := o.journal.Save(ctx, task); err != nil {
		o.logger.Warn("failed to journal task", "task_id", task.ID, "state", task.State, "error", err)
	}
}

// publish публикует событие по snapshot task.
func (o *Orchestrator) publish(ctx context.Context, eventType mq.MessageType, task *domain.Task) {
	payload := mq.TaskEventPayload{
		TaskID:        task.ID,
		State:         task.State,
		VideoPath:     task.VideoPath,
		FinalArtifact: task.FinalArtifact,
		RemoteURI:     task.RemoteURI,
		DurationMs:    task.Duration().Milliseconds(),
	}
	if task.Error != nil {
		payload.ErrorKind = task.Error.Kind
		payload.ErrorCode = task.Error.Code
		payload.Error = task.Error.Message
	}
	o.notify(ctx, eventType, payload)
}

// notify публикует событие. Ошибка публикации не влияет на task.
func (o *Orchestrator) notify(ctx context.Context, eventType mq.MessageType, payload mq.TaskEventPayload) {
	if o.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultNotifyTimeout)
	defer cancel()

	if err := o.events.PublishTaskEvent(ctx, eventType, payload); err != nil {
		o.logger.Warn("failed to publish task event",
			"task_id", payload.TaskID,
			"event", eventType,
			"error", err,
		)
	}
}
