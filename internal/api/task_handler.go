package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/mocapd/internal/artifacts"
	"github.com/shaiso/mocapd/internal/domain"
	"github.com/shaiso/mocapd/internal/orchestrator"
	"github.com/shaiso/mocapd/internal/repo"
	"github.com/shaiso/mocapd/internal/store"
)

// SubmitTask ставит task в очередь.
// POST /api/v1/tasks
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	submit := orchestrator.SubmitRequest{
		VideoPath: req.VideoPath,
		Options:   req.Options,
	}
	if req.TaskID != nil {
		submit.TaskID = *req.TaskID
	}

	task, err := h.service.Submit(r.Context(), submit)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	w.Header().Set("Location", "/api/v1/tasks/"+task.ID.String())
	Accepted(w, TaskFromDomain(task, h.service.Position(task.ID)))
}

// ListTasks возвращает все tasks, опционально отфильтрованные по состоянию.
// GET /api/v1/tasks?state=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	state := domain.TaskState(r.URL.Query().Get("state"))
	if state != "" && !state.Valid() {
		BadRequest(w, "invalid state")
		return
	}

	tasks := h.service.List()
	result := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		if state != "" && task.State != state {
			continue
		}
		result = append(result, TaskFromDomain(task, h.service.Position(task.ID)))
	}

	List(w, result, len(result))
}

// GetTask возвращает task с позицией в очереди.
// Task, которого уже нет в памяти (удалён sweep или пережил рестарт),
// ищется в журнале.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(id)
	if errors.Is(err, store.ErrNotFound) && h.history != nil {
		h.getFromHistory(w, r, id)
		return
	}
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, TaskFromDomain(task, h.service.Position(id)))
}

func (h *Handler) getFromHistory(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	task, err := h.history.Get(r.Context(), id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		NotFound(w, "task not found")
	case err != nil:
		InternalError(w, h.logger, err)
	default:
		Success(w, TaskFromDomain(task, 0))
	}
}

// DeleteTask удаляет task и его артефакты.
// DELETE /api/v1/tasks/{id}
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	if HandleServiceError(w, h.logger, h.service.Delete(r.Context(), id)) {
		return
	}
	NoContent(w)
}

// DownloadTask отдаёт итоговый артефакт завершённого task.
// GET /api/v1/tasks/{id}/download
func (h *Handler) DownloadTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(id)
	if HandleServiceError(w, h.logger, err) {
		return
	}
	if task.State != domain.TaskStateCompleted {
		InvalidState(w, fmt.Sprintf("task is %s, result is not ready", task.State))
		return
	}
	if task.FinalArtifact == "" || !artifacts.Exists(task.FinalArtifact) {
		NotFound(w, "result file not found")
		return
	}

	f, err := os.Open(task.FinalArtifact)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	name := filepath.Base(task.FinalArtifact)
	w.Header().Set("Content-Type", artifacts.ContentType(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// GetQueue возвращает состояние очереди и слота.
// GET /api/v1/queue
func (h *Handler) GetQueue(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.service.QueueInfo())
}

// GetStats возвращает сводную статистику.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.service.Stats())
}

// ListHistory возвращает последние записи журнала.
// GET /api/v1/history?limit=...
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		Unavailable(w, "task journal is not configured")
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	tasks, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		result[i] = TaskFromDomain(task, 0)
	}
	List(w, result, len(result))
}

// RunCleanup запускает внеплановый sweep.
// POST /api/v1/admin/cleanup
func (h *Handler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		Unavailable(w, "cleanup is not configured")
		return
	}

	report, err := h.sweeper.Sweep(r.Context(), time.Now())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("manual cleanup completed", "expired", report.Expired, "orphans", report.Orphans)
	Success(w, report)
}

// Health сообщает о готовности процесса.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	if h.service.IsStopped() {
		JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "stopping"})
		return
	}

	stats := h.service.Stats()
	JSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		SlotBusy: stats.SlotBusy,
		Queued:   stats.QueueLength,
	})
}

func parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}
