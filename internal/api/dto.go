package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/mocapd/internal/domain"
)

// SubmitTaskRequest — запрос на постановку task в очередь.
type SubmitTaskRequest struct {
	TaskID    *uuid.UUID      `json:"task_id,omitempty"`
	VideoPath string          `json:"video_path"`
	Options   *domain.Options `json:"options,omitempty"`
}

// StepResponse — прогресс шага.
type StepResponse struct {
	Name       domain.StepName  `json:"name"`
	State      domain.StepState `json:"state"`
	Percent    int              `json:"percent"`
	Message    string           `json:"message,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
}

// TaskResponse — ответ с task.
type TaskResponse struct {
	ID            uuid.UUID                      `json:"id"`
	State         domain.TaskState               `json:"state"`
	VideoPath     string                         `json:"video_path"`
	Options       domain.Options                 `json:"options"`
	Progress      int                            `json:"progress"`
	CurrentStep   domain.StepName                `json:"current_step,omitempty"`
	QueuePosition int                            `json:"queue_position,omitempty"`
	Steps         []StepResponse                 `json:"steps"`
	Artifacts     map[domain.ArtifactName]string `json:"artifacts,omitempty"`
	FinalArtifact string                         `json:"final_artifact,omitempty"`
	RemoteURI     string                         `json:"remote_uri,omitempty"`
	TrackID       *int                           `json:"track_id,omitempty"`
	Error         *domain.TaskError              `json:"error,omitempty"`
	CreatedAt     time.Time                      `json:"created_at"`
	StartedAt     *time.Time                     `json:"started_at,omitempty"`
	FinishedAt    *time.Time                     `json:"finished_at,omitempty"`
	DurationMs    int64                          `json:"duration_ms,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t *domain.Task, position int) TaskResponse {
	steps := make([]StepResponse, len(t.Steps))
	for i, s := range t.Steps {
		steps[i] = StepResponse{
			Name:       s.Name,
			State:      s.State,
			Percent:    s.Percent,
			Message:    s.Message,
			StartedAt:  s.StartedAt,
			DurationMs: s.Duration.Milliseconds(),
		}
	}

	return TaskResponse{
		ID:            t.ID,
		State:         t.State,
		VideoPath:     t.VideoPath,
		Options:       t.Options,
		Progress:      t.Progress,
		CurrentStep:   t.CurrentStep,
		QueuePosition: position,
		Steps:         steps,
		Artifacts:     t.Artifacts,
		FinalArtifact: t.FinalArtifact,
		RemoteURI:     t.RemoteURI,
		TrackID:       t.TrackID,
		Error:         t.Error,
		CreatedAt:     t.CreatedAt,
		StartedAt:     t.StartedAt,
		FinishedAt:    t.FinishedAt,
		DurationMs:    t.Duration().Milliseconds(),
	}
}

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	SlotBusy bool   `json:"slot_busy"`
	Queued   int    `json:"queued"`
}
