package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// ArtifactName — логическое имя артефакта task.
type ArtifactName string

const (
	ArtifactTracking  ArtifactName = "tracking"
	ArtifactExtracted ArtifactName = "extracted"
	ArtifactSmoothed  ArtifactName = "smoothed"
	ArtifactExport    ArtifactName = "export"
	ArtifactPackage   ArtifactName = "package"
)

// Task — одна сквозная обработка видео через pipeline.
//
// Task принадлежит Task Store на всё время жизни.
// Pipeline Runner только сообщает прогресс через Reporter и
// никогда не изменяет Task напрямую.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// State — текущее состояние.
	State TaskState `json:"state"`

	// VideoPath — путь к уже проверенному исходному видео.
	VideoPath string `json:"video_path"`

	// Options — конфигурация pipeline для task.
	Options Options `json:"options"`

	// Steps — прогресс шагов в фиксированном порядке.
	Steps []StepProgress `json:"steps"`

	// CurrentStep — шаг, который выполняется сейчас.
	CurrentStep StepName `json:"current_step,omitempty"`

	// Progress — общий прогресс в процентах.
	Progress int `json:"progress"`

	// Artifacts — пути к артефактам по логическому имени.
	Artifacts map[ArtifactName]string `json:"artifacts,omitempty"`

	// FinalArtifact — итоговый артефакт (fbx или zip).
	FinalArtifact string `json:"final_artifact,omitempty"`

	// RemoteURI — адрес итогового артефакта в object storage.
	RemoteURI string `json:"remote_uri,omitempty"`

	// TrackID — выбранный трек.
	TrackID *int `json:"track_id,omitempty"`

	// Error — заполняется только в состоянии FAILED.
	Error *TaskError `json:"error,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальное состояние.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewTask создаёт task в состоянии QUEUED.
func NewTask(id uuid.UUID, videoPath string, opts Options) *Task {
	return &Task{
		ID:        id,
		State:     TaskStateQueued,
		VideoPath: videoPath,
		Options:   opts,
		Steps:     NewStepProgress(),
		Artifacts: make(map[ArtifactName]string),
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// IsFinished возвращает true, если task завершён.
func (t *Task) IsFinished() bool {
	return t.State.IsTerminal()
}

// Step возвращает прогресс шага по имени.
func (t *Task) Step(name StepName) *StepProgress {
	for i := range t.Steps {
		if t.Steps[i].Name == name {
			return &t.Steps[i]
		}
	}
	return nil
}

// MarkRunning переводит task в RUNNING.
func (t *Task) MarkRunning() {
	now := time.Now()
	t.State = TaskStateRunning
	t.StartedAt = &now
}

// MarkCompleted переводит task в COMPLETED.
func (t *Task) MarkCompleted(finalArtifact string) {
	now := time.Now()
	t.State = TaskStateCompleted
	t.FinishedAt = &now
	t.FinalArtifact = finalArtifact
	t.CurrentStep = ""
	t.Progress = 100
}

// MarkFailed переводит task в FAILED с ошибкой.
func (t *Task) MarkFailed(taskErr TaskError) {
	now := time.Now()
	t.State = TaskStateFailed
	t.FinishedAt = &now
	t.Error = &taskErr
	t.CurrentStep = ""
}

// RecomputeProgress пересчитывает общий прогресс по settled шагам.
func (t *Task) RecomputeProgress() {
	progress := 0
	for _, s := range t.Steps {
		if s.State.IsSettled() && s.Name.Weight() > progress {
			progress = s.Name.Weight()
		}
	}
	t.Progress = progress
}

// Clone возвращает глубокую копию task (snapshot для читателей).
func (t *Task) Clone() *Task {
	c := *t
	c.Steps = make([]StepProgress, len(t.Steps))
	for i, s := range t.Steps {
		c.Steps[i] = s
		if s.StartedAt != nil {
			started := *s.StartedAt
			c.Steps[i].StartedAt = &started
		}
	}
	c.Artifacts = maps.Clone(t.Artifacts)
	if c.Artifacts == nil {
		c.Artifacts = make(map[ArtifactName]string)
	}
	if t.TrackID != nil {
		id := *t.TrackID
		c.TrackID = &id
	}
	if t.Options.TrackID != nil {
		id := *t.Options.TrackID
		c.Options.TrackID = &id
	}
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		c.StartedAt = &s
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		c.FinishedAt = &f
	}
	return &c
}
