package store

import (
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/mocapd/internal/domain"
)

// Store — потокобезопасный реестр tasks.
type Store struct {
	tasks map[uuid.UUID]*domain.Task
	mu    sync.RWMutex

	// now — источник времени (подменяется в тестах).
	now func() time.Time
}

// New создаёт пустой Store.
func New() *Store {
	return &Store{
		tasks: make(map[uuid.UUID]*domain.Task),
		now:   time.Now,
	}
}

// CompletionInfo — данные успешного завершения task.
type CompletionInfo struct {
	FinalArtifact string
	TrackID       *int
}

// Stats — количество tasks по состояниям.
type Stats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Create регистрирует новый task в состоянии QUEUED.
func (s *Store) Create(id uuid.UUID, videoPath string, opts domain.Options) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	task := domain.NewTask(id, videoPath, opts)
	task.CreatedAt = s.now()
	s.tasks[id] = task
	return task.Clone(), nil
}

// Get возвращает snapshot task.
func (s *Store) Get(id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task.Clone(), nil
}

// List возвращает snapshot всех tasks в порядке создания.
func (s *Store) List() []*domain.Task {
	s.mu.RLock()
	out := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// Delete удаляет запись task. Выполняющийся task удалить нельзя.
// Артефакты удаляет вызывающий (cleanup).
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if task.State == domain.TaskStateRunning {
		return fmt.Errorf("%w: %s", ErrTaskRunning, id)
	}
	delete(s.tasks, id)
	return nil
}

// MarkRunning переводит task QUEUED → RUNNING.
// Не более одного task может быть в RUNNING.
func (s *Store) MarkRunning(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if task.State != domain.TaskStateQueued {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, id, task.State, domain.TaskStateQueued)
	}
	for otherID, other := range s.tasks {
		if other.State == domain.TaskStateRunning {
			return fmt.Errorf("%w: %s is already running", ErrInvalidTransition, otherID)
		}
	}

	task.MarkRunning()
	now := s.now()
	task.StartedAt = &now
	return nil
}

// MarkCompleted переводит task RUNNING → COMPLETED.
// Повторный вызов на терминальном task — no-op.
func (s *Store) MarkCompleted(id uuid.UUID, info CompletionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.terminalTarget(id)
	if err != nil || task == nil {
		return err
	}

	task.MarkCompleted(info.FinalArtifact)
	now := s.now()
	task.FinishedAt = &now
	if info.TrackID != nil {
		trackID := *info.TrackID
		task.TrackID = &trackID
	}
	return nil
}

// MarkFailed переводит task RUNNING → FAILED.
// Шаг, оставшийся в RUNNING, помечается FAILED.
// Повторный вызов на терминальном task — no-op.
func (s *Store) MarkFailed(id uuid.UUID, taskErr domain.TaskError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.terminalTarget(id)
	if err != nil || task == nil {
		return err
	}

	now := s.now()
	for i := range task.Steps {
		step := &task.Steps[i]
		if step.State != domain.StepStateRunning {
			continue
		}
		step.State = domain.StepStateFailed
		if step.StartedAt != nil {
			step.Duration = now.Sub(*step.StartedAt)
		}
		if taskErr.Step == "" {
			taskErr.Step = step.Name
		}
	}

	task.MarkFailed(taskErr)
	task.FinishedAt = &now
	return nil
}

// terminalTarget находит task для терминального перехода.
// Возвращает nil без ошибки, если task уже терминален.
func (s *Store) terminalTarget(id uuid.UUID) (*domain.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if task.State.IsTerminal() {
		return nil, nil
	}
	if task.State != domain.TaskStateRunning {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, id, task.State, domain.TaskStateRunning)
	}
	return task, nil
}

// StepStarted переводит шаг PENDING → RUNNING.
// Все предыдущие шаги должны быть завершены.
func (s *Store) StepStarted(id uuid.UUID, name domain.StepName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, step, err := s.stepTarget(id, name, domain.StepStateRunning)
	if err != nil {
		return err
	}

	now := s.now()
	step.State = domain.StepStateRunning
	step.Percent = 0
	step.StartedAt = &now
	step.Message = ""
	task.CurrentStep = name
	return nil
}

// StepSettled переводит шаг в COMPLETED, FAILED или SKIPPED.
func (s *Store) StepSettled(id uuid.UUID, name domain.StepName, state domain.StepState, duration time.Duration, message string) error {
	if !state.IsSettled() {
		return fmt.Errorf("%w: %s is not a settled state", ErrInvalidTransition, state)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, step, err := s.stepTarget(id, name, state)
	if err != nil {
		return err
	}

	step.State = state
	step.Percent = 100
	step.Duration = duration
	step.Message = message
	if task.CurrentStep == name {
		task.CurrentStep = ""
	}
	task.RecomputeProgress()
	return nil
}

// stepTarget проверяет, что шаг task может перейти в next.
func (s *Store) stepTarget(id uuid.UUID, name domain.StepName, next domain.StepState) (*domain.Task, *domain.StepProgress, error) {
	task, err := s.runningTask(id)
	if err != nil {
		return nil, nil, err
	}

	step := task.Step(name)
	if step == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownStep, name)
	}
	if !step.State.CanAdvanceTo(next) {
		return nil, nil, fmt.Errorf("%w: %s %s → %s", ErrProgressRegression, name, step.State, next)
	}
	for _, prev := range task.Steps[:name.Index()] {
		if !prev.State.IsSettled() {
			return nil, nil, fmt.Errorf("%w: %s before %s settled", ErrProgressRegression, name, prev.Name)
		}
	}
	return task, step, nil
}

// RecordArtifact записывает путь артефакта. Файл должен существовать.
func (s *Store) RecordArtifact(id uuid.UUID, name domain.ArtifactName, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactMissing, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.runningTask(id)
	if err != nil {
		return err
	}
	task.Artifacts[name] = path
	return nil
}

// RecordTrack записывает выбранный трек.
func (s *Store) RecordTrack(id uuid.UUID, trackID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.runningTask(id)
	if err != nil {
		return err
	}
	task.TrackID = &trackID
	return nil
}

// SetRemoteURI записывает адрес загруженного итогового артефакта.
func (s *Store) SetRemoteURI(id uuid.UUID, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	task.RemoteURI = uri
	return nil
}

func (s *Store) runningTask(id uuid.UUID) (*domain.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if task.State != domain.TaskStateRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, task.State)
	}
	return task, nil
}

// Stats возвращает количество tasks по состояниям.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Total: len(s.tasks)}
	for _, task := range s.tasks {
		switch task.State {
		case domain.TaskStateQueued:
			stats.Queued++
		case domain.TaskStateRunning:
			stats.Running++
		case domain.TaskStateCompleted:
			stats.Completed++
		case domain.TaskStateFailed:
			stats.Failed++
		}
	}
	return stats
}

// Expired возвращает терминальные tasks, завершённые раньше порогов.
// Нулевой или отрицательный retention отключает удаление для состояния.
func (s *Store) Expired(now time.Time, completedRetention, failedRetention time.Duration) []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Task
	for _, task := range s.tasks {
		if task.FinishedAt == nil {
			continue
		}
		var retention time.Duration
		switch task.State {
		case domain.TaskStateCompleted:
			retention = completedRetention
		case domain.TaskStateFailed:
			retention = failedRetention
		default:
			continue
		}
		if retention > 0 && now.Sub(*task.FinishedAt) > retention {
			out = append(out, task.Clone())
		}
	}
	return out
}
