package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/mocapd/internal/domain"
)

func newRunningTask(t *testing.T, s *Store) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := s.Create(id, "/videos/clip.mp4", domain.DefaultOptions()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkRunning(id); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	return id
}

func tempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.npz")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

// --- Lifecycle Tests ---

func TestStore_Create(t *testing.T) {
	s := New()
	id := uuid.New()

	task, err := s.Create(id, "/videos/clip.mp4", domain.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.State != domain.TaskStateQueued {
		t.Errorf("expected QUEUED, got %s", task.State)
	}
	if len(task.Steps) != len(domain.Steps) {
		t.Errorf("expected %d steps, got %d", len(domain.Steps), len(task.Steps))
	}
	for _, step := range task.Steps {
		if step.State != domain.StepStatePending {
			t.Errorf("step %s: expected PENDING, got %s", step.Name, step.State)
		}
	}

	if _, err := s.Create(id, "/videos/other.mp4", domain.DefaultOptions()); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	if _, err := New().Get(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	snap, _ := s.Get(id)
	snap.State = domain.TaskStateFailed
	snap.Steps[0].State = domain.StepStateCompleted
	snap.Artifacts["x"] = "y"

	task, _ := s.Get(id)
	if task.State != domain.TaskStateRunning {
		t.Error("snapshot mutation leaked into store")
	}
	if task.Steps[0].State != domain.StepStatePending {
		t.Error("snapshot step mutation leaked into store")
	}
	if len(task.Artifacts) != 0 {
		t.Error("snapshot artifacts mutation leaked into store")
	}
}

func TestStore_MarkRunning_OnlyOne(t *testing.T) {
	s := New()
	newRunningTask(t, s)

	second := uuid.New()
	s.Create(second, "/videos/b.mp4", domain.DefaultOptions())
	if err := s.MarkRunning(second); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for second running task, got %v", err)
	}
}

func TestStore_MarkRunning_Twice(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)
	if err := s.MarkRunning(id); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestStore_MarkCompleted_FromQueued(t *testing.T) {
	s := New()
	id := uuid.New()
	s.Create(id, "/videos/clip.mp4", domain.DefaultOptions())

	if err := s.MarkCompleted(id, CompletionInfo{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestStore_TerminalIsIdempotent(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	first := domain.TaskError{Kind: domain.ErrorKindStepFailure, Code: domain.CodeTrackingFailed, Message: "boom"}
	if err := s.MarkFailed(id, first); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	second := domain.TaskError{Kind: domain.ErrorKindInternal, Code: domain.CodeInternal, Message: "again"}
	if err := s.MarkFailed(id, second); err != nil {
		t.Errorf("second MarkFailed should be a no-op, got %v", err)
	}
	if err := s.MarkCompleted(id, CompletionInfo{FinalArtifact: "/x.fbx"}); err != nil {
		t.Errorf("MarkCompleted on failed task should be a no-op, got %v", err)
	}

	task, _ := s.Get(id)
	if task.State != domain.TaskStateFailed {
		t.Errorf("expected FAILED, got %s", task.State)
	}
	if task.Error == nil || task.Error.Message != "boom" {
		t.Errorf("error record changed: %+v", task.Error)
	}
	if task.FinalArtifact != "" {
		t.Error("final artifact must not be set on failed task")
	}
	if task.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
}

func TestStore_MarkFailed_SettlesRunningStep(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)
	s.StepStarted(id, domain.StepTracking)

	s.MarkFailed(id, *domain.InternalError("panic"))

	task, _ := s.Get(id)
	if task.Steps[0].State != domain.StepStateFailed {
		t.Errorf("expected running step FAILED, got %s", task.Steps[0].State)
	}
	if task.Error.Step != domain.StepTracking {
		t.Errorf("expected error step tracking, got %q", task.Error.Step)
	}
	if task.CurrentStep != "" {
		t.Errorf("expected no current step, got %s", task.CurrentStep)
	}
}

func TestStore_MarkCompleted(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)
	track := 2

	if err := s.MarkCompleted(id, CompletionInfo{FinalArtifact: "/out/a.fbx", TrackID: &track}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	task, _ := s.Get(id)
	if task.State != domain.TaskStateCompleted || task.Progress != 100 {
		t.Errorf("unexpected task: state=%s progress=%d", task.State, task.Progress)
	}
	if task.FinalArtifact != "/out/a.fbx" {
		t.Errorf("unexpected final artifact %s", task.FinalArtifact)
	}
	if task.TrackID == nil || *task.TrackID != 2 {
		t.Errorf("unexpected track %v", task.TrackID)
	}
}

func TestStore_Delete(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	if err := s.Delete(id); !errors.Is(err, ErrTaskRunning) {
		t.Errorf("expected ErrTaskRunning, got %v", err)
	}

	s.MarkCompleted(id, CompletionInfo{})
	if err := s.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- Progress Tests ---

func TestStore_StepProgress_Forward(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	if err := s.StepStarted(id, domain.StepTracking); err != nil {
		t.Fatalf("start: %v", err)
	}
	task, _ := s.Get(id)
	if task.CurrentStep != domain.StepTracking {
		t.Errorf("expected current step tracking, got %s", task.CurrentStep)
	}

	if err := s.StepSettled(id, domain.StepTracking, domain.StepStateCompleted, time.Second, ""); err != nil {
		t.Fatalf("settle: %v", err)
	}
	task, _ = s.Get(id)
	if task.Progress != domain.StepTracking.Weight() {
		t.Errorf("expected progress %d, got %d", domain.StepTracking.Weight(), task.Progress)
	}
	step := task.Step(domain.StepTracking)
	if step.Percent != 100 || step.Duration != time.Second {
		t.Errorf("unexpected step: %+v", step)
	}
}

func TestStore_StepProgress_Regression(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	s.StepStarted(id, domain.StepTracking)
	s.StepSettled(id, domain.StepTracking, domain.StepStateCompleted, 0, "")

	if err := s.StepStarted(id, domain.StepTracking); !errors.Is(err, ErrProgressRegression) {
		t.Errorf("expected ErrProgressRegression on restart, got %v", err)
	}
	if err := s.StepSettled(id, domain.StepTracking, domain.StepStateFailed, 0, ""); !errors.Is(err, ErrProgressRegression) {
		t.Errorf("expected ErrProgressRegression on resettle, got %v", err)
	}
}

func TestStore_StepProgress_OutOfOrder(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	if err := s.StepStarted(id, domain.StepExport); !errors.Is(err, ErrProgressRegression) {
		t.Errorf("expected ErrProgressRegression for skipped ahead step, got %v", err)
	}
	if err := s.StepStarted(id, "unknown"); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
	if err := s.StepSettled(id, domain.StepTracking, domain.StepStateRunning, 0, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for non-settled state, got %v", err)
	}
}

func TestStore_StepSkippedFromPending(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	for _, step := range []domain.StepName{domain.StepTracking, domain.StepTrackExtraction} {
		s.StepStarted(id, step)
		s.StepSettled(id, step, domain.StepStateCompleted, 0, "")
	}
	if err := s.StepSettled(id, domain.StepSmoothing, domain.StepStateSkipped, 0, "smoothing disabled"); err != nil {
		t.Fatalf("skip: %v", err)
	}

	task, _ := s.Get(id)
	if task.Progress != domain.StepSmoothing.Weight() {
		t.Errorf("expected progress %d, got %d", domain.StepSmoothing.Weight(), task.Progress)
	}
}

func TestStore_ProgressRequiresRunning(t *testing.T) {
	s := New()
	id := uuid.New()
	s.Create(id, "/videos/clip.mp4", domain.DefaultOptions())

	if err := s.StepStarted(id, domain.StepTracking); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestStore_RecordArtifact(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	path := tempFile(t)
	if err := s.RecordArtifact(id, domain.ArtifactTracking, path); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordArtifact(id, domain.ArtifactExport, "/nonexistent/file.fbx"); !errors.Is(err, ErrArtifactMissing) {
		t.Errorf("expected ErrArtifactMissing, got %v", err)
	}

	task, _ := s.Get(id)
	if task.Artifacts[domain.ArtifactTracking] != path {
		t.Errorf("artifact not recorded")
	}
	if _, ok := task.Artifacts[domain.ArtifactExport]; ok {
		t.Error("missing artifact must not be recorded")
	}
}

// --- Query Tests ---

func TestStore_ListOrder(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		s.Create(id, "/videos/clip.mp4", domain.DefaultOptions())
		ids = append(ids, id)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(list))
	}
	for i, task := range list {
		if task.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], task.ID)
		}
	}
}

func TestStore_Stats(t *testing.T) {
	s := New()
	running := newRunningTask(t, s)
	s.MarkCompleted(running, CompletionInfo{})
	newRunningTask(t, s)
	s.Create(uuid.New(), "/videos/q.mp4", domain.DefaultOptions())

	stats := s.Stats()
	want := Stats{Total: 3, Queued: 1, Running: 1, Completed: 1}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}
}

func TestStore_Expired(t *testing.T) {
	s := New()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now.Add(-100 * time.Hour) }

	old := newRunningTask(t, s)
	s.MarkCompleted(old, CompletionInfo{})

	s.now = func() time.Time { return now.Add(-time.Hour) }
	fresh := newRunningTask(t, s)
	s.MarkFailed(fresh, *domain.InternalError("x"))

	expired := s.Expired(now, 72*time.Hour, 72*time.Hour)
	if len(expired) != 1 || expired[0].ID != old {
		t.Errorf("expected only old task expired, got %v", expired)
	}

	if got := s.Expired(now, 0, 30*time.Minute); len(got) != 1 || got[0].ID != fresh {
		t.Errorf("expected only failed task with short retention, got %v", got)
	}
}

func TestStore_ConcurrentReads(t *testing.T) {
	s := New()
	id := newRunningTask(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				task, err := s.Get(id)
				if err != nil {
					t.Errorf("get: %v", err)
					return
				}
				// Шаги никогда не регрессируют в наблюдаемом snapshot.
				for _, step := range task.Steps {
					if step.State == domain.StepStateRunning && step.StartedAt == nil {
						t.Errorf("partially written step observed: %+v", step)
					}
				}
				s.List()
				s.Stats()
			}
		}()
	}

	for _, step := range domain.Steps {
		s.StepStarted(id, step)
		s.StepSettled(id, step, domain.StepStateCompleted, time.Millisecond, "")
	}
	wg.Wait()

	task, _ := s.Get(id)
	if task.Progress != 100 {
		t.Errorf("expected progress 100, got %d", task.Progress)
	}
}
