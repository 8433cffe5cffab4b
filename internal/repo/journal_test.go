package repo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/mocapd/internal/domain"
)

// --- Snapshot Tests ---

func runningSnapshot(t *testing.T) []byte {
	t.Helper()

	task := domain.NewTask(uuid.New(), "/videos/dance.mp4", domain.DefaultOptions())
	task.MarkRunning()
	task.CurrentStep = domain.StepTracking

	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestDecodeSnapshot_SameState(t *testing.T) {
	task, err := decodeSnapshot(runningSnapshot(t), journalRow{state: domain.TaskStateRunning})
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}
	if task.State != domain.TaskStateRunning || task.CurrentStep != domain.StepTracking {
		t.Errorf("snapshot should be returned as is, got %s/%s", task.State, task.CurrentStep)
	}
	if len(task.Steps) != len(domain.Steps) {
		t.Errorf("expected %d steps, got %d", len(domain.Steps), len(task.Steps))
	}
}

func TestDecodeSnapshot_Interrupted(t *testing.T) {
	finished := time.Now().UTC()
	kind := string(domain.ErrorKindInternal)
	code := string(domain.CodeInternal)
	message := "interrupted by restart"

	task, err := decodeSnapshot(runningSnapshot(t), journalRow{
		state:      domain.TaskStateFailed,
		kind:       &kind,
		code:       &code,
		message:    &message,
		finishedAt: &finished,
	})
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}

	if task.State != domain.TaskStateFailed {
		t.Errorf("expected FAILED, got %s", task.State)
	}
	if task.CurrentStep != "" {
		t.Errorf("current step should be cleared, got %s", task.CurrentStep)
	}
	if task.Error == nil || task.Error.Message != message || task.Error.Code != domain.CodeInternal {
		t.Errorf("unexpected error record %+v", task.Error)
	}
	if task.FinishedAt == nil || !task.FinishedAt.Equal(finished) {
		t.Errorf("unexpected finished_at %v", task.FinishedAt)
	}
}

func TestDecodeSnapshot_Malformed(t *testing.T) {
	if _, err := decodeSnapshot([]byte("{"), journalRow{}); err == nil {
		t.Fatal("expected error")
	}
}

// --- Lock Tests ---

func TestLockKey(t *testing.T) {
	a := LockKey("/srv/mocap/outputs")
	if a != LockKey("/srv/mocap/outputs") {
		t.Error("key must be stable")
	}
	if a == LockKey("/srv/other/outputs") {
		t.Error("different roots should produce different keys")
	}
}

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Error("empty string should map to nil")
	}
	if got := nullString("x"); got == nil || *got != "x" {
		t.Errorf("unexpected %v", got)
	}
}
