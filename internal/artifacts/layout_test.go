package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// --- Layout Tests ---

func TestLayout_RemoveTask_Idempotent(t *testing.T) {
	layout, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}

	a, b := uuid.New(), uuid.New()
	touch(t, filepath.Join(layout.TaskDir(a), "tracking", "out.pkl"))
	touch(t, filepath.Join(layout.TaskDir(b), "export", "b.fbx"))

	if err := layout.RemoveTask(a); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := layout.RemoveTask(a); err != nil {
		t.Fatalf("second remove should be no-op: %v", err)
	}

	if Exists(layout.TaskDir(a)) {
		t.Error("task A dir should be removed")
	}
	if !Exists(filepath.Join(layout.TaskDir(b), "export", "b.fbx")) {
		t.Error("task B artifacts must not be touched")
	}
}

func TestLayout_Contains(t *testing.T) {
	layout := Layout{Root: "/work"}
	id := uuid.New()

	if !layout.Contains(id, filepath.Join(layout.TaskDir(id), "x.npz")) {
		t.Error("path inside task dir should be contained")
	}
	if layout.Contains(id, filepath.Join("/work", uuid.New().String(), "x.npz")) {
		t.Error("path of another task must not be contained")
	}
	if layout.Contains(id, "/etc/passwd") {
		t.Error("path outside root must not be contained")
	}
}

func TestLayout_TaskDirs(t *testing.T) {
	layout, _ := NewLayout(t.TempDir())
	id := uuid.New()
	touch(t, filepath.Join(layout.TaskDir(id), "a"))
	touch(t, filepath.Join(layout.Root, "not-a-task", "a"))

	ids, err := layout.TaskDirs()
	if err != nil {
		t.Fatalf("task dirs: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("expected [%s], got %v", id, ids)
	}
}

func TestSidecarDir(t *testing.T) {
	if got := SidecarDir("/x/clip.fbx"); got != "/x/clip.fbm" {
		t.Errorf("unexpected sidecar %q", got)
	}
	if got := SidecarDir("/x/clip.zip"); got != "" {
		t.Errorf("zip has no sidecar, got %q", got)
	}
}

func TestObjectName(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	got := ObjectName("mocap", id, "/work/x/clip.zip")
	want := "mocap/00000000-0000-0000-0000-000000000001/clip.zip"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
