package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- Client Tests ---

func TestClient_SubmitTask(t *testing.T) {
	var got SubmitTaskRequest
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"data": map[string]any{"id": "t-1", "state": "QUEUED", "queue_position": 2},
		})
	})

	task, err := client.SubmitTask(SubmitTaskRequest{VideoPath: "/videos/a.mp4"})
	if err != nil {
		t.Fatalf("SubmitTask() error = %v", err)
	}
	if got.VideoPath != "/videos/a.mp4" {
		t.Errorf("video_path = %q", got.VideoPath)
	}
	if got.Options != nil {
		t.Errorf("options should be omitted, got %+v", got.Options)
	}
	if task.ID != "t-1" || task.State != "QUEUED" || task.QueuePosition != 2 {
		t.Errorf("task = %+v", task)
	}
}

func TestClient_ListTasks_StateFilter(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "FAILED" {
			t.Errorf("state query = %q", r.URL.Query().Get("state"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":  []map[string]any{{"id": "a", "state": "FAILED"}},
			"total": 1,
		})
	})

	tasks, err := client.ListTasks("FAILED")
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "a" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestClient_ErrorEnvelope(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]any{"code": "QUEUE_FULL", "message": "queue is full"},
		})
	})

	_, err := client.SubmitTask(SubmitTaskRequest{VideoPath: "/v.mp4"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "QUEUE_FULL: queue is full" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestClient_ErrorWithoutEnvelope(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	if _, err := client.GetStats(); err == nil || !strings.Contains(err.Error(), "HTTP 502") {
		t.Errorf("error = %v, want HTTP 502", err)
	}
}

func TestClient_DeleteTask(t *testing.T) {
	var method, path string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteTask("abc"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if method != http.MethodDelete || path != "/api/v1/tasks/abc" {
		t.Errorf("request = %s %s", method, path)
	}
}

func TestClient_Download(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tasks/abc/download" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/zip")
		io.WriteString(w, "PK-payload")
	})

	var buf bytes.Buffer
	n, err := client.Download("abc", &buf)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(len("PK-payload")) || buf.String() != "PK-payload" {
		t.Errorf("downloaded %d bytes: %q", n, buf.String())
	}
}

func TestClient_QueueStatsHistoryCleanup(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/queue":
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"length": 1, "capacity": 10, "running": "r-1", "pending": []string{"p-1"},
			}})
		case "/api/v1/stats":
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"tasks":     map[string]any{"total": 3, "completed": 2, "failed": 1},
				"slot_busy": true,
			}})
		case "/api/v1/history":
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("limit = %q", r.URL.Query().Get("limit"))
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{{"id": "h"}}, "total": 1})
		case "/api/v1/admin/cleanup":
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"expired": 2, "orphans": 1}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	q, err := client.GetQueue()
	if err != nil || q.Running != "r-1" || len(q.Pending) != 1 || q.Capacity != 10 {
		t.Errorf("GetQueue() = %+v, %v", q, err)
	}
	s, err := client.GetStats()
	if err != nil || s.Tasks.Total != 3 || !s.SlotBusy {
		t.Errorf("GetStats() = %+v, %v", s, err)
	}
	h, err := client.ListHistory(5)
	if err != nil || len(h) != 1 {
		t.Errorf("ListHistory() = %+v, %v", h, err)
	}
	c, err := client.RunCleanup()
	if err != nil || c.Expired != 2 || c.Orphans != 1 {
		t.Errorf("RunCleanup() = %+v, %v", c, err)
	}
}

// --- Command Tests ---

func TestOptionFlags_DefaultsOmitted(t *testing.T) {
	var flags optionFlags
	cmd := &cobra.Command{Use: "x"}
	flags.register(cmd)
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatal(err)
	}
	if opts := flags.options(cmd); opts != nil {
		t.Errorf("options() = %+v, want nil", opts)
	}
}

func TestOptionFlags_Changed(t *testing.T) {
	var flags optionFlags
	cmd := &cobra.Command{Use: "x"}
	flags.register(cmd)
	if err := cmd.ParseFlags([]string{"--track-id", "3", "--no-smoothing", "--fps", "24"}); err != nil {
		t.Fatal(err)
	}

	opts := flags.options(cmd)
	if opts == nil {
		t.Fatal("options() = nil")
	}
	if opts.TrackMode != "manual" || opts.TrackID == nil || *opts.TrackID != 3 {
		t.Errorf("track = %s/%v", opts.TrackMode, opts.TrackID)
	}
	if opts.EnableSmoothing {
		t.Error("smoothing should be disabled")
	}
	if opts.FrameRate != 24 || !opts.WithRootMotion {
		t.Errorf("opts = %+v", opts)
	}
}

func TestTaskShow_PrintsSteps(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id":       "t-9",
			"state":    "FAILED",
			"progress": 40,
			"steps": []map[string]any{
				{"name": "tracking", "state": "COMPLETED", "percent": 100},
				{"name": "track_extraction", "state": "FAILED", "percent": 0},
			},
			"error": map[string]any{"kind": "STEP_FAILURE", "code": "NO_TRACKS_FOUND", "message": "no tracks"},
		}})
	})

	var stdout, stderr bytes.Buffer
	out := newOutputTo(false, &stdout, &stderr)
	cmd := NewTaskCmd(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs([]string{"show", "t-9"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	text := stdout.String()
	for _, want := range []string{"t-9", "FAILED", "NO_TRACKS_FOUND", "track_extraction"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestTaskResultErr(t *testing.T) {
	if err := taskResultErr(&TaskResponse{ID: "a", State: "COMPLETED"}); err != nil {
		t.Errorf("completed: %v", err)
	}
	err := taskResultErr(&TaskResponse{ID: "a", State: "FAILED", Error: &TaskError{Code: "TASK_TIMEOUT", Message: "late"}})
	if err == nil || !strings.Contains(err.Error(), "TASK_TIMEOUT") {
		t.Errorf("failed: %v", err)
	}
}

// --- Output Tests ---

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{0, "[----------]   0%"},
		{45, "[####------]  45%"},
		{100, "[##########] 100%"},
		{150, "[##########] 100%"},
		{-5, "[----------]   0%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.percent); got != tt.want {
			t.Errorf("ProgressBar(%d) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestOutput_JSONMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := newOutputTo(true, &stdout, &stderr)
	out.Print([]string{"A"}, [][]string{{"x"}}, map[string]int{"n": 1})

	if !strings.Contains(stdout.String(), `"n": 1`) {
		t.Errorf("stdout = %q", stdout.String())
	}
	if stderr.Len() != 0 {
		t.Errorf("stderr = %q", stderr.String())
	}
}
