package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shaiso/mocapd/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepResponse — прогресс шага из API.
type StepResponse struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Percent    int    `json:"percent"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// TaskError — ошибка task из API.
type TaskError struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	ID            string            `json:"id"`
	State         string            `json:"state"`
	VideoPath     string            `json:"video_path"`
	Progress      int               `json:"progress"`
	CurrentStep   string            `json:"current_step,omitempty"`
	QueuePosition int               `json:"queue_position,omitempty"`
	Steps         []StepResponse    `json:"steps"`
	Artifacts     map[string]string `json:"artifacts,omitempty"`
	FinalArtifact string            `json:"final_artifact,omitempty"`
	RemoteURI     string            `json:"remote_uri,omitempty"`
	TrackID       *int              `json:"track_id,omitempty"`
	Error         *TaskError        `json:"error,omitempty"`
	CreatedAt     string            `json:"created_at"`
	StartedAt     string            `json:"started_at,omitempty"`
	FinishedAt    string            `json:"finished_at,omitempty"`
	DurationMs    int64             `json:"duration_ms,omitempty"`
}

// IsFinished возвращает true, если task в терминальном состоянии.
func (t TaskResponse) IsFinished() bool {
	return t.State == "COMPLETED" || t.State == "FAILED"
}

// QueueResponse — состояние очереди из API.
type QueueResponse struct {
	Length   int      `json:"length"`
	Capacity int      `json:"capacity"`
	Running  string   `json:"running,omitempty"`
	Pending  []string `json:"pending"`
}

// StatsResponse — статистика из API.
type StatsResponse struct {
	Tasks struct {
		Total     int `json:"total"`
		Queued    int `json:"queued"`
		Running   int `json:"running"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"tasks"`
	QueueLength   int  `json:"queue_length"`
	QueueCapacity int  `json:"queue_capacity"`
	SlotBusy      bool `json:"slot_busy"`
}

// CleanupResponse — итог sweep из API.
type CleanupResponse struct {
	Expired int `json:"expired"`
	Orphans int `json:"orphans"`
}

// --- Request types ---

// SubmitTaskRequest — постановка task в очередь.
type SubmitTaskRequest struct {
	TaskID    string          `json:"task_id,omitempty"`
	VideoPath string          `json:"video_path"`
	Options   *domain.Options `json:"options,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для mocapd API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// SubmitTask ставит task в очередь.
func (c *Client) SubmitTask(req SubmitTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// ListTasks возвращает tasks. Если state не пустой — фильтрует.
func (c *Client) ListTasks(state string) ([]TaskResponse, error) {
	params := url.Values{}
	if state != "" {
		params.Set("state", state)
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// GetTask возвращает task по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// DeleteTask удаляет task.
func (c *Client) DeleteTask(id string) error {
	return c.delete("/api/v1/tasks/" + id)
}

// Download копирует итоговый артефакт task в w.
func (c *Client) Download(id string, w io.Writer) (int64, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/tasks/"+id+"/download", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}

// --- Queue & stats ---

// GetQueue возвращает состояние очереди.
func (c *Client) GetQueue() (*QueueResponse, error) {
	var q QueueResponse
	err := c.get("/api/v1/queue", &q)
	return &q, err
}

// GetStats возвращает статистику.
func (c *Client) GetStats() (*StatsResponse, error) {
	var s StatsResponse
	err := c.get("/api/v1/stats", &s)
	return &s, err
}

// ListHistory возвращает последние записи журнала.
func (c *Client) ListHistory(limit int) ([]TaskResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/history", params, &tasks)
	return tasks, err
}

// RunCleanup запускает внеплановый sweep.
func (c *Client) RunCleanup() (*CleanupResponse, error) {
	var r CleanupResponse
	err := c.post("/api/v1/admin/cleanup", nil, &r)
	return &r, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
