package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/mocapd/internal/domain"
	"github.com/shaiso/mocapd/internal/mq"
)

// NewTaskCmd создаёт группу команд для работы с tasks.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage mocap tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskSubmitCmd(clientFn, outputFn),
		newTaskEnqueueCmd(outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskWaitCmd(clientFn, outputFn),
		newTaskDeleteCmd(clientFn, outputFn),
		newTaskDownloadCmd(clientFn, outputFn),
	)

	return cmd
}

// optionFlags — флаги опций task, общие для submit и enqueue.
type optionFlags struct {
	trackID      int
	noSmoothing  bool
	strength     float64
	window       int
	ema          float64
	fps          int
	noRootMotion bool
	retain       bool
}

func (f *optionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.trackID, "track-id", -1, "use this track instead of the longest one")
	cmd.Flags().BoolVar(&f.noSmoothing, "no-smoothing", false, "skip the smoothing step")
	cmd.Flags().Float64Var(&f.strength, "strength", domain.DefaultSmoothingStrength, "smoothing strength (0..1]")
	cmd.Flags().IntVar(&f.window, "window", domain.DefaultSmoothingWindow, "smoothing window in frames")
	cmd.Flags().Float64Var(&f.ema, "ema", domain.DefaultSmoothingEMA, "exponential smoothing factor")
	cmd.Flags().IntVar(&f.fps, "fps", domain.DefaultFrameRate, "frame rate of the exported animation")
	cmd.Flags().BoolVar(&f.noRootMotion, "no-root-motion", false, "export without root motion")
	cmd.Flags().BoolVar(&f.retain, "retain", false, "keep intermediate artifacts if the task fails")
}

// options возвращает nil, если ни один флаг не задан: сервер применит умолчания.
func (f *optionFlags) options(cmd *cobra.Command) *domain.Options {
	if !optionsChanged(cmd) {
		return nil
	}

	opts := domain.DefaultOptions()
	if f.trackID >= 0 {
		id := f.trackID
		opts.TrackMode = domain.TrackModeManual
		opts.TrackID = &id
	}
	opts.EnableSmoothing = !f.noSmoothing
	opts.SmoothingStrength = f.strength
	opts.SmoothingWindow = f.window
	opts.SmoothingEMA = f.ema
	opts.FrameRate = f.fps
	opts.WithRootMotion = !f.noRootMotion
	opts.RetainIntermediate = f.retain
	return &opts
}

var optionFlagNames = []string{
	"track-id", "no-smoothing", "strength", "window", "ema", "fps", "no-root-motion", "retain",
}

func optionsChanged(cmd *cobra.Command) bool {
	for _, name := range optionFlagNames {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(strings.ToUpper(state))
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"ID", "STATE", "PROGRESS", "STEP", "VIDEO", "CREATED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{
					t.ID,
					t.State,
					ProgressBar(t.Progress),
					t.CurrentStep,
					filepath.Base(t.VideoPath),
					t.CreatedAt,
				}
			}
			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (queued, running, completed, failed)")

	return cmd
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		taskID string
		wait   bool
		flags  optionFlags
	)

	cmd := &cobra.Command{
		Use:   "submit <video-path>",
		Short: "Submit a video for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.SubmitTask(SubmitTaskRequest{
				TaskID:    taskID,
				VideoPath: args[0],
				Options:   flags.options(cmd),
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task %s queued at position %d", task.ID, task.QueuePosition))
			if !wait {
				out.Print([]string{"ID", "STATE", "POSITION"},
					[][]string{{task.ID, task.State, strconv.Itoa(task.QueuePosition)}}, task)
				return nil
			}

			final, err := waitTask(cmd.Context(), client, out, task.ID, 2*time.Second)
			if err != nil {
				return err
			}
			printTask(out, final)
			return taskResultErr(final)
		},
	}

	cmd.Flags().StringVar(&taskID, "id", "", "task ID (UUID), generated by the server if empty")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the task to finish")
	flags.register(cmd)

	return cmd
}

func newTaskEnqueueCmd(outputFn func() *Output) *cobra.Command {
	var (
		amqpURL string
		taskID  string
		flags   optionFlags
	)

	cmd := &cobra.Command{
		Use:   "enqueue <video-path>",
		Short: "Publish a submission to the RabbitMQ intake queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := mq.SubmitPayload{
				VideoPath: args[0],
				Options:   flags.options(cmd),
			}
			if taskID != "" {
				id, err := uuid.Parse(taskID)
				if err != nil {
					return fmt.Errorf("invalid task ID: %s", taskID)
				}
				payload.TaskID = &id
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			conn, err := mq.NewConnection(amqpURL, logger)
			if err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := mq.SetupTopology(ctx, conn); err != nil {
				return err
			}
			if err := mq.NewPublisher(conn, logger).PublishSubmit(ctx, payload); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Submission for %s published", args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp-url", envOr("RABBITMQ_URL", mq.DefaultURL()), "RabbitMQ URL")
	cmd.Flags().StringVar(&taskID, "id", "", "task ID (UUID)")
	flags.register(cmd)

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().GetTask(args[0])
			if err != nil {
				return err
			}
			printTask(outputFn(), task)
			return nil
		},
	}
}

func newTaskWaitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait <task-id>",
		Short: "Wait for a task to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			out := outputFn()
			task, err := waitTask(ctx, clientFn(), out, args[0], interval)
			if err != nil {
				return err
			}
			printTask(out, task)
			return taskResultErr(task)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this duration (0 = no limit)")

	return cmd
}

func newTaskDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteTask(args[0]); err != nil {
				return err
			}
			outputFn().Success("Task deleted: " + args[0])
			return nil
		},
	}
}

func newTaskDownloadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <task-id>",
		Short: "Download the final artifact of a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if path == "" {
				path = args[0] + ".zip"
			}

			f, err := os.Create(path)
			if err != nil {
				return err
			}

			n, err := clientFn().Download(args[0], f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(path)
				return err
			}

			outputFn().Success(fmt.Sprintf("Saved %s (%d bytes)", path, n))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <task-id>.zip)")

	return cmd
}

// waitTask опрашивает task до терминального состояния.
// Изменения прогресса печатаются в stderr.
func waitTask(ctx context.Context, client *Client, out *Output, id string, interval time.Duration) (*TaskResponse, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		task, err := client.GetTask(id)
		if err != nil {
			return nil, err
		}
		if task.IsFinished() {
			return task, nil
		}

		status := fmt.Sprintf("%s %d%% %s", task.State, task.Progress, task.CurrentStep)
		if task.State == "QUEUED" {
			status = fmt.Sprintf("QUEUED position %d", task.QueuePosition)
		}
		if status != last {
			out.Success(strings.TrimSpace(status))
			last = status
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for task %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// taskResultErr возвращает ошибку для упавшего task (ненулевой код выхода).
func taskResultErr(task *TaskResponse) error {
	if task.State != "FAILED" {
		return nil
	}
	if task.Error != nil {
		return fmt.Errorf("task %s failed: %s: %s", task.ID, task.Error.Code, task.Error.Message)
	}
	return fmt.Errorf("task %s failed", task.ID)
}

func printTask(out *Output, t *TaskResponse) {
	if out.jsonMode {
		out.JSON(t)
		return
	}

	trackID := ""
	if t.TrackID != nil {
		trackID = strconv.Itoa(*t.TrackID)
	}
	position := ""
	if t.QueuePosition > 0 {
		position = strconv.Itoa(t.QueuePosition)
	}
	duration := ""
	if t.DurationMs > 0 {
		duration = (time.Duration(t.DurationMs) * time.Millisecond).String()
	}

	out.Fields([][2]string{
		{"ID", t.ID},
		{"State", t.State},
		{"Video", t.VideoPath},
		{"Progress", ProgressBar(t.Progress)},
		{"Position", position},
		{"Track", trackID},
		{"Created", t.CreatedAt},
		{"Started", t.StartedAt},
		{"Finished", t.FinishedAt},
		{"Duration", duration},
		{"Result", t.FinalArtifact},
		{"Remote", t.RemoteURI},
	})

	if t.Error != nil {
		out.Fields([][2]string{
			{"Error", fmt.Sprintf("%s/%s", t.Error.Kind, t.Error.Code)},
			{"Step", t.Error.Step},
			{"Message", t.Error.Message},
		})
	}

	fmt.Fprintln(out.w)
	rows := make([][]string, len(t.Steps))
	for i, s := range t.Steps {
		d := ""
		if s.DurationMs > 0 {
			d = (time.Duration(s.DurationMs) * time.Millisecond).String()
		}
		rows[i] = []string{s.Name, s.State, strconv.Itoa(s.Percent) + "%", d, s.Message}
	}
	out.Table([]string{"STEP", "STATE", "PERCENT", "DURATION", "MESSAGE"}, rows)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
