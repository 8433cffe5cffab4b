package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

// NewQueueCmd создаёт команду просмотра очереди.
func NewQueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the admission queue and the running task",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := clientFn().GetQueue()
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(q)
				return nil
			}

			running := q.Running
			if running == "" {
				running = "-"
			}
			out.Fields([][2]string{
				{"Running", running},
				{"Queued", fmt.Sprintf("%d/%d", q.Length, q.Capacity)},
			})

			if len(q.Pending) == 0 {
				return nil
			}
			fmt.Fprintln(out.w)
			rows := make([][]string, len(q.Pending))
			for i, id := range q.Pending {
				rows[i] = []string{strconv.Itoa(i + 1), id}
			}
			out.Table([]string{"POSITION", "ID"}, rows)
			return nil
		},
	}
}

// NewStatsCmd создаёт команду сводной статистики.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := clientFn().GetStats()
			if err != nil {
				return err
			}

			headers := []string{"TOTAL", "QUEUED", "RUNNING", "COMPLETED", "FAILED", "QUEUE", "SLOT"}
			slot := "free"
			if s.SlotBusy {
				slot = "busy"
			}
			rows := [][]string{{
				strconv.Itoa(s.Tasks.Total),
				strconv.Itoa(s.Tasks.Queued),
				strconv.Itoa(s.Tasks.Running),
				strconv.Itoa(s.Tasks.Completed),
				strconv.Itoa(s.Tasks.Failed),
				fmt.Sprintf("%d/%d", s.QueueLength, s.QueueCapacity),
				slot,
			}}
			outputFn().Print(headers, rows, s)
			return nil
		},
	}
}

// NewHistoryCmd создаёт команду просмотра журнала tasks.
func NewHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tasks from the persistent journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListHistory(limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATE", "VIDEO", "CREATED", "FINISHED", "ERROR"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				errCode := ""
				if t.Error != nil {
					errCode = t.Error.Code
				}
				rows[i] = []string{
					t.ID,
					t.State,
					filepath.Base(t.VideoPath),
					t.CreatedAt,
					t.FinishedAt,
					errCode,
				}
			}
			outputFn().Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")

	return cmd
}

// NewCleanupCmd создаёт команду внепланового sweep.
func NewCleanupCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired tasks and orphaned artifact directories now",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := clientFn().RunCleanup()
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(r)
				return nil
			}
			out.Success(fmt.Sprintf("Removed %d expired tasks and %d orphaned directories", r.Expired, r.Orphans))
			return nil
		},
	}
}
