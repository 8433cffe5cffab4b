package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/mocapd/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS mocap_tasks (
		id            UUID PRIMARY KEY,
		state         TEXT NOT NULL,
		video_path    TEXT NOT NULL,
		snapshot      JSONB NOT NULL,
		error_kind    TEXT,
		error_code    TEXT,
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS mocap_tasks_state_idx ON mocap_tasks (state);
	CREATE INDEX IF NOT EXISTS mocap_tasks_created_at_idx ON mocap_tasks (created_at DESC);
`

// TaskJournal — журнал snapshot tasks в Postgres.
//
// Журнал только отражает историю: tasks из него никогда не
// восстанавливаются в очередь. После рестарта незавершённые записи
// помечаются FAILED через MarkInterrupted.
type TaskJournal struct {
	pool *pgxpool.Pool
}

// NewTaskJournal создаёт новый TaskJournal.
func NewTaskJournal(pool *pgxpool.Pool) *TaskJournal {
	return &TaskJournal{pool: pool}
}

// EnsureSchema создаёт таблицу журнала, если её нет.
func (j *TaskJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

// Save сохраняет snapshot task (upsert).
func (j *TaskJournal) Save(ctx context.Context, task *domain.Task) error {
	snapshot, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	var kind, code, message *string
	if task.Error != nil {
		kind = nullString(string(task.Error.Kind))
		code = nullString(string(task.Error.Code))
		message = nullString(task.Error.Message)
	}

	query := `
		INSERT INTO mocap_tasks (id, state, video_path, snapshot, error_kind, error_code,
		                         error_message, created_at, finished_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, snapshot = EXCLUDED.snapshot,
		    error_kind = EXCLUDED.error_kind, error_code = EXCLUDED.error_code,
		    error_message = EXCLUDED.error_message, finished_at = EXCLUDED.finished_at,
		    updated_at = now()
	`
	_, err = j.pool.Exec(ctx, query,
		task.ID,
		task.State,
		task.VideoPath,
		snapshot,
		kind,
		code,
		message,
		task.CreatedAt,
		task.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// MarkInterrupted помечает FAILED все записи в QUEUED или RUNNING
// и возвращает их идентификаторы.
func (j *TaskJournal) MarkInterrupted(ctx context.Context, reason string) ([]uuid.UUID, error) {
	query := `
		UPDATE mocap_tasks
		SET state = $1, error_kind = $2, error_code = $3, error_message = $4,
		    finished_at = now(), updated_at = now()
		WHERE state IN ($5, $6)
		RETURNING id
	`
	rows, err := j.pool.Query(ctx, query,
		domain.TaskStateFailed,
		domain.ErrorKindInternal,
		domain.CodeInternal,
		reason,
		domain.TaskStateQueued,
		domain.TaskStateRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("mark interrupted: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect interrupted: %w", err)
	}
	return ids, nil
}

// Get возвращает task из журнала.
func (j *TaskJournal) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT snapshot, state, error_kind, error_code, error_message, finished_at
		FROM mocap_tasks
		WHERE id = $1
	`
	task, err := scanJournalRow(j.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task, err
}

// Recent возвращает последние limit записей журнала, новые первыми.
func (j *TaskJournal) Recent(ctx context.Context, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT snapshot, state, error_kind, error_code, error_message, finished_at
		FROM mocap_tasks
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := j.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanJournalRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Delete удаляет запись журнала. Отсутствие записи не ошибка.
func (j *TaskJournal) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := j.pool.Exec(ctx, `DELETE FROM mocap_tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// --- Helpers ---

// journalRow — столбцы записи, которые могут быть новее snapshot.
type journalRow struct {
	state      domain.TaskState
	kind       *string
	code       *string
	message    *string
	finishedAt *time.Time
}

func scanJournalRow(row pgx.Row) (*domain.Task, error) {
	var snapshot []byte
	var r journalRow

	if err := row.Scan(&snapshot, &r.state, &r.kind, &r.code, &r.message, &r.finishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return decodeSnapshot(snapshot, r)
}

// decodeSnapshot восстанавливает task из snapshot и накладывает столбцы
// состояния: MarkInterrupted меняет только их.
func decodeSnapshot(snapshot []byte, r journalRow) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(snapshot, &task); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	if task.State == r.state {
		return &task, nil
	}

	task.State = r.state
	task.CurrentStep = ""
	task.FinishedAt = r.finishedAt
	if r.kind != nil {
		task.Error = &domain.TaskError{Kind: domain.ErrorKind(*r.kind)}
		if r.code != nil {
			task.Error.Code = domain.ErrorCode(*r.code)
		}
		if r.message != nil {
			task.Error.Message = *r.message
		}
	}
	return &task, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
