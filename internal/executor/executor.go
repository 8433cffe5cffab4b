package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"
)

// Default configuration values.
const (
	defaultGracePeriod = 5 * time.Second
	defaultOutputLimit = 1 << 20 // 1 MiB хвоста stdout/stderr
)

// Outcome — чем закончился запуск процесса.
type Outcome string

const (
	// OutcomeExited — процесс завершился сам (код выхода в ExitCode).
	OutcomeExited Outcome = "exited"

	// OutcomeTimedOut — истёк Command.Timeout, группа процессов убита.
	OutcomeTimedOut Outcome = "timed_out"

	// OutcomeCancelled — отменён родительский контекст, группа процессов убита.
	OutcomeCancelled Outcome = "cancelled"
)

// Command — описание одного запуска внешнего инструмента.
type Command struct {
	// Name — логическое имя (для логов), например "tracking".
	Name string

	// Path — исполняемый файл.
	Path string

	// Args — аргументы (без Path).
	Args []string

	// Dir — рабочая директория.
	Dir string

	// Env — переопределения переменных окружения поверх окружения процесса.
	Env map[string]string

	// Timeout — лимит времени; 0 — без лимита (только контекст).
	Timeout time.Duration
}

// Result — результат запуска.
type Result struct {
	Outcome  Outcome
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success возвращает true, если процесс завершился с кодом 0.
func (r *Result) Success() bool {
	return r.Outcome == OutcomeExited && r.ExitCode == 0
}

// Runner запускает внешние команды с гарантированным завершением
// всего дерева процессов при таймауте или отмене.
type Runner struct {
	gracePeriod time.Duration
	outputLimit int
	logger      *slog.Logger
}

// Config — конфигурация Runner.
type Config struct {
	// GracePeriod — сколько ждать после SIGTERM перед SIGKILL (default: 5s).
	GracePeriod time.Duration

	// OutputLimit — сколько последних байт stdout/stderr сохранять (default: 1 MiB).
	OutputLimit int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	limit := cfg.OutputLimit
	if limit <= 0 {
		limit = defaultOutputLimit
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		gracePeriod: grace,
		outputLimit: limit,
		logger:      logger,
	}
}

// Run выполняет команду до завершения, таймаута или отмены ctx.
//
// При таймауте и отмене Run посылает SIGTERM всей группе процессов,
// ждёт GracePeriod, затем SIGKILL, и возвращается только после
// подтверждённого завершения процесса.
//
// error возвращается только если процесс не удалось запустить
// или не удалось подтвердить его завершение.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	setProcessGroup(cmd)

	stdout := newTailBuffer(r.outputLimit)
	stderr := newTailBuffer(r.outputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Потомки, унаследовавшие pipe, не должны блокировать Wait бесконечно.
	cmd.WaitDelay = r.gracePeriod

	logger := r.logger.With("command", c.Name)
	logger.Debug("starting command", "path", c.Path, "args", c.Args, "dir", c.Dir, "timeout", c.Timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStart, c.Path, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timeoutC <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	result := &Result{Outcome: OutcomeExited}

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timeoutC:
		result.Outcome = OutcomeTimedOut
		logger.Warn("command timed out, terminating process group", "timeout", c.Timeout)
		if err := r.terminate(cmd, done, logger); err != nil {
			return nil, err
		}
	case <-ctx.Done():
		result.Outcome = OutcomeCancelled
		logger.Warn("command cancelled, terminating process group", "reason", ctx.Err())
		if err := r.terminate(cmd, done, logger); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if result.Outcome == OutcomeExited {
		if cmd.ProcessState == nil {
			return nil, fmt.Errorf("wait %s: %w", c.Path, waitErr)
		}
		// -1 если процесс убит сигналом извне.
		result.ExitCode = cmd.ProcessState.ExitCode()
		// Фоновые потомки не переживают команду.
		killGroup(cmd)
	} else {
		result.ExitCode = -1
	}

	logger.Debug("command finished",
		"outcome", result.Outcome,
		"exit_code", result.ExitCode,
		"duration", result.Duration,
	)

	return result, nil
}

// terminate завершает группу процессов: SIGTERM → grace → SIGKILL → ожидание.
func (r *Runner) terminate(cmd *exec.Cmd, done <-chan error, logger *slog.Logger) error {
	signalGroup(cmd, sigTerm)

	select {
	case <-done:
		killGroup(cmd)
		return nil
	case <-time.After(r.gracePeriod):
	}

	logger.Warn("process group ignored SIGTERM, sending SIGKILL", "grace", r.gracePeriod)
	killGroup(cmd)

	select {
	case <-done:
		return nil
	case <-time.After(r.gracePeriod):
		return fmt.Errorf("%w: pid %d", ErrKillUnconfirmed, cmd.Process.Pid)
	}
}

// mergeEnv накладывает overrides на base в формате KEY=VALUE.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key = kv[:i]
				break
			}
		}
		if _, overridden := overrides[key]; overridden {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
