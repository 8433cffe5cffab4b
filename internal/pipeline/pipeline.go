package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shaiso/mocapd/internal/artifacts"
	"github.com/shaiso/mocapd/internal/domain"
	"github.com/shaiso/mocapd/internal/executor"
	"github.com/shaiso/mocapd/internal/telemetry"
)

// Default step timeouts.
const (
	defaultTrackingTimeout   = 900 * time.Second
	defaultExtractionTimeout = 60 * time.Second
	defaultSmoothingTimeout  = 120 * time.Second
	defaultExportTimeout     = 120 * time.Second
	defaultPackagingTimeout  = 60 * time.Second

	// stderrExcerpt — сколько символов stderr попадает в сообщение об ошибке.
	stderrExcerpt = 500
)

// Executor запускает внешнюю команду. Реализация: *executor.Runner.
type Executor interface {
	Run(ctx context.Context, cmd executor.Command) (*executor.Result, error)
}

// Reporter принимает прогресс pipeline. Реализация: *store.Store.
//
// Вызовы синхронные; ошибка означает нарушение инварианта
// (например, регрессию шага) и прерывает pipeline как INTERNAL_ERROR.
type Reporter interface {
	StepStarted(id uuid.UUID, step domain.StepName) error
	StepSettled(id uuid.UUID, step domain.StepName, state domain.StepState, duration time.Duration, message string) error
	RecordArtifact(id uuid.UUID, name domain.ArtifactName, path string) error
	RecordTrack(id uuid.UUID, trackID int) error
}

// Timeouts — лимиты времени шагов.
type Timeouts struct {
	Tracking   time.Duration
	Extraction time.Duration
	Smoothing  time.Duration
	Export     time.Duration
	Packaging  time.Duration
}

// withDefaults заполняет нулевые лимиты значениями по умолчанию.
func (t Timeouts) withDefaults() Timeouts {
	if t.Tracking <= 0 {
		t.Tracking = defaultTrackingTimeout
	}
	if t.Extraction <= 0 {
		t.Extraction = defaultExtractionTimeout
	}
	if t.Smoothing <= 0 {
		t.Smoothing = defaultSmoothingTimeout
	}
	if t.Export <= 0 {
		t.Export = defaultExportTimeout
	}
	if t.Packaging <= 0 {
		t.Packaging = defaultPackagingTimeout
	}
	return t
}

// For возвращает лимит для шага.
func (t Timeouts) For(step domain.StepName) time.Duration {
	switch step {
	case domain.StepTracking:
		return t.Tracking
	case domain.StepTrackExtraction:
		return t.Extraction
	case domain.StepSmoothing:
		return t.Smoothing
	case domain.StepExport:
		return t.Export
	default:
		return t.Packaging
	}
}

// Job — вход pipeline для одного task.
type Job struct {
	TaskID    uuid.UUID
	VideoPath string
	Options   domain.Options
}

// Result — итог выполнения pipeline.
type Result struct {
	Success       bool
	FinalArtifact string
	Artifacts     map[domain.ArtifactName]string
	TrackID       *int
	StepDurations map[domain.StepName]time.Duration
	Error         *domain.TaskError
}

// OutcomeKind — исход шага.
type OutcomeKind int

const (
	// OutcomeOK — шаг выполнен (или пропущен по опциям).
	OutcomeOK OutcomeKind = iota

	// OutcomeSoftFailure — шаг провалился, pipeline продолжает без его результата.
	OutcomeSoftFailure

	// OutcomeFatalFailure — шаг провалился, pipeline прерывается.
	OutcomeFatalFailure
)

// String возвращает имя исхода (для метрик).
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeSoftFailure:
		return "soft_failure"
	default:
		return "fatal_failure"
	}
}

// Outcome — результат одного шага.
type Outcome struct {
	Kind    OutcomeKind
	Skipped bool
	Message string
	Err     *domain.TaskError
}

func ok() Outcome { return Outcome{Kind: OutcomeOK} }

func fatal(kind domain.ErrorKind, code domain.ErrorCode, step domain.StepName, msg string) Outcome {
	return Outcome{
		Kind:    OutcomeFatalFailure,
		Message: msg,
		Err:     &domain.TaskError{Kind: kind, Code: code, Step: step, Message: msg},
	}
}

// stepState — состояние шага для Reporter по исходу.
func (o Outcome) stepState() domain.StepState {
	switch {
	case o.Kind == OutcomeFatalFailure:
		return domain.StepStateFailed
	case o.Kind == OutcomeSoftFailure || o.Skipped:
		return domain.StepStateSkipped
	default:
		return domain.StepStateCompleted
	}
}

// Runner выполняет фиксированную последовательность шагов для одного task.
type Runner struct {
	exec        Executor
	tools       Toolchain
	layout      artifacts.Layout
	projectRoot string
	env         map[string]string
	timeouts    Timeouts
	policy      SmoothingPolicy
	logger      *slog.Logger
}

// Config — конфигурация Runner.
type Config struct {
	// Executor — запуск подпроцессов (обязателен).
	Executor Executor

	// Toolchain — внешние инструменты.
	Toolchain Toolchain

	// Layout — раскладка артефактов по task.
	Layout artifacts.Layout

	// ProjectRoot — рабочая директория инструментов.
	ProjectRoot string

	// Env — переопределения окружения для всех инструментов.
	Env map[string]string

	// Timeouts — лимиты шагов (нулевые заменяются значениями по умолчанию).
	Timeouts Timeouts

	// SmoothingPolicy — soft (default) или required.
	SmoothingPolicy SmoothingPolicy

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := cfg.SmoothingPolicy
	if policy == "" {
		policy = SmoothingSoft
	}

	return &Runner{
		exec:        cfg.Executor,
		tools:       cfg.Toolchain,
		layout:      cfg.Layout,
		projectRoot: cfg.ProjectRoot,
		env:         cfg.Env,
		timeouts:    cfg.Timeouts.withDefaults(),
		policy:      policy,
		logger:      logger,
	}
}

// run — состояние одного выполнения pipeline.
type run struct {
	job     Job
	rep     Reporter
	result  *Result
	taskDir string
	logger  *slog.Logger

	// Пути, передаваемые между шагами.
	tracking string
	motion   string // вход export: extracted или smoothed
	export   string
}

// Run выполняет pipeline. Никогда не паникует намеренно; паника
// изнутри перехватывается вызывающим (оркестратором).
func (r *Runner) Run(ctx context.Context, job Job, rep Reporter) *Result {
	result := &Result{
		Artifacts:     make(map[domain.ArtifactName]string),
		StepDurations: make(map[domain.StepName]time.Duration),
	}

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run",
		attribute.String("task_id", job.TaskID.String()),
	)
	defer span.End()

	logger := telemetry.WithTaskID(r.logger, job.TaskID.String())

	taskDir, err := r.layout.EnsureTaskDir(job.TaskID)
	if err != nil {
		result.Error = domain.InternalError(err.Error())
		return result
	}

	st := &run{
		job:     job,
		rep:     rep,
		result:  result,
		taskDir: taskDir,
		logger:  logger,
	}

	for _, step := range domain.Steps {
		outcome := r.runStep(ctx, st, step)
		if outcome.Kind == OutcomeFatalFailure {
			result.Error = outcome.Err
			span.SetStatus(codes.Error, outcome.Err.Error())
			logger.Warn("pipeline failed",
				"step", step,
				"kind", outcome.Err.Kind,
				"code", outcome.Err.Code,
				"error", outcome.Err.Message,
			)
			return result
		}
	}

	result.Success = true
	logger.Info("pipeline completed", "final_artifact", result.FinalArtifact)
	return result
}

// runStep выполняет один шаг с отчётом о прогрессе до и после.
func (r *Runner) runStep(ctx context.Context, st *run, step domain.StepName) Outcome {
	if err := ctx.Err(); err != nil {
		return r.interrupted(ctx, step)
	}

	if step == domain.StepSmoothing && !st.job.Options.EnableSmoothing {
		if err := st.rep.StepSettled(st.job.TaskID, step, domain.StepStateSkipped, 0, "smoothing disabled"); err != nil {
			return reporterFailure(step, err)
		}
		st.logger.Info("step skipped", "step", step, "reason", "disabled")
		return Outcome{Kind: OutcomeOK, Skipped: true}
	}

	if err := st.rep.StepStarted(st.job.TaskID, step); err != nil {
		return reporterFailure(step, err)
	}

	ctx, span := telemetry.StartSpan(ctx, "pipeline.step",
		attribute.String("task_id", st.job.TaskID.String()),
		attribute.String("step", string(step)),
	)
	defer span.End()

	st.logger.Info("step started", "step", step)
	start := time.Now()

	var outcome Outcome
	switch step {
	case domain.StepTracking:
		outcome = r.tracking(ctx, st)
	case domain.StepTrackExtraction:
		outcome = r.extraction(ctx, st)
	case domain.StepSmoothing:
		outcome = r.smoothing(ctx, st)
	case domain.StepExport:
		outcome = r.export(ctx, st)
	case domain.StepPackaging:
		outcome = r.packaging(ctx, st)
	default:
		outcome = fatal(domain.ErrorKindInternal, domain.CodeInternal, step, "unknown step")
	}

	duration := time.Since(start)
	st.result.StepDurations[step] = duration
	telemetry.StepDuration.WithLabelValues(string(step), outcome.Kind.String()).Observe(duration.Seconds())

	if outcome.Kind != OutcomeOK {
		span.SetStatus(codes.Error, outcome.Message)
	}

	if err := st.rep.StepSettled(st.job.TaskID, step, outcome.stepState(), duration, outcome.Message); err != nil {
		return reporterFailure(step, err)
	}

	switch outcome.Kind {
	case OutcomeOK:
		st.logger.Info("step completed", "step", step, "duration", duration)
	case OutcomeSoftFailure:
		st.logger.Warn("step failed, continuing without it", "step", step, "duration", duration, "reason", outcome.Message)
	}

	return outcome
}

func (r *Runner) tracking(ctx context.Context, st *run) Outcome {
	step := TrackingStep{
		Video:     st.job.VideoPath,
		OutputDir: filepath.Join(st.taskDir, "tracking"),
	}
	if err := os.MkdirAll(filepath.Dir(step.Output()), 0o755); err != nil {
		return fatal(domain.ErrorKindInternal, domain.CodeDiskFull, step.Name(), err.Error())
	}

	if out := r.runCommand(ctx, step); out.Kind != OutcomeOK {
		return out
	}

	st.tracking = step.Output()
	return r.record(st, step.Name(), domain.ArtifactTracking, st.tracking)
}

func (r *Runner) extraction(ctx context.Context, st *run) Outcome {
	trackID, explicit := st.job.Options.ExplicitTrack()
	if !explicit {
		var out Outcome
		trackID, out = r.selectTrack(ctx, st)
		if out.Kind != OutcomeOK {
			return out
		}
	}

	if err := st.rep.RecordTrack(st.job.TaskID, trackID); err != nil {
		return reporterFailure(domain.StepTrackExtraction, err)
	}
	st.result.TrackID = &trackID
	st.logger.Info("track selected", "track_id", trackID, "explicit", explicit)

	id := st.job.TaskID.String()
	step := ExtractionStep{
		Tracking: st.tracking,
		TrackID:  trackID,
		Out:      filepath.Join(st.taskDir, fmt.Sprintf("%s_tid%d_extracted.npz", id, trackID)),
	}
	if out := r.runCommand(ctx, step); out.Kind != OutcomeOK {
		return out
	}

	st.motion = step.Output()
	return r.record(st, step.Name(), domain.ArtifactExtracted, st.motion)
}

// selectTrack перечисляет треки и выбирает самый длинный.
func (r *Runner) selectTrack(ctx context.Context, st *run) (int, Outcome) {
	step := ListTracksStep{Tracking: st.tracking}
	res, out := r.invoke(ctx, step)
	if out.Kind != OutcomeOK {
		return 0, out
	}

	stats, err := ParseTrackListing(strings.NewReader(res.Stdout))
	if err != nil {
		return 0, fatal(domain.ErrorKindStepFailure, domain.CodeExtractionFailed, step.Name(), err.Error())
	}

	trackID, err := SelectTrack(stats)
	if errors.Is(err, ErrNoTracks) {
		return 0, fatal(domain.ErrorKindTrackNotFound, domain.CodeNoTracksFound, step.Name(),
			"no trackable person found in tracking output")
	}
	return trackID, ok()
}

func (r *Runner) smoothing(ctx context.Context, st *run) Outcome {
	id := st.job.TaskID.String()
	opts := st.job.Options
	step := SmoothingStep{
		Input:      st.motion,
		Out:        filepath.Join(st.taskDir, id+"_smoothed.npz"),
		Checkpoint: r.tools.SmoothingCheckpoint,
		Window:     opts.SmoothingWindow,
		EMA:        opts.SmoothingEMA,
		Strength:   opts.SmoothingStrength,
	}

	out := r.runCommand(ctx, step)
	if out.Kind == OutcomeFatalFailure {
		soft := out.Err.Kind == domain.ErrorKindStepFailure || out.Err.Kind == domain.ErrorKindStepTimeout
		if r.policy == SmoothingSoft && soft {
			return Outcome{
				Kind:    OutcomeSoftFailure,
				Message: "smoothing failed, using unsmoothed track: " + out.Message,
			}
		}
		return out
	}

	st.motion = step.Output()
	return r.record(st, step.Name(), domain.ArtifactSmoothed, st.motion)
}

func (r *Runner) export(ctx context.Context, st *run) Outcome {
	opts := st.job.Options
	step := ExportStep{
		Input:      st.motion,
		Out:        filepath.Join(st.taskDir, "export", ExportFileName(st.job.TaskID.String(), opts.WithRootMotion)),
		FPS:        opts.FrameRate,
		RootMotion: opts.WithRootMotion,
	}
	if err := os.MkdirAll(filepath.Dir(step.Out), 0o755); err != nil {
		return fatal(domain.ErrorKindInternal, domain.CodeDiskFull, step.Name(), err.Error())
	}

	if out := r.runCommand(ctx, step); out.Kind != OutcomeOK {
		return out
	}

	st.export = step.Output()
	return r.record(st, step.Name(), domain.ArtifactExport, st.export)
}

func (r *Runner) packaging(ctx context.Context, st *run) Outcome {
	step := PackagingStep{
		Export:  st.export,
		Archive: filepath.Join(st.taskDir, st.job.TaskID.String()+".zip"),
	}

	if _, hasSidecar := step.Sidecar(); !hasSidecar {
		st.result.FinalArtifact = st.export
		return Outcome{Kind: OutcomeOK, Message: "no sidecar resources, export is final"}
	}

	stepCtx, cancel := context.WithTimeout(ctx, r.timeouts.Packaging)
	defer cancel()

	if err := step.Package(stepCtx); err != nil {
		switch {
		case ctx.Err() != nil:
			return r.interrupted(ctx, domain.StepPackaging)
		case stepCtx.Err() != nil:
			return fatal(domain.ErrorKindStepTimeout, domain.CodePackagingFailed, domain.StepPackaging,
				fmt.Sprintf("packaging timed out after %s", r.timeouts.Packaging))
		default:
			return fatal(domain.ErrorKindStepFailure, inferCode(domain.StepPackaging, err.Error()), domain.StepPackaging, err.Error())
		}
	}

	if out := r.record(st, domain.StepPackaging, domain.ArtifactPackage, step.Archive); out.Kind != OutcomeOK {
		return out
	}
	st.result.FinalArtifact = step.Archive
	return ok()
}

// runCommand выполняет шаг и проверяет, что он создал объявленный выход.
func (r *Runner) runCommand(ctx context.Context, step CommandStep) Outcome {
	if _, out := r.invoke(ctx, step); out.Kind != OutcomeOK {
		return out
	}
	if !artifacts.Exists(step.Output()) {
		return fatal(domain.ErrorKindStepFailure, domain.StepErrorCode(step.Name()), step.Name(),
			fmt.Sprintf("tool exited 0 but output %s was not produced", step.Output()))
	}
	return ok()
}

// invoke запускает команду шага и классифицирует исход процесса.
func (r *Runner) invoke(ctx context.Context, step CommandStep) (*executor.Result, Outcome) {
	cmd := step.Command(r.tools)
	cmd.Dir = r.projectRoot
	cmd.Env = r.env
	cmd.Timeout = r.timeouts.For(step.Name())

	res, err := r.exec.Run(ctx, cmd)
	if err != nil {
		return nil, fatal(domain.ErrorKindStepFailure, domain.StepErrorCode(step.Name()), step.Name(), err.Error())
	}

	switch res.Outcome {
	case executor.OutcomeTimedOut:
		return res, fatal(domain.ErrorKindStepTimeout, domain.StepErrorCode(step.Name()), step.Name(),
			fmt.Sprintf("%s timed out after %s", cmd.Name, cmd.Timeout))
	case executor.OutcomeCancelled:
		return res, r.interrupted(ctx, step.Name())
	}

	if res.ExitCode != 0 {
		return res, fatal(domain.ErrorKindStepFailure, inferCode(step.Name(), res.Stderr), step.Name(),
			fmt.Sprintf("%s exited with code %d: %s", cmd.Name, res.ExitCode, excerpt(res.Stderr)))
	}
	return res, ok()
}

// record сообщает о новом артефакте.
func (r *Runner) record(st *run, step domain.StepName, name domain.ArtifactName, path string) Outcome {
	if !r.layout.Contains(st.job.TaskID, path) {
		return fatal(domain.ErrorKindInternal, domain.CodeInternal, step, "artifact outside task directory: "+path)
	}
	if err := st.rep.RecordArtifact(st.job.TaskID, name, path); err != nil {
		return reporterFailure(step, err)
	}
	st.result.Artifacts[name] = path
	return ok()
}

// interrupted классифицирует отмену контекста: истёк общий лимит task
// или процесс останавливается.
func (r *Runner) interrupted(ctx context.Context, step domain.StepName) Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fatal(domain.ErrorKindTaskTimeout, domain.CodeTaskTimeout, step, "task exceeded its overall time limit")
	}
	return fatal(domain.ErrorKindInternal, domain.CodeInternal, step, "pipeline interrupted: orchestrator is shutting down")
}

func reporterFailure(step domain.StepName, err error) Outcome {
	return fatal(domain.ErrorKindInternal, domain.CodeInternal, step, "progress report rejected: "+err.Error())
}

// inferCode уточняет код ошибки по stderr инструмента.
func inferCode(step domain.StepName, stderr string) domain.ErrorCode {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "out of memory"):
		return domain.CodeGPUOutOfMemory
	case strings.Contains(lower, "no space left"), strings.Contains(lower, "disk full"):
		return domain.CodeDiskFull
	default:
		return domain.StepErrorCode(step)
	}
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrExcerpt {
		return s
	}
	return "..." + s[len(s)-stderrExcerpt:]
}
