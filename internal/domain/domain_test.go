package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// --- TaskState Tests ---

func TestTaskState_IsTerminal(t *testing.T) {
	tests := []struct {
		state TaskState
		want  bool
	}{
		{TaskStateQueued, false},
		{TaskStateRunning, false},
		{TaskStateCompleted, true},
		{TaskStateFailed, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestTaskState_Valid(t *testing.T) {
	if !TaskStateRunning.Valid() {
		t.Error("RUNNING should be valid")
	}
	if TaskState("CANCELLED").Valid() {
		t.Error("CANCELLED should not be valid")
	}
}

// --- StepState Tests ---

func TestStepState_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to StepState
		want     bool
	}{
		{StepStatePending, StepStateRunning, true},
		{StepStatePending, StepStateSkipped, true},
		{StepStateRunning, StepStateCompleted, true},
		{StepStateRunning, StepStateFailed, true},
		{StepStateRunning, StepStateSkipped, true},
		{StepStateRunning, StepStatePending, false},
		{StepStateRunning, StepStateRunning, false},
		{StepStateCompleted, StepStateFailed, false},
		{StepStateSkipped, StepStateRunning, false},
		{StepStateFailed, StepStateCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// --- StepName Tests ---

func TestSteps_Order(t *testing.T) {
	want := []StepName{StepTracking, StepTrackExtraction, StepSmoothing, StepExport, StepPackaging}
	if len(Steps) != len(want) {
		t.Fatalf("len(Steps) = %d, want %d", len(Steps), len(want))
	}
	for i, name := range want {
		if Steps[i] != name {
			t.Errorf("Steps[%d] = %s, want %s", i, Steps[i], name)
		}
		if name.Index() != i {
			t.Errorf("%s.Index() = %d, want %d", name, name.Index(), i)
		}
	}
	if StepName("unknown").Index() != -1 {
		t.Error("unknown step should have index -1")
	}
}

func TestStepName_WeightMonotonic(t *testing.T) {
	prev := 0
	for _, name := range Steps {
		if name.Weight() <= prev {
			t.Errorf("%s weight %d is not greater than %d", name, name.Weight(), prev)
		}
		prev = name.Weight()
	}
	if prev != 100 {
		t.Errorf("last step weight = %d, want 100", prev)
	}
}

// --- Options Tests ---

func TestOptions_DefaultsValid(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("DefaultOptions().Validate() error = %v", err)
	}
}

func TestOptions_NormalizeFillsZeros(t *testing.T) {
	o := Options{EnableSmoothing: true}.Normalize()
	if o.TrackMode != TrackModeAuto {
		t.Errorf("TrackMode = %q", o.TrackMode)
	}
	if o.FrameRate != DefaultFrameRate || o.SmoothingWindow != DefaultSmoothingWindow {
		t.Errorf("normalized = %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestOptions_Validate(t *testing.T) {
	neg := -1
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"unknown track mode", func(o *Options) { o.TrackMode = "best" }},
		{"negative track id", func(o *Options) { o.TrackID = &neg }},
		{"zero fps", func(o *Options) { o.FrameRate = 0 }},
		{"fps too high", func(o *Options) { o.FrameRate = 500 }},
		{"strength above one", func(o *Options) { o.SmoothingStrength = 1.5 }},
		{"zero window", func(o *Options) { o.SmoothingWindow = 0 }},
		{"ema above one", func(o *Options) { o.SmoothingEMA = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.modify(&o)
			err := o.Validate()
			if !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("Validate() error = %v, want ErrInvalidOptions", err)
			}
		})
	}
}

func TestOptions_UnmarshalPartialKeepsDefaults(t *testing.T) {
	var opts Options
	if err := json.Unmarshal([]byte(`{"frame_rate":24}`), &opts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := DefaultOptions()
	want.FrameRate = 24
	if opts != want {
		t.Errorf("expected %+v, got %+v", want, opts)
	}
}

func TestOptions_UnmarshalExplicitFalse(t *testing.T) {
	var opts Options
	data := `{"enable_smoothing":false,"with_root_motion":false,"track_mode":"manual","track_id":2}`
	if err := json.Unmarshal([]byte(data), &opts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if opts.EnableSmoothing || opts.WithRootMotion {
		t.Errorf("explicit false must win, got smoothing=%v root_motion=%v", opts.EnableSmoothing, opts.WithRootMotion)
	}
	if id, ok := opts.ExplicitTrack(); !ok || id != 2 {
		t.Errorf("expected track 2, got %d (ok=%v)", id, ok)
	}
	if opts.SmoothingWindow != DefaultSmoothingWindow {
		t.Errorf("expected default window, got %d", opts.SmoothingWindow)
	}
}

func TestOptions_ExplicitTrack(t *testing.T) {
	id := 4
	o := DefaultOptions()
	o.TrackID = &id

	if _, ok := o.ExplicitTrack(); ok {
		t.Error("auto mode should ignore TrackID")
	}

	o.TrackMode = TrackModeManual
	got, ok := o.ExplicitTrack()
	if !ok || got != 4 {
		t.Errorf("ExplicitTrack() = %d, %v", got, ok)
	}
}

// --- Task Tests ---

func TestNewTask(t *testing.T) {
	task := NewTask(uuid.New(), "/videos/a.mp4", DefaultOptions())

	if task.State != TaskStateQueued {
		t.Errorf("State = %s, want QUEUED", task.State)
	}
	if len(task.Steps) != len(Steps) {
		t.Fatalf("len(Steps) = %d", len(task.Steps))
	}
	for _, s := range task.Steps {
		if s.State != StepStatePending {
			t.Errorf("step %s = %s, want PENDING", s.Name, s.State)
		}
	}
	if task.Artifacts == nil {
		t.Error("Artifacts should be initialized")
	}
}

func TestTask_Lifecycle(t *testing.T) {
	task := NewTask(uuid.New(), "/videos/a.mp4", DefaultOptions())

	task.MarkRunning()
	if task.State != TaskStateRunning || task.StartedAt == nil {
		t.Fatalf("after MarkRunning: %s, started=%v", task.State, task.StartedAt)
	}

	task.CurrentStep = StepExport
	task.MarkCompleted("/out/result.zip")
	if !task.IsFinished() || task.Progress != 100 || task.CurrentStep != "" {
		t.Errorf("after MarkCompleted: %+v", task)
	}
	if task.FinalArtifact != "/out/result.zip" {
		t.Errorf("FinalArtifact = %q", task.FinalArtifact)
	}
	if task.Duration() < 0 {
		t.Errorf("Duration() = %v", task.Duration())
	}
}

func TestTask_MarkFailed(t *testing.T) {
	task := NewTask(uuid.New(), "/videos/a.mp4", DefaultOptions())
	task.MarkRunning()
	task.Progress = 45

	task.MarkFailed(TaskError{Kind: ErrorKindStepTimeout, Code: CodeTrackingFailed, Step: StepTracking, Message: "timed out"})

	if task.State != TaskStateFailed || task.Error == nil {
		t.Fatalf("after MarkFailed: %s, err=%v", task.State, task.Error)
	}
	if task.Progress != 45 {
		t.Errorf("Progress = %d, failure must not reset progress", task.Progress)
	}
}

func TestTask_RecomputeProgress(t *testing.T) {
	task := NewTask(uuid.New(), "/videos/a.mp4", DefaultOptions())

	task.Step(StepTracking).State = StepStateCompleted
	task.Step(StepTrackExtraction).State = StepStateCompleted
	task.RecomputeProgress()
	if task.Progress != 45 {
		t.Errorf("Progress = %d, want 45", task.Progress)
	}

	task.Step(StepSmoothing).State = StepStateSkipped
	task.RecomputeProgress()
	if task.Progress != 70 {
		t.Errorf("Progress after skip = %d, want 70", task.Progress)
	}

	task.Step(StepExport).State = StepStateRunning
	task.RecomputeProgress()
	if task.Progress != 70 {
		t.Errorf("running step must not count, Progress = %d", task.Progress)
	}
}

func TestTask_CloneIsDeep(t *testing.T) {
	id := 2
	task := NewTask(uuid.New(), "/videos/a.mp4", DefaultOptions())
	task.MarkRunning()
	task.TrackID = &id
	task.Artifacts[ArtifactTracking] = "/out/tracking.pkl"
	started := time.Now()
	task.Step(StepTracking).StartedAt = &started

	c := task.Clone()
	c.Steps[0].State = StepStateFailed
	c.Artifacts[ArtifactExport] = "/out/x.fbx"
	*c.TrackID = 9
	*c.Steps[0].StartedAt = started.Add(time.Hour)

	if task.Steps[0].State != StepStatePending {
		t.Error("clone shares Steps")
	}
	if _, ok := task.Artifacts[ArtifactExport]; ok {
		t.Error("clone shares Artifacts")
	}
	if *task.TrackID != 2 {
		t.Error("clone shares TrackID")
	}
	if !task.Steps[0].StartedAt.Equal(started) {
		t.Error("clone shares step StartedAt")
	}
}

// --- TaskError Tests ---

func TestStepErrorCode(t *testing.T) {
	if StepErrorCode(StepExport) != CodeExportFailed {
		t.Errorf("export code = %s", StepErrorCode(StepExport))
	}
	if StepErrorCode("other") != CodeInternal {
		t.Errorf("unknown step code = %s", StepErrorCode("other"))
	}
}

func TestTaskError_Error(t *testing.T) {
	e := &TaskError{Kind: ErrorKindStepFailure, Code: CodeNoTracksFound, Step: StepTrackExtraction, Message: "no tracks"}
	if !strings.Contains(e.Error(), "at track_extraction") {
		t.Errorf("Error() = %q", e.Error())
	}
	if got := InternalError("boom").Error(); got != "INTERNAL_ERROR (INTERNAL_ERROR): boom" {
		t.Errorf("InternalError().Error() = %q", got)
	}
}
