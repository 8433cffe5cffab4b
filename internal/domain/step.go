package domain

import "time"

// StepName — имя шага pipeline.
type StepName string

const (
	StepTracking        StepName = "tracking"
	StepTrackExtraction StepName = "track_extraction"
	StepSmoothing       StepName = "smoothing"
	StepExport          StepName = "export"
	StepPackaging       StepName = "packaging"
)

// Steps — фиксированный порядок шагов pipeline.
var Steps = []StepName{
	StepTracking,
	StepTrackExtraction,
	StepSmoothing,
	StepExport,
	StepPackaging,
}

// stepWeights — общий прогресс task (в процентах) после завершения шага.
var stepWeights = map[StepName]int{
	StepTracking:        30,
	StepTrackExtraction: 45,
	StepSmoothing:       70,
	StepExport:          95,
	StepPackaging:       100,
}

// Index возвращает позицию шага в pipeline или -1.
func (n StepName) Index() int {
	for i, s := range Steps {
		if s == n {
			return i
		}
	}
	return -1
}

// Weight возвращает общий прогресс task после завершения шага.
func (n StepName) Weight() int {
	return stepWeights[n]
}

// StepProgress — прогресс одного шага.
type StepProgress struct {
	// Name — имя шага.
	Name StepName `json:"name"`

	// State — состояние шага.
	State StepState `json:"state"`

	// Percent — 0 до завершения, 100 после.
	Percent int `json:"percent"`

	// Message — необязательное пояснение (например, причина пропуска).
	Message string `json:"message,omitempty"`

	// StartedAt — время запуска шага.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// Duration — длительность; заполняется когда шаг settled.
	Duration time.Duration `json:"duration,omitempty"`
}

// NewStepProgress создаёт список шагов в состоянии PENDING.
func NewStepProgress() []StepProgress {
	steps := make([]StepProgress, len(Steps))
	for i, name := range Steps {
		steps[i] = StepProgress{Name: name, State: StepStatePending}
	}
	return steps
}
