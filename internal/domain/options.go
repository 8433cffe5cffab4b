package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TrackMode — режим выбора трека.
type TrackMode string

const (
	// TrackModeAuto — выбирается самый длинный трек.
	TrackModeAuto TrackMode = "auto"

	// TrackModeManual — используется явный TrackID.
	TrackModeManual TrackMode = "manual"
)

// Значения опций по умолчанию.
const (
	DefaultFrameRate         = 30
	DefaultSmoothingStrength = 1.0
	DefaultSmoothingWindow   = 9
	DefaultSmoothingEMA      = 0.2
)

// ErrInvalidOptions — опции task не прошли проверку.
var ErrInvalidOptions = errors.New("invalid task options")

// Options — конфигурация одного task.
type Options struct {
	// TrackMode — auto или manual.
	TrackMode TrackMode `json:"track_mode"`

	// TrackID — явный трек для manual режима.
	TrackID *int `json:"track_id,omitempty"`

	// EnableSmoothing — запускать ли шаг smoothing.
	EnableSmoothing bool `json:"enable_smoothing"`

	// SmoothingStrength — сила сглаживания (0..1].
	SmoothingStrength float64 `json:"smoothing_strength"`

	// SmoothingWindow — окно сглаживания в кадрах.
	SmoothingWindow int `json:"smoothing_window"`

	// SmoothingEMA — коэффициент экспоненциального сглаживания.
	SmoothingEMA float64 `json:"smoothing_ema"`

	// FrameRate — FPS экспортируемой анимации.
	FrameRate int `json:"frame_rate"`

	// WithRootMotion — экспортировать root motion.
	WithRootMotion bool `json:"with_root_motion"`

	// RetainIntermediate — не удалять артефакты при ошибке.
	RetainIntermediate bool `json:"retain_intermediate"`
}

// DefaultOptions возвращает опции по умолчанию.
func DefaultOptions() Options {
	return Options{
		TrackMode:         TrackModeAuto,
		EnableSmoothing:   true,
		SmoothingStrength: DefaultSmoothingStrength,
		SmoothingWindow:   DefaultSmoothingWindow,
		SmoothingEMA:      DefaultSmoothingEMA,
		FrameRate:         DefaultFrameRate,
		WithRootMotion:    true,
	}
}

// UnmarshalJSON разбирает опции поверх DefaultOptions: поля, отсутствующие
// в JSON, сохраняют значения по умолчанию.
func (o *Options) UnmarshalJSON(data []byte) error {
	type plain Options
	opts := plain(DefaultOptions())
	if err := json.Unmarshal(data, &opts); err != nil {
		return err
	}
	*o = Options(opts)
	return nil
}

// Normalize заполняет нулевые числовые поля значениями по умолчанию.
func (o Options) Normalize() Options {
	if o.TrackMode == "" {
		o.TrackMode = TrackModeAuto
	}
	if o.SmoothingStrength == 0 {
		o.SmoothingStrength = DefaultSmoothingStrength
	}
	if o.SmoothingWindow == 0 {
		o.SmoothingWindow = DefaultSmoothingWindow
	}
	if o.SmoothingEMA == 0 {
		o.SmoothingEMA = DefaultSmoothingEMA
	}
	if o.FrameRate == 0 {
		o.FrameRate = DefaultFrameRate
	}
	return o
}

// Validate проверяет опции. Проверка самого видео — забота вызывающего.
func (o Options) Validate() error {
	switch o.TrackMode {
	case TrackModeAuto, TrackModeManual:
	default:
		return fmt.Errorf("%w: unknown track_mode %q", ErrInvalidOptions, o.TrackMode)
	}
	if o.TrackID != nil && *o.TrackID < 0 {
		return fmt.Errorf("%w: track_id must be non-negative", ErrInvalidOptions)
	}
	if o.FrameRate <= 0 || o.FrameRate > 240 {
		return fmt.Errorf("%w: frame_rate must be in 1..240", ErrInvalidOptions)
	}
	if o.SmoothingStrength <= 0 || o.SmoothingStrength > 1 {
		return fmt.Errorf("%w: smoothing_strength must be in (0, 1]", ErrInvalidOptions)
	}
	if o.SmoothingWindow <= 0 {
		return fmt.Errorf("%w: smoothing_window must be positive", ErrInvalidOptions)
	}
	if o.SmoothingEMA <= 0 || o.SmoothingEMA > 1 {
		return fmt.Errorf("%w: smoothing_ema must be in (0, 1]", ErrInvalidOptions)
	}
	return nil
}

// ExplicitTrack возвращает явный трек, если он задан в manual режиме.
func (o Options) ExplicitTrack() (int, bool) {
	if o.TrackMode == TrackModeManual && o.TrackID != nil {
		return *o.TrackID, true
	}
	return 0, false
}
