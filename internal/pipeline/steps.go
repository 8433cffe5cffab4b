package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shaiso/mocapd/internal/domain"
	"github.com/shaiso/mocapd/internal/executor"
)

// CommandStep — шаг, выполняемый внешним инструментом.
//
// Каждый шаг — типизированный дескриптор: команда строится из его полей
// и Toolchain, а не из произвольной строки.
type CommandStep interface {
	// Name — имя шага в progress.
	Name() domain.StepName

	// Command строит вызов инструмента.
	Command(tc Toolchain) executor.Command

	// Output — путь, который шаг обязан создать.
	Output() string
}

// TrackingStep — трекинг людей на видео (GPU).
type TrackingStep struct {
	Video     string
	OutputDir string
}

func (s TrackingStep) Name() domain.StepName { return domain.StepTracking }

func (s TrackingStep) Command(tc Toolchain) executor.Command {
	return executor.Command{
		Name: string(s.Name()),
		Path: tc.Tracker.Path,
		Args: tc.Tracker.argv(
			"video.source="+s.Video,
			"video.output_dir="+s.OutputDir,
		),
	}
}

// Output — трекер называет результат по имени видео: results/demo_<stem>.pkl.
func (s TrackingStep) Output() string {
	stem := strings.TrimSuffix(filepath.Base(s.Video), filepath.Ext(s.Video))
	return filepath.Join(s.OutputDir, "results", "demo_"+stem+".pkl")
}

// ListTracksStep — перечисление треков в результате трекинга.
// Выполняется в рамках track_extraction при автоматическом выборе трека.
type ListTracksStep struct {
	Tracking string
}

func (s ListTracksStep) Name() domain.StepName { return domain.StepTrackExtraction }

func (s ListTracksStep) Command(tc Toolchain) executor.Command {
	return executor.Command{
		Name: "list_tracks",
		Path: tc.TrackLister.Path,
		Args: tc.TrackLister.argv("--pkl", s.Tracking),
	}
}

// Output пуст: результат — stdout.
func (s ListTracksStep) Output() string { return "" }

// ExtractionStep — извлечение одного трека.
type ExtractionStep struct {
	Tracking string
	TrackID  int
	Out      string
}

func (s ExtractionStep) Name() domain.StepName { return domain.StepTrackExtraction }

func (s ExtractionStep) Command(tc Toolchain) executor.Command {
	return executor.Command{
		Name: string(s.Name()),
		Path: tc.Extractor.Path,
		Args: tc.Extractor.argv(
			"--pkl", s.Tracking,
			"--out", s.Out,
			"--tid", strconv.Itoa(s.TrackID),
		),
	}
}

func (s ExtractionStep) Output() string { return s.Out }

// SmoothingStep — временное сглаживание позы.
type SmoothingStep struct {
	Input      string
	Out        string
	Checkpoint string
	Window     int
	EMA        float64
	Strength   float64
}

func (s SmoothingStep) Name() domain.StepName { return domain.StepSmoothing }

func (s SmoothingStep) Command(tc Toolchain) executor.Command {
	return executor.Command{
		Name: string(s.Name()),
		Path: tc.Smoother.Path,
		Args: tc.Smoother.argv(
			"--npz", s.Input,
			"--out", s.Out,
			"--ckpt", s.Checkpoint,
			"--win", strconv.Itoa(s.Window),
			"--ema", formatFloat(s.EMA),
			"--strength", formatFloat(s.Strength),
		),
	}
}

func (s SmoothingStep) Output() string { return s.Out }

// ExportStep — экспорт анимации в FBX.
type ExportStep struct {
	Input      string
	Out        string
	FPS        int
	RootMotion bool
}

func (s ExportStep) Name() domain.StepName { return domain.StepExport }

func (s ExportStep) Command(tc Toolchain) executor.Command {
	args := []string{
		"--npz", s.Input,
		"--out", s.Out,
		"--fps", strconv.Itoa(s.FPS),
	}
	if s.RootMotion {
		args = append(args, "--with-root-motion")
	}
	return executor.Command{
		Name: string(s.Name()),
		Path: tc.Exporter.Path,
		Args: tc.Exporter.argv(args...),
	}
}

func (s ExportStep) Output() string { return s.Out }

// ExportFileName — имя экспортированного файла task.
func ExportFileName(taskID string, rootMotion bool) string {
	if rootMotion {
		return taskID + "_rootmotion.fbx"
	}
	return taskID + ".fbx"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
