package pipeline

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SmoothingPolicy — как обрабатывать ошибку шага smoothing.
type SmoothingPolicy string

const (
	// SmoothingSoft — ошибка smoothing не фатальна: шаг SKIPPED,
	// export получает несглаженный трек.
	SmoothingSoft SmoothingPolicy = "soft"

	// SmoothingRequired — ошибка smoothing фатальна, а отсутствие
	// checkpoint проваливает проверку зависимостей при старте.
	SmoothingRequired SmoothingPolicy = "required"
)

// ParseSmoothingPolicy парсит политику; пустая строка — SmoothingSoft.
func ParseSmoothingPolicy(s string) (SmoothingPolicy, error) {
	switch SmoothingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SmoothingSoft:
		return SmoothingSoft, nil
	case SmoothingRequired:
		return SmoothingRequired, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Tool — внешний инструмент: программа и её ведущие аргументы.
//
// Например, python-скрипт: Tool{Path: "python3", Args: []string{"tools/adapt_smoothnet.py"}},
// Blender: Tool{Path: "blender", Args: []string{"-b", "-P", "tools/blender/smplx_npz_to_fbx.py", "--"}}.
type Tool struct {
	Path string
	Args []string
}

// argv склеивает ведущие аргументы инструмента с аргументами шага.
func (t Tool) argv(args ...string) []string {
	out := make([]string, 0, len(t.Args)+len(args))
	out = append(out, t.Args...)
	return append(out, args...)
}

// Toolchain — набор внешних инструментов pipeline.
type Toolchain struct {
	Tracker     Tool
	TrackLister Tool
	Extractor   Tool
	Smoother    Tool
	Exporter    Tool

	// SmoothingCheckpoint — веса модели сглаживания.
	SmoothingCheckpoint string
}

// DefaultToolchain возвращает стандартную раскладку инструментов проекта.
func DefaultToolchain(projectRoot, python, blender string) Toolchain {
	script := func(parts ...string) string {
		return filepath.Join(append([]string{projectRoot}, parts...)...)
	}
	return Toolchain{
		Tracker:     Tool{Path: python, Args: []string{script("track.py")}},
		TrackLister: Tool{Path: python, Args: []string{script("tools", "list_tids.py")}},
		Extractor:   Tool{Path: python, Args: []string{script("tools", "extract_track_for_tid.py")}},
		Smoother:    Tool{Path: python, Args: []string{script("tools", "adapt_smoothnet.py")}},
		Exporter: Tool{Path: blender, Args: []string{
			"-b", "-P", script("tools", "blender", "smplx_npz_to_fbx.py"), "--",
		}},
		SmoothingCheckpoint: script("checkpoints", "smoothnet", "checkpoint_32.pth.tar"),
	}
}

// CheckToolchain проверяет, что программы инструментов доступны.
// При SmoothingRequired также требуется checkpoint сглаживания.
func CheckToolchain(tc Toolchain, policy SmoothingPolicy) error {
	tools := []struct {
		name string
		tool Tool
	}{
		{"tracker", tc.Tracker},
		{"track lister", tc.TrackLister},
		{"extractor", tc.Extractor},
		{"smoother", tc.Smoother},
		{"exporter", tc.Exporter},
	}

	var errs []error
	for _, t := range tools {
		if t.tool.Path == "" {
			errs = append(errs, fmt.Errorf("%w: %s not configured", ErrToolUnavailable, t.name))
			continue
		}
		if _, err := exec.LookPath(t.tool.Path); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s (%s): %v", ErrToolUnavailable, t.name, t.tool.Path, err))
		}
	}

	if policy == SmoothingRequired {
		if tc.SmoothingCheckpoint == "" {
			errs = append(errs, fmt.Errorf("%w: smoothing checkpoint not configured", ErrToolUnavailable))
		} else if _, err := os.Stat(tc.SmoothingCheckpoint); err != nil {
			errs = append(errs, fmt.Errorf("%w: smoothing checkpoint %s: %v", ErrToolUnavailable, tc.SmoothingCheckpoint, err))
		}
	}

	return errors.Join(errs...)
}
