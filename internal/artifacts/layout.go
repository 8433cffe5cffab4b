package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// SidecarExt — расширение каталога ресурсов рядом с экспортом (текстуры, материалы).
const SidecarExt = ".fbm"

// Layout — раскладка артефактов на диске.
//
// Каждый task владеет каталогом <Root>/<task-id>; все артефакты task
// создаются только внутри него. Поэтому удаление артефактов одного task
// никогда не затрагивает другой.
type Layout struct {
	Root string
}

// NewLayout создаёт Layout с абсолютным корнем.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve work root: %w", err)
	}
	return Layout{Root: abs}, nil
}

// TaskDir возвращает каталог task.
func (l Layout) TaskDir(id uuid.UUID) string {
	return filepath.Join(l.Root, id.String())
}

// EnsureTaskDir создаёт каталог task.
func (l Layout) EnsureTaskDir(id uuid.UUID) (string, error) {
	dir := l.TaskDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}
	return dir, nil
}

// Contains проверяет, что path лежит внутри каталога task.
func (l Layout) Contains(id uuid.UUID, path string) bool {
	rel, err := filepath.Rel(l.TaskDir(id), path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// RemoveTask удаляет каталог task со всем содержимым.
// Повторный вызов безопасен.
func (l Layout) RemoveTask(id uuid.UUID) error {
	if err := os.RemoveAll(l.TaskDir(id)); err != nil {
		return fmt.Errorf("remove task dir %s: %w", id, err)
	}
	return nil
}

// TaskDirs возвращает идентификаторы всех каталогов task в корне.
// Посторонние записи (не UUID) игнорируются.
func (l Layout) TaskDirs() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read work root: %w", err)
	}

	var ids []uuid.UUID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SidecarDir возвращает каталог ресурсов для экспортированного файла
// (<stem>.fbm рядом с <stem>.fbx), если путь — fbx.
func SidecarDir(exportPath string) string {
	ext := filepath.Ext(exportPath)
	if !strings.EqualFold(ext, ".fbx") {
		return ""
	}
	return strings.TrimSuffix(exportPath, ext) + SidecarExt
}

// Exists проверяет, что путь существует.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
