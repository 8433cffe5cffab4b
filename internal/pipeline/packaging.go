package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shaiso/mocapd/internal/artifacts"
)

// PackagingStep — упаковка экспорта вместе с каталогом ресурсов.
//
// Если рядом с <stem>.fbx лежит <stem>.fbm/, оба упаковываются в Archive,
// и итоговым артефактом становится архив. Иначе итоговый артефакт — сам экспорт.
type PackagingStep struct {
	Export  string
	Archive string
}

// Sidecar возвращает каталог ресурсов экспорта, если он существует.
func (s PackagingStep) Sidecar() (string, bool) {
	dir := artifacts.SidecarDir(s.Export)
	if dir == "" {
		return "", false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

// Package собирает архив. Файл создаётся атомарно (запись во временный + rename).
func (s PackagingStep) Package(ctx context.Context) error {
	sidecar, ok := s.Sidecar()
	if !ok {
		return nil
	}

	tmp := s.Archive + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(f)
	writeErr := func() error {
		if err := addFile(zw, s.Export, filepath.Base(s.Export)); err != nil {
			return err
		}
		base := filepath.Base(sidecar)
		return filepath.WalkDir(sidecar, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(sidecar, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(filepath.Join(base, rel))
			if d.IsDir() {
				_, err := zw.Create(name + "/")
				return err
			}
			return addFile(zw, path, name)
		})
	}()

	closeErr := zw.Close()
	if err := f.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("write archive: %w", writeErr)
	}

	if err := os.Rename(tmp, s.Archive); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
