package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/report-harvester/internal/errors"
)

// FSSink stores artifacts as files under one directory. Writes go through a
// temp file and rename so an interrupted run never leaves a partial artifact
// that would be mistaken for a completed window.
type FSSink struct {
	dir string
}

// NewFSSink creates a filesystem sink rooted at dir, creating it if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sink directory %s: %w", dir, err)
	}
	return &FSSink{dir: dir}, nil
}

// Exists reports whether the artifact file is present.
func (s *FSSink) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperrors.NewSinkError(name, err)
}

// Write persists the artifact atomically via temp file + rename.
func (s *FSSink) Write(_ context.Context, name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewSinkError(name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperrors.NewSinkError(name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperrors.NewSinkError(name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.NewSinkError(name, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apperrors.NewSinkError(name, err)
	}
	return nil
}
