package progress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"usage-cost/internal/errors"
)

// FileTracker keeps the marker in a single text file.
type FileTracker struct {
	path string
}

// NewFileTracker creates a tracker backed by the file at path.
func NewFileTracker(path string) *FileTracker {
	return &FileTracker{path: path}
}

// Load reads the marker. A missing file means nothing has been processed yet.
func (t *FileTracker) Load(ctx context.Context) (string, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Progress("failed to read progress marker", err).WithContext("path", t.path)
	}
	return strings.TrimSpace(string(data)), nil
}

// Advance writes id to a temporary file in the same directory and renames
// it over the marker, so readers see either the old or the new value.
func (t *FileTracker) Advance(ctx context.Context, id string) error {
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*")
	if err != nil {
		return errors.Progress("failed to create temporary marker", err).WithContext("path", t.path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(id); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Progress("failed to write temporary marker", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Progress("failed to sync temporary marker", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Progress("failed to close temporary marker", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return errors.Progress(fmt.Sprintf("failed to replace marker with %q", id), err)
	}
	return nil
}

var _ Tracker = (*FileTracker)(nil)
