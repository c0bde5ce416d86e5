package strategy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Kind distinguishes the two marker sentinels.
type Kind int

const (
	Success Kind = iota
	Failure
)

// String returns "success" or "failure", which is also the marker file name.
func (k Kind) String() string {
	if k == Failure {
		return "failure"
	}
	return "success"
}

// Opposite returns the marker kind that must be removed when k is written.
func (k Kind) Opposite() Kind {
	if k == Success {
		return Failure
	}
	return Success
}

// ErrNoMarker is returned by a MarkerBackend when no marker of the requested
// kind exists for an output.
var ErrNoMarker = errors.New("no marker")

// MarkerBackend persists marker payloads for an output location.
type MarkerBackend interface {
	// ReadMarker returns the stored payload, or an error wrapping
	// ErrNoMarker when the marker is absent.
	ReadMarker(ctx context.Context, output string, kind Kind) ([]byte, error)

	// WriteMarker creates or replaces the marker.
	WriteMarker(ctx context.Context, output string, kind Kind, payload []byte) error

	// RemoveMarker deletes the marker. Removing an absent marker is not an
	// error.
	RemoveMarker(ctx context.Context, output string, kind Kind) error
}

// MarkerPath returns where the marker of kind lives for output.
func MarkerPath(output string, kind Kind, folder bool) string {
	if folder {
		return filepath.Join(output, kind.String())
	}
	return output + "." + kind.String()
}

// FileBackend stores markers as files beside the output, or inside it when
// Folder is set.
type FileBackend struct {
	Folder bool
}

// Path returns the marker file path for output.
func (b FileBackend) Path(output string, kind Kind) string {
	return MarkerPath(output, kind, b.Folder)
}

// ReadMarker implements MarkerBackend.
func (b FileBackend) ReadMarker(_ context.Context, output string, kind Kind) ([]byte, error) {
	path := b.Path(output, kind)
	data, err := os.ReadFile(path)
	if err != nil {
		// ENOTDIR: in folder mode the output is a plain file, so no marker
		// can live inside it.
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, fmt.Errorf("read %s: %w", path, ErrNoMarker)
		}
		return nil, fmt.Errorf("read %s marker: %w", kind, err)
	}
	return data, nil
}

// WriteMarker implements MarkerBackend. In folder mode the output directory
// is created first.
func (b FileBackend) WriteMarker(_ context.Context, output string, kind Kind, payload []byte) error {
	if b.Folder {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := writeFileAtomic(b.Path(output, kind), payload, 0o644); err != nil {
		return fmt.Errorf("write %s marker: %w", kind, err)
	}
	return nil
}

// RemoveMarker implements MarkerBackend.
func (b FileBackend) RemoveMarker(_ context.Context, output string, kind Kind) error {
	err := os.Remove(b.Path(output, kind))
	if err == nil || errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return nil
	}
	return fmt.Errorf("remove %s marker: %w", kind, err)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never observe a half-written marker.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

var _ MarkerBackend = FileBackend{}
