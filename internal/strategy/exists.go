package strategy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/roach88/skipif/internal/fingerprint"
)

// FileExists skips iff the output path exists. It keeps no markers and
// ignores the fingerprint.
type FileExists struct{}

// Skip implements Strategy.
func (FileExists) Skip(_ context.Context, output string, _ fingerprint.Fingerprint) bool {
	exists, err := pathExists(output)
	if err != nil {
		slog.Warn("checking output failed, not skipping", "output", output, "error", err)
		return false
	}
	if exists {
		slog.Warn("skipping as output exists", "output", output)
	}
	return exists
}

// Callback implements Strategy. It never touches the filesystem.
func (FileExists) Callback(context.Context, Outcome, string, fingerprint.Fingerprint) error {
	return nil
}

// Inspect reports the existence check Skip would perform.
func (FileExists) Inspect(_ context.Context, output string, _ fingerprint.Fingerprint) (Status, error) {
	st := Status{Output: output, Reason: ReasonNoOutput}
	exists, err := pathExists(output)
	if err != nil {
		return st, fmt.Errorf("inspect %s: %w", output, err)
	}
	st.OutputExists = exists
	if exists {
		st.Skip, st.Reason = true, ReasonOutputExists
	}
	return st, nil
}

// pathExists reports whether path exists. A missing path is not an error.
func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

var (
	_ Strategy  = FileExists{}
	_ Inspector = FileExists{}
)
