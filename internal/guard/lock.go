package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockRetryDelay is the polling interval while waiting for a held
// lock.
const DefaultLockRetryDelay = 100 * time.Millisecond

// LockPath returns the advisory lock file used for output. It sits beside
// the output in both flat and folder mode.
func LockPath(output string) string {
	return filepath.Clean(output) + ".lock"
}

// acquireLock blocks until the lock for output is held or ctx is done.
// The lock file is left in place after Unlock.
func acquireLock(ctx context.Context, output string, retryDelay time.Duration) (*flock.Flock, error) {
	path := LockPath(output)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", path)
	}
	return fl, nil
}
