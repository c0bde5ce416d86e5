package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/guard"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport creates a report with minimal required fields.
func createTestReport(id, output string, status guard.Status) guard.Report {
	return guard.Report{
		RunID:       id,
		Output:      output,
		Fingerprint: fingerprint.Fingerprint{Args: 1, Code: 2},
		Status:      status,
		Skipped:     status == guard.StatusSkipped,
		StartedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:    1500 * time.Millisecond,
	}
}
