package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/guard"
)

// Run is one row of run history.
type Run struct {
	Seq           int64                   `json:"seq"`
	ID            string                  `json:"id"`
	Output        string                  `json:"output"`
	Fingerprint   fingerprint.Fingerprint `json:"fingerprint"`
	Status        guard.Status            `json:"status"`
	Error         string                  `json:"error,omitempty"`
	CallbackError string                  `json:"callback_error,omitempty"`
	StartedAt     time.Time               `json:"started_at"`
	Duration      time.Duration           `json:"duration_ns"`
}

// RecordRun appends a guard report to the history.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a report recorded twice
// keeps its first row.
func (s *Store) RecordRun(ctx context.Context, r guard.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, output, args_hash, code_hash, status, error, callback_error, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.RunID,
		r.Output,
		formatHash(r.Fingerprint.Args),
		formatHash(r.Fingerprint.Code),
		string(r.Status),
		errString(r.Err),
		errString(r.CallbackErr),
		formatTime(r.StartedAt),
		r.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent limit runs, oldest first. An empty output
// matches every output; limit <= 0 returns the whole history.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, output string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, output, args_hash, code_hash, status, error, callback_error, started_at, duration_ns
		FROM (
			SELECT * FROM runs
			WHERE ? = '' OR output = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`, output, output, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, output, args_hash, code_hash, status, error, callback_error, started_at, duration_ns
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var argsHash, codeHash, status, startedAt string
	var durationNS int64

	if err := row.Scan(
		&run.Seq, &run.ID, &run.Output, &argsHash, &codeHash, &status,
		&run.Error, &run.CallbackError, &startedAt, &durationNS,
	); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if run.Fingerprint.Args, err = parseHash(argsHash); err != nil {
		return Run{}, fmt.Errorf("scan run %s: args hash: %w", run.ID, err)
	}
	if run.Fingerprint.Code, err = parseHash(codeHash); err != nil {
		return Run{}, fmt.Errorf("scan run %s: code hash: %w", run.ID, err)
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, fmt.Errorf("scan run %s: started_at: %w", run.ID, err)
	}
	run.Status = guard.Status(status)
	run.Duration = time.Duration(durationNS)
	return run, nil
}

func formatHash(h uint64) string { return strconv.FormatUint(h, 10) }

func parseHash(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ guard.Recorder = (*Store)(nil)
