package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/guard"
	"github.com/roach88/skipif/internal/strategy"
)

func TestRecordRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rep := createTestReport("run-1", "out/t", guard.StatusFailed)
	rep.Fingerprint = fingerprint.Fingerprint{Args: 18446744073709551615, Code: 7}
	rep.Err = errors.New("exit status 3")
	rep.CallbackErr = errors.New("disk full")

	if err := s.RecordRun(ctx, rep); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}

	if run.Seq != 1 {
		t.Errorf("Seq = %d, want 1", run.Seq)
	}
	if run.Output != "out/t" {
		t.Errorf("Output = %q", run.Output)
	}
	if run.Fingerprint != rep.Fingerprint {
		t.Errorf("Fingerprint = %v, want %v (uint64 must survive storage)", run.Fingerprint, rep.Fingerprint)
	}
	if run.Status != guard.StatusFailed {
		t.Errorf("Status = %q", run.Status)
	}
	if run.Error != "exit status 3" || run.CallbackError != "disk full" {
		t.Errorf("errors = %q / %q", run.Error, run.CallbackError)
	}
	if !run.StartedAt.Equal(rep.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", run.StartedAt, rep.StartedAt)
	}
	if run.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", run.Duration)
	}
}

func TestRecordRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestReport("run-1", "t", guard.StatusSucceeded)
	second := createTestReport("run-1", "t", guard.StatusFailed)

	if err := s.RecordRun(ctx, first); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	if err := s.RecordRun(ctx, second); err != nil {
		t.Fatalf("duplicate RecordRun() should be ignored, got: %v", err)
	}

	runs, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Status != guard.StatusSucceeded {
		t.Errorf("first write should win, got %q", runs[0].Status)
	}
}

func TestListRuns_OrderAndFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	reports := []guard.Report{
		createTestReport("r1", "a", guard.StatusFailed),
		createTestReport("r2", "b", guard.StatusSucceeded),
		createTestReport("r3", "a", guard.StatusSucceeded),
		createTestReport("r4", "a", guard.StatusSkipped),
	}
	for _, r := range reports {
		if err := s.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", r.RunID, err)
		}
	}

	tests := []struct {
		name   string
		output string
		limit  int
		want   []string
	}{
		{"all", "", 0, []string{"r1", "r2", "r3", "r4"}},
		{"filtered", "a", 0, []string{"r1", "r3", "r4"}},
		{"latest two", "a", 2, []string{"r3", "r4"}},
		{"limit all outputs", "", 1, []string{"r4"}},
		{"unknown output", "zzz", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListRuns(ctx, tt.output, tt.limit)
			if err != nil {
				t.Fatalf("ListRuns() failed: %v", err)
			}
			got := make([]string, len(runs))
			for i, r := range runs {
				got[i] = r.ID
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun() error = %v, want sql.ErrNoRows", err)
	}
}

// A guard wired to the store records one row per call, skipped calls
// included.
func TestStoreAsRecorder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	g := guard.New(&fixedSkip{skip: false}, guard.WithRecorder(s), guard.WithIDGenerator(guard.NewFixedGenerator("a", "b")))
	if _, err := guard.Do(ctx, g, guard.Call{Output: "o"}, func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	g = guard.New(&fixedSkip{skip: true}, guard.WithRecorder(s), guard.WithIDGenerator(guard.NewFixedGenerator("c")))
	if _, err := guard.Do(ctx, g, guard.Call{Output: "o"}, func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("Do() failed: %v", err)
	}

	runs, err := s.ListRuns(ctx, "o", 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != "a" || runs[0].Status != guard.StatusSucceeded {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].ID != "c" || runs[1].Status != guard.StatusSkipped {
		t.Errorf("runs[1] = %+v", runs[1])
	}
}

type fixedSkip struct{ skip bool }

func (f *fixedSkip) Skip(context.Context, string, fingerprint.Fingerprint) bool { return f.skip }

func (f *fixedSkip) Callback(context.Context, strategy.Outcome, string, fingerprint.Fingerprint) error {
	return nil
}
