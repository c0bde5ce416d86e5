package manifest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/guard"
	"github.com/roach88/skipif/internal/strategy"
	"github.com/roach88/skipif/internal/task"
)

// Runner executes manifest jobs, each under its own guard.
type Runner struct {
	// Base supplies strategy defaults that jobs may override. Base.Retriable
	// also decides which failures WithRetry re-runs.
	Base strategy.Spec

	// GuardOptions apply to every job's guard (recorder, locking).
	GuardOptions []guard.Option

	// Retries and Backoff configure in-process retries of transient
	// failures. Zero Retries disables them.
	Retries uint64
	Backoff time.Duration

	// Concurrency bounds the number of jobs running at once. Values below
	// one mean one.
	Concurrency int

	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of one job.
type Result struct {
	Job         string                  `json:"job"`
	Output      string                  `json:"output"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Report      guard.Report            `json:"-"`

	// Err is a setup error (bad fingerprint or strategy) or the command's
	// own error.
	Err error `json:"-"`
}

// Failed reports whether the job did not succeed or skip.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Run executes jobs with bounded concurrency. Results are in the order of
// jobs, whatever order the jobs finish in. Run never stops early: a failed
// job does not cancel the others.
func (r Runner) Run(ctx context.Context, jobs []Job) []Result {
	n := r.Concurrency
	if n < 1 {
		n = 1
	}

	results := make([]Result, len(jobs))
	p := pool.New().WithMaxGoroutines(n)
	for i, job := range jobs {
		i, job := i, job // per-iteration copies; go.mod targets go1.21 loop semantics
		p.Go(func() {
			results[i] = r.runJob(ctx, job)
		})
	}
	p.Wait()
	return results
}

func (r Runner) runJob(ctx context.Context, job Job) Result {
	res := Result{Job: job.Name, Output: job.Output}

	fp, err := job.Fingerprint()
	if err != nil {
		res.Err = err
		return res
	}
	res.Fingerprint = fp

	spec := job.StrategySpec(r.Base)
	s, err := strategy.FromSpec(spec)
	if err != nil {
		res.Err = fmt.Errorf("job %s: %w", job.Name, err)
		return res
	}

	call := guard.Call{Output: job.Output, Fingerprint: fp}
	ts := job.TaskSpec()
	ts.Stdout, ts.Stderr = r.Stdout, r.Stderr

	retriable := spec.Retriable
	if retriable == nil {
		retriable = task.RetriableExitCodes()
	}
	op := task.WithRetry(task.Operation(ts, call), r.Retries, r.Backoff, retriable)

	slog.Debug("starting job", "job", job.Name, "output", job.Output, "fingerprint", fp.String())
	_, rep, err := guard.Execute(ctx, guard.New(s, r.GuardOptions...), call, op)
	res.Report = rep
	if err != nil {
		res.Err = fmt.Errorf("job %s: %w", job.Name, err)
	}
	return res
}
