package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skipif/internal/guard"
	"github.com/roach88/skipif/internal/manifest"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	storage storageFlags
	Jobs    int
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <manifest> [job...]",
		Short: "Run the jobs of a YAML or CUE manifest",
		Long: `Run manifest jobs, each under its own skip guard.

Jobs run with bounded concurrency and are reported in manifest order. A failed
job never stops the others. Name jobs to run only those.`,
		Example: `  skipif batch jobs.yaml
  skipif batch jobs.cue render-tiles --jobs 4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args[0], args[1:])
		},
	}

	opts.storage.register(cmd.Flags(), true)
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "jobs run at once")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *BatchOptions, path string, names []string) error {
	formatter := opts.formatter(cmd)

	cfg := opts.Config
	if cmd.Flags().Changed("jobs") {
		cfg.Jobs = opts.Jobs
	}
	if err := opts.storage.apply(cmd, &cfg); err != nil {
		return err
	}

	m, err := manifest.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load manifest", err)
	}
	jobs, err := m.Select(names...)
	if err != nil {
		return WrapExitError(ExitCommandError, "select jobs", err)
	}

	sess := newSession(cfg)
	defer sess.Close()

	runner, err := sess.runner(opts.childStdout(cmd.OutOrStdout(), cmd.ErrOrStderr()), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	formatter.VerboseLog("running %d jobs from %s with concurrency %d", len(jobs), path, runner.Concurrency)
	view := newBatchView(runner.Run(cmd.Context(), jobs))
	if view.Summary.Failed == 0 {
		return formatter.Success(view)
	}

	msg := fmt.Sprintf("%d of %d jobs failed", view.Summary.Failed, view.Summary.Total)
	if err := formatter.Failure(ErrCodeOperation, msg, view); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// batchView is the printable outcome of a batch.
type batchView struct {
	Jobs    []jobView    `json:"jobs"`
	Summary batchSummary `json:"summary"`
}

type batchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

func newBatchView(results []manifest.Result) batchView {
	view := batchView{Jobs: make([]jobView, 0, len(results))}
	for _, res := range results {
		jv := newJobView(res)
		view.Jobs = append(view.Jobs, jv)
		switch jv.Status {
		case guard.StatusSkipped:
			view.Summary.Skipped++
		case guard.StatusSucceeded:
			view.Summary.Succeeded++
		case guard.StatusCancelled:
			view.Summary.Cancelled++
		default:
			view.Summary.Failed++
		}
	}
	view.Summary.Total = len(results)
	// Cancelled jobs did not succeed either.
	view.Summary.Failed += view.Summary.Cancelled
	return view
}

// RenderText prints one row per job and a summary line.
func (v batchView) RenderText(w io.Writer) error {
	rows := make([][]string, 0, len(v.Jobs))
	for _, j := range v.Jobs {
		duration := "-"
		if j.Status != guard.StatusSkipped {
			duration = j.Duration.Round(time.Millisecond).String()
		}
		rows = append(rows, []string{j.Job, string(j.Status), j.Output, duration, j.Error})
	}
	if err := writeTable(w, []string{"JOB", "STATUS", "OUTPUT", "DURATION", "ERROR"}, rows); err != nil {
		return err
	}
	s := v.Summary
	_, err := fmt.Fprintf(w, "%d jobs: %d succeeded, %d skipped, %d failed\n", s.Total, s.Succeeded, s.Skipped, s.Failed)
	return err
}
