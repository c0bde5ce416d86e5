package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/guard"
	"github.com/roach88/skipif/internal/manifest"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	identity identityFlags
	strategy strategyFlags
	storage  storageFlags
	Timeout  time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run --output PATH [flags] -- COMMAND [ARG...]",
		Short: "Run a command unless its output is up to date",
		Long: `Run a command under the skip guard.

The command is skipped when a success marker with the same fingerprint exists
and the output is still present, or when a matching failure marker records a
permanent failure. Otherwise it runs, and its exit status decides which marker
is written.

The child sees SKIPIF_OUTPUT, SKIPIF_ARGS_HASH and SKIPIF_CODE_HASH.

Exit codes:
  0  the command succeeded or was skipped
  1  the command failed
  2  bad flags, config or storage`,
		Example: `  skipif run -o out/report.csv --arg day=2024-05-01 --code-version 3 -- ./report.sh 2024-05-01
  skipif run -o out/tiles --folder --retriable-exit 75 -- make tiles`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args)
		},
	}

	fs := cmd.Flags()
	fs.SetInterspersed(false)
	opts.identity.register(fs, true)
	opts.strategy.register(fs)
	opts.storage.register(fs, true)
	fs.DurationVar(&opts.Timeout, "timeout", 0, "limit for a single attempt (0 means none)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions, argv []string) error {
	formatter := opts.formatter(cmd)

	cfg := opts.Config
	if err := opts.storage.apply(cmd, &cfg); err != nil {
		return err
	}

	job, err := opts.identity.job()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	job.Command = argv
	job.Timeout = manifest.Duration(opts.Timeout)
	opts.strategy.apply(cmd, &job)

	m := &manifest.Manifest{Path: "command line", Jobs: []manifest.Job{job}}
	if err := m.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid run", err)
	}

	sess := newSession(cfg)
	defer sess.Close()

	runner, err := sess.runner(opts.childStdout(cmd.OutOrStdout(), cmd.ErrOrStderr()), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	res := runner.Run(cmd.Context(), m.Jobs)[0]
	view := newJobView(res)
	if !res.Failed() {
		return formatter.Success(view)
	}
	if res.Report.Status == "" {
		return WrapExitError(ExitCommandError, "run", res.Err)
	}
	if err := formatter.Failure(ErrCodeOperation, res.Err.Error(), view); err != nil {
		return err
	}
	return WrapExitError(ExitFailure, "run", res.Err)
}

// jobView is the printable outcome of one guarded command.
type jobView struct {
	Job           string                  `json:"job"`
	Output        string                  `json:"output"`
	Fingerprint   fingerprint.Fingerprint `json:"fingerprint"`
	RunID         string                  `json:"run_id,omitempty"`
	Status        guard.Status            `json:"status"`
	Duration      time.Duration           `json:"duration_ns"`
	Error         string                  `json:"error,omitempty"`
	CallbackError string                  `json:"callback_error,omitempty"`
}

func newJobView(res manifest.Result) jobView {
	v := jobView{
		Job:         res.Job,
		Output:      res.Output,
		Fingerprint: res.Fingerprint,
		RunID:       res.Report.RunID,
		Status:      res.Report.Status,
		Duration:    res.Report.Duration,
	}
	if v.Status == "" && res.Err != nil {
		v.Status = guard.StatusFailed
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	if res.Report.CallbackErr != nil {
		v.CallbackError = res.Report.CallbackErr.Error()
	}
	return v
}

// RenderText prints "<status> <output> (<fingerprint>)".
func (v jobView) RenderText(w io.Writer) error {
	line := fmt.Sprintf("%s %s (%s)", v.Status, v.Output, v.Fingerprint)
	if v.Status != guard.StatusSkipped {
		line += " in " + v.Duration.Round(time.Millisecond).String()
	}
	if v.CallbackError != "" {
		line += "; marker not recorded: " + v.CallbackError
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
