package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/strategy"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	identity identityFlags
	strategy strategyFlags
	storage  storageFlags
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status --output PATH [flags]",
		Short: "Show whether a call would be skipped, and why",
		Long: `Inspect the markers of an output without running anything.

Pass the same identity and strategy flags as the run being checked; the
fingerprint they produce is compared with the stored markers. Nothing is
written or removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	fs := cmd.Flags()
	opts.identity.register(fs, true)
	opts.strategy.register(fs)
	opts.storage.register(fs, false)
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	formatter := opts.formatter(cmd)

	cfg := opts.Config
	if err := opts.storage.apply(cmd, &cfg); err != nil {
		return err
	}

	job, err := opts.identity.job()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	opts.strategy.apply(cmd, &job)

	fp, err := job.Fingerprint()
	if err != nil {
		return WrapExitError(ExitCommandError, "fingerprint", err)
	}

	sess := newSession(cfg)
	defer sess.Close()

	base, err := sess.baseSpec()
	if err != nil {
		return err
	}
	s, err := strategy.FromSpec(job.StrategySpec(base))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid strategy", err)
	}
	inspector, ok := s.(strategy.Inspector)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("strategy %T cannot be inspected", s))
	}

	st, err := inspector.Inspect(cmd.Context(), job.Output, fp)
	if err != nil {
		return WrapExitError(ExitCommandError, "inspect", err)
	}
	return formatter.Success(statusView{Status: st, Fingerprint: fp})
}

// statusView pairs a marker inspection with the fingerprint it was made for.
type statusView struct {
	strategy.Status
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
}

// RenderText prints one "key: value" line per fact.
func (v statusView) RenderText(w io.Writer) error {
	exists := "missing"
	if v.OutputExists {
		exists = "exists"
	}
	decision := "no"
	if v.Skip {
		decision = "yes"
	}
	_, err := fmt.Fprintf(w, "output:      %s (%s)\nfingerprint: %s\nsuccess:     %s\nfailure:     %s\nskip:        %s (%s)\n",
		v.Output, exists, v.Fingerprint, describeMarker(v.Success), describeMarker(v.Failure), decision, v.Reason)
	return err
}

func describeMarker(m strategy.MarkerState) string {
	switch {
	case m.Error != "" && !m.Present:
		return "unreadable: " + m.Error
	case !m.Present:
		return "absent"
	case m.Matches && m.Fingerprint != nil:
		return fmt.Sprintf("present, matches (%s)", m.Fingerprint)
	case m.Matches:
		return "present, matches"
	case m.Fingerprint != nil:
		return fmt.Sprintf("present, stale (%s)", m.Fingerprint)
	default:
		return "present, unparseable: " + m.Error
	}
}
