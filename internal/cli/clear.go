package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/skipif/internal/config"
	"github.com/roach88/skipif/internal/strategy"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	storage storageFlags
	Output  string
	Folder  bool
	All     bool
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear (--output PATH | --all)",
		Short: "Remove the markers of an output",
		Long: `Remove the success and failure markers of an output so the next run
executes the command again. The output itself is left alone.

--all clears every output recorded in the SQLite marker ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.Output, "output", "o", "", "output whose markers are removed")
	fs.BoolVar(&opts.Folder, "folder", false, "markers live inside the output directory")
	fs.BoolVar(&opts.All, "all", false, "clear every output in the marker ledger (sqlite backend)")
	opts.storage.register(fs, false)
	cmd.MarkFlagsMutuallyExclusive("output", "all")
	cmd.MarkFlagsOneRequired("output", "all")

	return cmd
}

func runClear(cmd *cobra.Command, opts *ClearOptions) error {
	formatter := opts.formatter(cmd)

	cfg := opts.Config
	if err := opts.storage.apply(cmd, &cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("folder") {
		cfg.Markers.Folder = opts.Folder
	}

	sess := newSession(cfg)
	defer sess.Close()

	spec, err := sess.baseSpec()
	if err != nil {
		return err
	}
	s, err := strategy.FromSpec(spec)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid strategy", err)
	}
	markers := s.(*strategy.Markers)

	outputs := []string{opts.Output}
	if opts.All {
		if cfg.Markers.Backend != config.BackendSQLite {
			return NewExitError(ExitCommandError, "--all requires the sqlite marker backend")
		}
		st, err := sess.open(cfg.Markers.LedgerDB)
		if err != nil {
			return err
		}
		if outputs, err = st.MarkerOutputs(cmd.Context()); err != nil {
			return WrapExitError(ExitCommandError, "list ledger", err)
		}
	}

	for _, output := range outputs {
		if err := markers.Clear(cmd.Context(), output); err != nil {
			return WrapExitError(ExitCommandError, "clear "+output, err)
		}
		formatter.VerboseLog("cleared markers for %s", output)
	}
	return formatter.Success(clearView{Cleared: outputs})
}

type clearView struct {
	Cleared []string `json:"cleared"`
}

func (v clearView) RenderText(w io.Writer) error {
	for _, output := range v.Cleared {
		if _, err := fmt.Fprintf(w, "cleared %s\n", output); err != nil {
			return err
		}
	}
	return nil
}
