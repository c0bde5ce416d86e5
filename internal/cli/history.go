package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/skipif/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	HistoryDB string
	Output    string
	Limit     int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [flags]",
		Short: "List recorded runs",
		Long: `List runs recorded in the history database, oldest first.

Skipped calls are recorded too, so the history shows every decision.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.HistoryDB, "history-db", "", "SQLite history database (default from config)")
	fs.StringVarP(&opts.Output, "output", "o", "", "only runs for this output")
	fs.IntVarP(&opts.Limit, "limit", "n", 20, "most recent runs shown (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	path := opts.Config.HistoryDB
	if cmd.Flags().Changed("history-db") {
		path = opts.HistoryDB
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no history database: set --history-db or history_db in the config")
	}

	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("history database %s", path), err)
	}

	sess := newSession(opts.Config)
	defer sess.Close()

	st, err := sess.open(path)
	if err != nil {
		return err
	}
	runs, err := st.ListRuns(cmd.Context(), opts.Output, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "list runs", err)
	}
	return opts.formatter(cmd).Success(historyView{Runs: runs, now: time.Now()})
}

type historyView struct {
	Runs []store.Run `json:"runs"`
	now  time.Time
}

func (v historyView) RenderText(w io.Writer) error {
	rows := make([][]string, 0, len(v.Runs))
	for _, r := range v.Runs {
		errText := r.Error
		if errText == "" && r.CallbackError != "" {
			errText = "callback: " + r.CallbackError
		}
		rows = append(rows, []string{
			humanize.RelTime(r.StartedAt, v.now, "ago", "from now"),
			string(r.Status),
			r.Output,
			r.Duration.Round(time.Millisecond).String(),
			r.Fingerprint.String(),
			errText,
		})
	}
	return writeTable(w, []string{"STARTED", "STATUS", "OUTPUT", "DURATION", "FINGERPRINT", "ERROR"}, rows)
}
