package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/skipif/internal/fingerprint"
)

// HashOptions holds flags for the hash command.
type HashOptions struct {
	*RootOptions
	identity identityFlags
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash [flags]",
		Short: "Print the fingerprint of a call",
		Long: `Print the argument and code hashes that run would store in a marker.

Arguments are hashed in the order given.`,
		Example: `  skipif hash --arg day=2024-05-01 --arg region=eu --code-version 3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(cmd, opts)
		},
	}

	opts.identity.register(cmd.Flags(), false)

	return cmd
}

func runHash(cmd *cobra.Command, opts *HashOptions) error {
	job, err := opts.identity.job()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	fp, err := job.Fingerprint()
	if err != nil {
		return WrapExitError(ExitCommandError, "fingerprint", err)
	}
	return opts.formatter(cmd).Success(hashView{fp})
}

type hashView struct {
	fingerprint.Fingerprint
}

func (v hashView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "args_hash: %d\ncode_hash: %d\n", v.Args, v.Code)
	return err
}
