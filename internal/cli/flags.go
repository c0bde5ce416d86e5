package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/roach88/skipif/internal/config"
	"github.com/roach88/skipif/internal/manifest"
	"github.com/roach88/skipif/internal/strategy"
)

// identityFlags describe a call's output and fingerprint inputs. They build
// a manifest.Job so the command line and manifests hash identically.
type identityFlags struct {
	output      string
	args        []string
	exclude     []string
	codeVersion string
	codeFiles   []string
}

func (f *identityFlags) register(fs *pflag.FlagSet, withOutput bool) {
	if withOutput {
		fs.StringVarP(&f.output, "output", "o", "", "output path the call produces (required)")
	}
	fs.StringArrayVar(&f.args, "arg", nil, "identity argument as name=value, in call order (repeatable)")
	fs.StringArrayVar(&f.exclude, "exclude", nil, "argument name left out of the fingerprint (repeatable)")
	fs.StringVar(&f.codeVersion, "code-version", "", "code version token; bump it when the logic changes")
	fs.StringArrayVar(&f.codeFiles, "code-file", nil, "file whose content is part of the code version (repeatable)")
}

// job returns a job named after its output.
func (f *identityFlags) job() (manifest.Job, error) {
	args, err := parseArgs(f.args)
	if err != nil {
		return manifest.Job{}, err
	}
	return manifest.Job{
		Name:         f.output,
		Output:       f.output,
		Args:         args,
		Exclude:      f.exclude,
		Version:      f.codeVersion,
		VersionFiles: f.codeFiles,
	}, nil
}

// parseArgs splits name=value pairs. Values are read as YAML scalars so that
// --arg id=7 hashes like "value: 7" in a manifest; quote a value to keep it a
// string (--arg 'id="7"').
func parseArgs(raw []string) ([]manifest.Arg, error) {
	args := make([]manifest.Arg, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --arg %q: expected name=value", kv)
		}
		v, err := parseScalar(value)
		if err != nil {
			return nil, fmt.Errorf("invalid --arg %q: %w", kv, err)
		}
		args = append(args, manifest.Arg{Name: name, Value: v})
	}
	return args, nil
}

func parseScalar(s string) (any, error) {
	if s == "" {
		return "", nil
	}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		return nil, err
	}
	if len(node.Content) != 1 || node.Content[0].Kind != yaml.ScalarNode {
		return s, nil
	}
	var v any
	if err := node.Content[0].Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// strategyFlags override strategy fields of a job when set explicitly.
type strategyFlags struct {
	name            string
	folder          bool
	noHashes        bool
	noSuccessMarker bool
	noFailureMarker bool
	retriableExit   []int
}

func (f *strategyFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "strategy", strategy.NameMarkers, "skip strategy (markers|exists)")
	fs.BoolVar(&f.folder, "folder", false, "output is a directory; keep markers inside it")
	fs.BoolVar(&f.noHashes, "no-hashes", false, "any marker matches regardless of fingerprint")
	fs.BoolVar(&f.noSuccessMarker, "no-success-marker", false, "do not write success markers; output existence decides")
	fs.BoolVar(&f.noFailureMarker, "no-failure-marker", false, "do not write or honour failure markers")
	fs.IntSliceVar(&f.retriableExit, "retriable-exit", nil, "exit code treated as transient (repeatable)")
}

func (f *strategyFlags) apply(cmd *cobra.Command, job *manifest.Job) {
	fs := cmd.Flags()
	if fs.Changed("strategy") {
		job.Strategy = f.name
	}
	if fs.Changed("folder") {
		job.Folder = boolPtr(f.folder)
	}
	if fs.Changed("no-hashes") {
		job.Hashes = boolPtr(!f.noHashes)
	}
	if fs.Changed("no-success-marker") {
		job.SuccessMarker = boolPtr(!f.noSuccessMarker)
	}
	if fs.Changed("no-failure-marker") {
		job.FailureMarker = boolPtr(!f.noFailureMarker)
	}
	if fs.Changed("retriable-exit") {
		job.RetriableExitCodes = f.retriableExit
	}
}

func boolPtr(b bool) *bool { return &b }

// storageFlags override the persistence and execution settings of the
// loaded configuration.
type storageFlags struct {
	historyDB string
	backend   string
	ledgerDB  string
	lock      bool
	retries   uint64
}

func (f *storageFlags) register(fs *pflag.FlagSet, withExecution bool) {
	fs.StringVar(&f.backend, "backend", config.BackendFile, "marker backend (file|sqlite)")
	fs.StringVar(&f.ledgerDB, "ledger-db", "", "SQLite marker ledger for the sqlite backend")
	if withExecution {
		fs.StringVar(&f.historyDB, "history-db", "", "SQLite database recording every run")
		fs.BoolVar(&f.lock, "lock", false, "hold an advisory lock on the output while deciding and running")
		fs.Uint64Var(&f.retries, "retries", 0, "in-process retries of transient failures")
	}
}

func (f *storageFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("backend") {
		cfg.Markers.Backend = f.backend
	}
	if fs.Changed("ledger-db") {
		cfg.Markers.LedgerDB = f.ledgerDB
	}
	if fs.Changed("history-db") {
		cfg.HistoryDB = f.historyDB
	}
	if fs.Changed("lock") {
		cfg.Lock = f.lock
	}
	if fs.Changed("retries") {
		cfg.Retry.Attempts = f.retries
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return nil
}
