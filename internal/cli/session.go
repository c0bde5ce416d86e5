package cli

import (
	"errors"
	"io"
	"path/filepath"

	"github.com/roach88/skipif/internal/config"
	"github.com/roach88/skipif/internal/guard"
	"github.com/roach88/skipif/internal/manifest"
	"github.com/roach88/skipif/internal/store"
	"github.com/roach88/skipif/internal/strategy"
	"github.com/roach88/skipif/internal/task"
)

// session owns the stores opened for one command. A database used as both
// marker ledger and run history is opened once.
type session struct {
	cfg    config.Config
	stores map[string]*store.Store
}

func newSession(cfg config.Config) *session {
	return &session{cfg: cfg, stores: map[string]*store.Store{}}
}

func (s *session) open(path string) (*store.Store, error) {
	key := filepath.Clean(path)
	if st, ok := s.stores[key]; ok {
		return st, nil
	}
	st, err := store.Open(key)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	s.stores[key] = st
	return st, nil
}

// Close closes every store opened by the session.
func (s *session) Close() error {
	var errs []error
	for _, st := range s.stores {
		errs = append(errs, st.Close())
	}
	return errors.Join(errs...)
}

// baseSpec returns the configured strategy defaults.
func (s *session) baseSpec() (strategy.Spec, error) {
	m := s.cfg.Markers
	spec := strategy.Spec{
		Name:            strategy.NameMarkers,
		NoSuccessMarker: !m.Success,
		NoFailureMarker: !m.Failure,
		NoHashes:        !m.Hashes,
		Folder:          m.Folder,
		Retriable:       task.RetriableExitCodes(s.cfg.Retry.ExitCodes...),
	}
	if m.Backend == config.BackendSQLite {
		st, err := s.open(m.LedgerDB)
		if err != nil {
			return strategy.Spec{}, err
		}
		spec.Backend = st
	}
	return spec, nil
}

func (s *session) guardOptions() ([]guard.Option, error) {
	var opts []guard.Option
	if s.cfg.HistoryDB != "" {
		st, err := s.open(s.cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		opts = append(opts, guard.WithRecorder(st))
	}
	if s.cfg.Lock {
		opts = append(opts, guard.WithLocking(guard.DefaultLockRetryDelay))
	}
	return opts, nil
}

// runner returns a batch runner for the configured defaults. Commands write
// to stdout and stderr.
func (s *session) runner(stdout, stderr io.Writer) (manifest.Runner, error) {
	base, err := s.baseSpec()
	if err != nil {
		return manifest.Runner{}, err
	}
	opts, err := s.guardOptions()
	if err != nil {
		return manifest.Runner{}, err
	}
	return manifest.Runner{
		Base:         base,
		GuardOptions: opts,
		Retries:      s.cfg.Retry.Attempts,
		Backoff:      s.cfg.Retry.Backoff,
		Concurrency:  s.cfg.Jobs,
		Stdout:       stdout,
		Stderr:       stderr,
	}, nil
}

// childStdout keeps JSON output parseable by sending command output to
// stderr.
func (o *RootOptions) childStdout(stdout, stderr io.Writer) io.Writer {
	if o.Format == "json" {
		return stderr
	}
	return stdout
}
