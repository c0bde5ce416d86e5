package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/skipif/internal/fingerprint"
)

// Markers records success and failure sentinels for an output and skips
// calls whose fingerprint matches a recorded outcome.
//
// Skip evaluates, in order:
//  1. a matching failure marker skips (failures are sticky until the
//     arguments or code version change)
//  2. with success markers enabled, a matching success marker skips only if
//     the output still exists
//  3. with success markers disabled, the output's existence decides
//
// Construct with NewMarkers; the configuration is read-only afterwards.
type Markers struct {
	failureMarker bool
	successMarker bool
	hashes        bool
	folder        bool
	retriable     func(error) bool
	backend       MarkerBackend
}

// Option configures Markers.
type Option func(*Markers)

// WithoutFailureMarker disables writing and consulting failure markers.
func WithoutFailureMarker() Option {
	return func(m *Markers) { m.failureMarker = false }
}

// WithoutSuccessMarker disables writing and consulting success markers.
// Skip then falls back to the output's existence.
func WithoutSuccessMarker() Option {
	return func(m *Markers) { m.successMarker = false }
}

// WithoutHashes writes empty markers. Any existing marker then matches,
// whatever the arguments or code version.
func WithoutHashes() Option {
	return func(m *Markers) { m.hashes = false }
}

// Folder treats the output as a directory holding its own markers.
func Folder() Option {
	return func(m *Markers) { m.folder = true }
}

// Retriable sets the predicate classifying operation errors as transient.
// Retriable errors never produce a failure marker.
func Retriable(fn func(error) bool) Option {
	return func(m *Markers) { m.retriable = fn }
}

// WithBackend stores markers somewhere other than the filesystem layout.
// The output's own existence is still checked on disk.
func WithBackend(b MarkerBackend) Option {
	return func(m *Markers) { m.backend = b }
}

// AlwaysRetriable classifies every error as transient. It is the default,
// so failure markers are only written once a Retriable predicate is set.
func AlwaysRetriable(error) bool { return true }

// NeverRetriable classifies every error as permanent.
func NeverRetriable(error) bool { return false }

// NewMarkers returns a Markers strategy. Defaults: failure and success markers
// on, hashes on, flat layout, every error retriable, FileBackend.
func NewMarkers(opts ...Option) *Markers {
	m := &Markers{
		failureMarker: true,
		successMarker: true,
		hashes:        true,
		retriable:     AlwaysRetriable,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.backend == nil {
		m.backend = FileBackend{Folder: m.folder}
	}
	return m
}

// Reason explains a skip decision.
type Reason string

const (
	ReasonFailureMarker Reason = "failure_marker"
	ReasonSuccessMarker Reason = "success_marker"
	ReasonOutputMissing Reason = "output_missing"
	ReasonNoMarker      Reason = "no_marker"
	ReasonOutputExists  Reason = "output_exists"
	ReasonNoOutput      Reason = "no_output"
	ReasonCheckFailed   Reason = "check_failed"
)

// Skip implements Strategy.
func (m *Markers) Skip(ctx context.Context, output string, fp fingerprint.Fingerprint) bool {
	skip, reason, err := m.decide(ctx, output, fp)
	attrs := []any{"output", output, "fingerprint", fp.String()}
	switch reason {
	case ReasonFailureMarker:
		slog.Warn("skipping due to failure marker", append(attrs, "marker", m.describe(output, Failure))...)
	case ReasonSuccessMarker:
		slog.Warn("skipping due to success marker", append(attrs, "marker", m.describe(output, Success))...)
	case ReasonOutputMissing:
		slog.Warn("success marker exists, but not the output", append(attrs, "marker", m.describe(output, Success))...)
	case ReasonOutputExists:
		slog.Warn("skipping as output exists", attrs...)
	case ReasonCheckFailed:
		slog.Warn("checking output failed, not skipping", append(attrs, "error", err)...)
	}
	return skip
}

// decide is Skip without logging.
func (m *Markers) decide(ctx context.Context, output string, fp fingerprint.Fingerprint) (bool, Reason, error) {
	if m.failureMarker && m.matches(ctx, output, Failure, fp).Matches {
		return true, ReasonFailureMarker, nil
	}

	if m.successMarker {
		if !m.matches(ctx, output, Success, fp).Matches {
			return false, ReasonNoMarker, nil
		}
		exists, err := pathExists(output)
		if err != nil {
			return false, ReasonCheckFailed, err
		}
		if !exists {
			return false, ReasonOutputMissing, nil
		}
		return true, ReasonSuccessMarker, nil
	}

	exists, err := pathExists(output)
	if err != nil {
		return false, ReasonCheckFailed, err
	}
	if exists {
		return true, ReasonOutputExists, nil
	}
	return false, ReasonNoOutput, nil
}

// MarkerState describes one marker as found on the backend.
type MarkerState struct {
	Present     bool                     `json:"present"`
	Fingerprint *fingerprint.Fingerprint `json:"fingerprint,omitempty"`
	Matches     bool                     `json:"matches"`
	Error       string                   `json:"error,omitempty"`
}

// matches reads the marker of kind and compares it with fp. Read failures
// count as "no match", so they never cause a skip.
func (m *Markers) matches(ctx context.Context, output string, kind Kind, fp fingerprint.Fingerprint) MarkerState {
	payload, err := m.backend.ReadMarker(ctx, output, kind)
	if err != nil {
		if errors.Is(err, ErrNoMarker) {
			return MarkerState{}
		}
		slog.Warn("reading marker failed", "output", output, "kind", kind.String(), "error", err)
		return MarkerState{Error: err.Error()}
	}

	state := MarkerState{Present: true}
	stored, perr := fingerprint.ParsePayload(payload)
	if perr == nil {
		state.Fingerprint = &stored
	}
	if !m.hashes {
		state.Matches = true
		return state
	}
	if perr != nil {
		slog.Debug("ignoring unreadable marker", "output", output, "kind", kind.String(), "error", perr)
		state.Error = perr.Error()
		return state
	}
	if stored != fp {
		slog.Debug("ignoring stale marker", "output", output, "kind", kind.String(),
			"stored", stored.String(), "current", fp.String())
		return state
	}
	state.Matches = true
	return state
}

// Callback implements Strategy.
func (m *Markers) Callback(ctx context.Context, outcome Outcome, output string, fp fingerprint.Fingerprint) error {
	switch {
	case outcome.OK():
		if !m.successMarker {
			return nil
		}
		return m.write(ctx, output, Success, fp)
	case m.failureMarker:
		if m.retriable(outcome.Err) {
			slog.Debug("not writing a failure marker as the error is retriable", "output", output, "error", outcome.Err)
			return nil
		}
		return m.write(ctx, output, Failure, fp)
	}
	return nil
}

// write stores the marker of kind and then deletes the opposite one. In
// folder mode the output directory exists afterwards, whatever the backend.
func (m *Markers) write(ctx context.Context, output string, kind Kind, fp fingerprint.Fingerprint) error {
	slog.Debug("writing marker", "output", output, "kind", kind.String(), "marker", m.describe(output, kind))
	if m.folder {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := m.backend.WriteMarker(ctx, output, kind, m.payload(fp)); err != nil {
		return err
	}
	if err := m.backend.RemoveMarker(ctx, output, kind.Opposite()); err != nil {
		return fmt.Errorf("remove stale marker: %w", err)
	}
	return nil
}

func (m *Markers) payload(fp fingerprint.Fingerprint) []byte {
	if !m.hashes {
		return []byte{}
	}
	return fp.Payload()
}

// describe returns the marker's file path for file backends and the kind
// otherwise, for log attributes.
func (m *Markers) describe(output string, kind Kind) string {
	if fb, ok := m.backend.(FileBackend); ok {
		return fb.Path(output, kind)
	}
	return kind.String()
}

// Status is a read-only report of the markers for one output.
type Status struct {
	Output       string      `json:"output"`
	OutputExists bool        `json:"output_exists"`
	Success      MarkerState `json:"success"`
	Failure      MarkerState `json:"failure"`
	Skip         bool        `json:"skip"`
	Reason       Reason      `json:"reason"`
}

// Inspect reports what Skip would decide for fp and why, without logging at
// warning level or mutating state.
func (m *Markers) Inspect(ctx context.Context, output string, fp fingerprint.Fingerprint) (Status, error) {
	st := Status{
		Output:  output,
		Success: m.matches(ctx, output, Success, fp),
		Failure: m.matches(ctx, output, Failure, fp),
	}
	exists, err := pathExists(output)
	if err != nil {
		return st, fmt.Errorf("inspect %s: %w", output, err)
	}
	st.OutputExists = exists
	st.Skip, st.Reason, _ = m.decide(ctx, output, fp)
	return st, nil
}

// Clear removes both markers for output.
func (m *Markers) Clear(ctx context.Context, output string) error {
	var errs []error
	for _, kind := range []Kind{Success, Failure} {
		if err := m.backend.RemoveMarker(ctx, output, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Strategy  = (*Markers)(nil)
	_ Inspector = (*Markers)(nil)
)
