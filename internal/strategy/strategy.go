package strategy

import (
	"context"
	"fmt"

	"github.com/roach88/skipif/internal/fingerprint"
)

// Outcome is the terminal result of a guarded operation.
type Outcome struct {
	Value any
	Err   error
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Strategy is a skip/record policy for one output location.
type Strategy interface {
	// Skip reports whether the operation for output can be skipped.
	Skip(ctx context.Context, output string, fp fingerprint.Fingerprint) bool

	// Callback is invoked exactly once after a non-skipped operation
	// completed. Its error is reported to the caller as a warning and never
	// replaces the operation's own result.
	Callback(ctx context.Context, outcome Outcome, output string, fp fingerprint.Fingerprint) error
}

// Inspector is implemented by strategies that can explain a skip decision
// without logging or mutating state.
type Inspector interface {
	Inspect(ctx context.Context, output string, fp fingerprint.Fingerprint) (Status, error)
}

// Strategy names accepted by FromSpec.
const (
	NameMarkers = "markers"
	NameExists  = "exists"
)

// Spec is a declarative strategy description used by the CLI and manifests.
// The zero value selects Markers with all defaults.
type Spec struct {
	Name            string
	NoSuccessMarker bool
	NoFailureMarker bool
	NoHashes        bool
	Folder          bool
	Retriable       func(error) bool
	Backend         MarkerBackend
}

// FromSpec builds the strategy described by s.
func FromSpec(s Spec) (Strategy, error) {
	switch s.Name {
	case NameExists:
		return FileExists{}, nil
	case "", NameMarkers:
		opts := []Option{}
		if s.NoSuccessMarker {
			opts = append(opts, WithoutSuccessMarker())
		}
		if s.NoFailureMarker {
			opts = append(opts, WithoutFailureMarker())
		}
		if s.NoHashes {
			opts = append(opts, WithoutHashes())
		}
		if s.Folder {
			opts = append(opts, Folder())
		}
		if s.Retriable != nil {
			opts = append(opts, Retriable(s.Retriable))
		}
		if s.Backend != nil {
			opts = append(opts, WithBackend(s.Backend))
		}
		return NewMarkers(opts...), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q: must be one of [%s %s]", s.Name, NameMarkers, NameExists)
	}
}
