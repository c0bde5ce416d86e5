package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/strategy"
)

// Call identifies one guarded invocation.
type Call struct {
	Output      string
	Fingerprint fingerprint.Fingerprint
}

// Status is the terminal state of a guarded call.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Report describes what Execute did.
type Report struct {
	RunID       string
	Output      string
	Fingerprint fingerprint.Fingerprint
	Status      Status
	Skipped     bool
	StartedAt   time.Time
	Duration    time.Duration

	// Err is the operation's error, nil on success or skip.
	Err error

	// CallbackErr is the strategy callback's error. It never affects the
	// result returned by Execute.
	CallbackErr error
}

// Recorder receives one Report per guarded call, skipped calls included.
type Recorder interface {
	RecordRun(ctx context.Context, r Report) error
}

// PanicError wraps a value recovered from a panicking operation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Guard runs operations under a Strategy. It is safe for concurrent use as
// long as its Strategy and Recorder are.
type Guard struct {
	strategy  strategy.Strategy
	recorder  Recorder
	ids       IDGenerator
	clock     Clock
	lock      bool
	lockDelay time.Duration
}

// Option configures a Guard.
type Option func(*Guard)

// WithRecorder records every call to r.
func WithRecorder(r Recorder) Option {
	return func(g *Guard) { g.recorder = r }
}

// WithLocking holds an advisory lock on LockPath(output) from the skip
// decision until the callback has run. retryDelay is the polling interval;
// zero selects DefaultLockRetryDelay.
func WithLocking(retryDelay time.Duration) Option {
	return func(g *Guard) {
		g.lock = true
		g.lockDelay = retryDelay
	}
}

// WithIDGenerator overrides the run ID source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(g *Guard) { g.ids = ids }
}

// WithClock overrides the time source for StartedAt and Duration.
func WithClock(c Clock) Option {
	return func(g *Guard) { g.clock = c }
}

// New returns a Guard for s.
func New(s strategy.Strategy, opts ...Option) *Guard {
	g := &Guard{
		strategy: s,
		ids:      UUIDv7Generator{},
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.lockDelay <= 0 {
		g.lockDelay = DefaultLockRetryDelay
	}
	return g
}

// Strategy returns the guard's strategy.
func (g *Guard) Strategy() strategy.Strategy {
	return g.strategy
}

// Execute runs op for call unless the strategy says it can be skipped.
//
// A skipped call returns the zero T and a nil error. Otherwise the value and
// error are exactly what op returned. The returned error is also non-nil
// when the lock could not be acquired, in which case op did not run.
func Execute[T any](ctx context.Context, g *Guard, call Call, op func(context.Context) (T, error)) (T, Report, error) {
	var zero T
	report := Report{
		RunID:       g.ids.Generate(),
		Output:      call.Output,
		Fingerprint: call.Fingerprint,
		StartedAt:   g.clock.Now(),
	}

	if g.lock {
		fl, err := acquireLock(ctx, call.Output, g.lockDelay)
		if err != nil {
			return zero, report, err
		}
		defer func() {
			if err := fl.Unlock(); err != nil {
				slog.Error("releasing lock failed", "output", call.Output, "error", err)
			}
		}()
	}

	if g.strategy.Skip(ctx, call.Output, call.Fingerprint) {
		report.Skipped = true
		report.Status = StatusSkipped
		slog.Warn("skipped", "output", call.Output, "fingerprint", call.Fingerprint.String(), "run_id", report.RunID)
		g.record(ctx, &report)
		return zero, report, nil
	}

	finished := false
	defer func() {
		// Only reachable without a result when op called runtime.Goexit.
		if !finished {
			slog.Warn("operation exited without a result, not recording an outcome", "output", call.Output)
			report.Status = StatusCancelled
			g.record(ctx, &report)
		}
	}()

	value, panicked, err := capture(ctx, op)
	finished = true

	if panicked == nil && isCancellation(ctx, err) {
		slog.Warn("operation cancelled, not recording an outcome", "output", call.Output, "error", err)
		report.Status = StatusCancelled
		report.Err = err
		g.record(ctx, &report)
		return value, report, err
	}

	outcome := strategy.Outcome{Value: value, Err: err}
	if cbErr := g.strategy.Callback(context.WithoutCancel(ctx), outcome, call.Output, call.Fingerprint); cbErr != nil {
		slog.Error("strategy callback failed", "output", call.Output, "error", cbErr)
		report.CallbackErr = cbErr
	}

	report.Err = err
	report.Status = StatusSucceeded
	if err != nil {
		report.Status = StatusFailed
	}
	g.record(ctx, &report)

	if panicked != nil {
		panic(panicked.Value)
	}
	return value, report, err
}

// Do is Execute without the report.
func Do[T any](ctx context.Context, g *Guard, call Call, op func(context.Context) (T, error)) (T, error) {
	value, _, err := Execute(ctx, g, call, op)
	return value, err
}

// capture runs op, converting a panic into a *PanicError.
func capture[T any](ctx context.Context, op func(context.Context) (T, error)) (value T, panicked *PanicError, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = &PanicError{Value: r, Stack: debug.Stack()}
			err = panicked
		}
	}()
	value, err = op(ctx)
	return value, nil, err
}

// isCancellation reports whether err means op gave up because ctx ended,
// rather than finishing with its own failure.
func isCancellation(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (g *Guard) record(ctx context.Context, report *Report) {
	report.Duration = g.clock.Now().Sub(report.StartedAt)
	if g.recorder == nil {
		return
	}
	if err := g.recorder.RecordRun(context.WithoutCancel(ctx), *report); err != nil {
		slog.Error("recording run failed", "output", report.Output, "run_id", report.RunID, "error", err)
	}
}
