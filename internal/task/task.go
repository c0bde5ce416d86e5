package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/roach88/skipif/internal/guard"
)

// Environment variables exported to the child process.
const (
	EnvOutput   = "SKIPIF_OUTPUT"
	EnvArgsHash = "SKIPIF_ARGS_HASH"
	EnvCodeHash = "SKIPIF_CODE_HASH"
)

// ErrTimeout is returned when a command exceeds Spec.Timeout.
var ErrTimeout = errors.New("command timed out")

// Spec describes one command.
type Spec struct {
	Argv []string
	Dir  string

	// Env entries ("KEY=value") are added to the inherited environment.
	Env []string

	// Timeout bounds a single attempt. Zero means no limit.
	Timeout time.Duration

	// Stdout and Stderr default to the parent's.
	Stdout io.Writer
	Stderr io.Writer
}

// Validate checks that s names a command.
func (s Spec) Validate() error {
	if len(s.Argv) == 0 || s.Argv[0] == "" {
		return errors.New("command is required")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", s.Timeout)
	}
	return nil
}

// Result describes a finished command.
type Result struct {
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration_ns"`
}

// ExitError reports a command that exited non-zero. Code is -1 when the
// process was killed by a signal.
type ExitError struct {
	Argv []string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Argv[0], e.Code)
}

// Operation returns a guard operation running spec for call.
func Operation(spec Spec, call guard.Call) func(context.Context) (Result, error) {
	return func(ctx context.Context) (Result, error) {
		if err := spec.Validate(); err != nil {
			return Result{}, err
		}
		return run(ctx, spec, call)
	}
}

func run(ctx context.Context, spec Spec, call guard.Call) (Result, error) {
	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Env = append(cmd.Env,
		EnvOutput+"="+call.Output,
		EnvArgsHash+"="+strconv.FormatUint(call.Fingerprint.Args, 10),
		EnvCodeHash+"="+strconv.FormatUint(call.Fingerprint.Code, 10),
	)
	cmd.Stdout = spec.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = spec.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	// Children that keep stdio open after being killed must not hang Wait.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start)}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		// The caller gave up; report it as cancellation, not as a failure.
		return res, fmt.Errorf("%s: %w", spec.Argv[0], ctx.Err())
	case runCtx.Err() != nil:
		return res, fmt.Errorf("%s: %w after %s", spec.Argv[0], ErrTimeout, spec.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Argv: spec.Argv, Code: exitErr.ExitCode()}
	}
	return res, fmt.Errorf("start %s: %w", spec.Argv[0], err)
}
