package task

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/guard"
	"github.com/roach88/skipif/internal/strategy"
)

func sh(script string) []string { return []string{"sh", "-c", script} }

var testCall = guard.Call{
	Output:      "/tmp/out",
	Fingerprint: fingerprint.Fingerprint{Args: 11, Code: 22},
}

func TestOperationSuccess(t *testing.T) {
	var stdout bytes.Buffer
	op := Operation(Spec{Argv: sh("echo hello"), Stdout: &stdout}, testCall)

	res, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", stdout.String())
}

func TestOperationExportsIdentity(t *testing.T) {
	var stdout bytes.Buffer
	spec := Spec{
		Argv:   sh(`printf '%s %s %s %s' "$SKIPIF_OUTPUT" "$SKIPIF_ARGS_HASH" "$SKIPIF_CODE_HASH" "$EXTRA"`),
		Env:    []string{"EXTRA=yes"},
		Stdout: &stdout,
	}

	_, err := Operation(spec, testCall)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out 11 22 yes", stdout.String())
}

func TestOperationDir(t *testing.T) {
	dir := t.TempDir()
	_, err := Operation(Spec{Argv: sh("touch made"), Dir: dir}, testCall)(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "made"))
}

func TestOperationExitError(t *testing.T) {
	res, err := Operation(Spec{Argv: sh("exit 3"), Stderr: &bytes.Buffer{}}, testCall)(context.Background())

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "sh: exit status 3", err.Error())
}

func TestOperationTimeout(t *testing.T) {
	spec := Spec{Argv: sh("sleep 5"), Timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err := Operation(spec, testCall)(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestOperationCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := Operation(Spec{Argv: sh("sleep 5")}, testCall)(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOperationStartFailure(t *testing.T) {
	_, err := Operation(Spec{Argv: []string{filepath.Join(t.TempDir(), "missing")}}, testCall)(context.Background())
	require.Error(t, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestSpecValidate(t *testing.T) {
	assert.Error(t, Spec{}.Validate())
	assert.Error(t, Spec{Argv: []string{""}}.Validate())
	assert.Error(t, Spec{Argv: []string{"true"}, Timeout: -time.Second}.Validate())
	assert.NoError(t, Spec{Argv: []string{"true"}}.Validate())

	_, err := Operation(Spec{}, testCall)(context.Background())
	assert.Error(t, err)
}

// The guard sees a task exactly like any other operation.
func TestOperationUnderGuard(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "artifact")
	call := guard.Call{Output: output, Fingerprint: fingerprint.Fingerprint{Args: 1, Code: 1}}
	counter := filepath.Join(dir, "count")

	spec := Spec{Argv: sh(`echo x >> "` + counter + `"; echo data > "$SKIPIF_OUTPUT"`)}
	for i := 0; i < 2; i++ {
		_, err := guard.Do(context.Background(), newGuard(), call, Operation(spec, call))
		require.NoError(t, err)
	}

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(data), "second call is skipped")
}

func newGuard() *guard.Guard {
	return guard.New(strategy.NewMarkers(strategy.Retriable(RetriableExitCodes(75))))
}
