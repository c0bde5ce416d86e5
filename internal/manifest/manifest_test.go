package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skipif/internal/strategy"
	"github.com/roach88/skipif/internal/task"
)

const yamlManifest = `jobs:
  - name: frame-7
    output: out/frame-7.png
    command: [./render.sh, "7"]
    args:
      - {name: frame, value: 7}
      - {name: quality, value: high}
      - {name: retries, value: 3}
    exclude: [retries]
    version: v2
    timeout: 90s
    retriable_exit_codes: [75]
  - name: index
    output: out/index
    command: [make, index]
    strategy: exists
    folder: true
`

const cueManifest = `
#render: {
	name:    string
	output:  "out/\(name).png"
	command: ["./render.sh", "7"]
	version: "v2"
	timeout: "90s"
	retriable_exit_codes: [75]
	exclude: ["retries"]
	args: [...{name: string, value: _}]
}

jobs: [
	#render & {
		name: "frame-7"
		args: [
			{name: "frame", value:   7},
			{name: "quality", value: "high"},
			{name: "retries", value: 3},
		]
	},
	{
		name:     "index"
		output:   "out/index"
		command:  ["make", "index"]
		strategy: "exists"
		folder:   true
	},
]
`

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeManifest(t, "jobs.yaml", yamlManifest)

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Jobs, 2)

	frame := m.Jobs[0]
	assert.Equal(t, "frame-7", frame.Name)
	assert.Equal(t, "out/frame-7.png", frame.Output)
	assert.Equal(t, []string{"./render.sh", "7"}, frame.Command)
	assert.Equal(t, Duration(90*time.Second), frame.Timeout)
	assert.Equal(t, []int{75}, frame.RetriableExitCodes)
	assert.Equal(t, 2, frame.Pos.Line)
	assert.Equal(t, path, frame.Pos.File)

	index := m.Jobs[1]
	assert.Equal(t, strategy.NameExists, index.Strategy)
	require.NotNil(t, index.Folder)
	assert.True(t, *index.Folder)
	assert.Nil(t, index.Hashes, "unset options stay nil")
}

func TestLoadCUE(t *testing.T) {
	m, err := Load(writeManifest(t, "jobs.cue", cueManifest))
	require.NoError(t, err)
	require.Len(t, m.Jobs, 2)

	frame := m.Jobs[0]
	assert.Equal(t, "frame-7", frame.Name)
	assert.Equal(t, "out/frame-7.png", frame.Output, "CUE interpolation is evaluated")
	assert.Equal(t, Duration(90*time.Second), frame.Timeout)
	assert.Positive(t, frame.Pos.Line)
}

// The format must not leak into job identity.
func TestYAMLAndCUEFingerprintsAgree(t *testing.T) {
	y, err := Load(writeManifest(t, "jobs.yml", yamlManifest))
	require.NoError(t, err)
	c, err := Load(writeManifest(t, "jobs.cue", cueManifest))
	require.NoError(t, err)

	for i := range y.Jobs {
		fy, err := y.Jobs[i].Fingerprint()
		require.NoError(t, err)
		fc, err := c.Jobs[i].Fingerprint()
		require.NoError(t, err)
		assert.Equal(t, fy, fc, y.Jobs[i].Name)
	}
}

func TestJobFingerprint(t *testing.T) {
	base := Job{Name: "j", Args: []Arg{{Name: "a", Value: 1}, {Name: "noise", Value: "x"}}, Version: "v1"}

	fp1, err := base.Fingerprint()
	require.NoError(t, err)

	excluded := base
	excluded.Exclude = []string{"noise"}
	excluded.Args = []Arg{{Name: "a", Value: 1}, {Name: "noise", Value: "y"}}
	fp2, err := excluded.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1.Code, fp2.Code)
	assert.NotEqual(t, fp1.Args, fp2.Args, "exclusion removes the arg from the identity")

	bumped := base
	bumped.Version = "v2"
	fp3, err := bumped.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1.Args, fp3.Args)
	assert.NotEqual(t, fp1.Code, fp3.Code)
}

func TestJobFingerprintVersionFiles(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo 1\n"), 0o644))

	job := Job{Name: "j", Version: "v1", VersionFiles: []string{script}}
	before, err := job.Fingerprint()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(script, []byte("echo 2\n"), 0o644))
	after, err := job.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, before.Code, after.Code, "editing the script changes the code hash")

	job.VersionFiles = []string{filepath.Join(dir, "missing.sh")}
	_, err = job.Fingerprint()
	assert.Error(t, err)
}

func TestJobStrategySpec(t *testing.T) {
	yes, no := true, false
	base := strategy.Spec{Name: strategy.NameMarkers, NoHashes: true}

	spec := Job{}.StrategySpec(base)
	assert.Equal(t, strategy.NameMarkers, spec.Name)
	assert.True(t, spec.NoHashes, "unset fields inherit the base")

	spec = Job{
		Strategy:           strategy.NameMarkers,
		Folder:             &yes,
		Hashes:             &yes,
		SuccessMarker:      &no,
		FailureMarker:      &no,
		RetriableExitCodes: []int{75},
	}.StrategySpec(base)
	assert.True(t, spec.Folder)
	assert.False(t, spec.NoHashes)
	assert.True(t, spec.NoSuccessMarker)
	assert.True(t, spec.NoFailureMarker)
	require.NotNil(t, spec.Retriable)
	assert.True(t, spec.Retriable(&task.ExitError{Argv: []string{"x"}, Code: 75}))
	assert.False(t, spec.Retriable(&task.ExitError{Argv: []string{"x"}, Code: 1}))
}

func TestJobTaskSpec(t *testing.T) {
	spec := Job{Command: []string{"make"}, Dir: "build", Env: []string{"A=1"}, Timeout: Duration(time.Minute)}.TaskSpec()
	assert.Equal(t, task.Spec{Argv: []string{"make"}, Dir: "build", Env: []string{"A=1"}, Timeout: time.Minute}, spec)
}

func TestLoadValidation(t *testing.T) {
	path := writeManifest(t, "bad.yaml", `jobs:
  - name: a
    output: out/a
    command: ["true"]
  - name: a
    output: out/b
    command: ["true"]
  - output: out/c
    command: ["true"]
  - name: d
    command: []
    strategy: sometimes
    args:
      - {value: 1}
`)

	_, err := Load(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "job a: duplicate name")
	assert.Contains(t, msg, "job #2: name is required")
	assert.Contains(t, msg, "job d: output is required")
	assert.Contains(t, msg, "job d: command is required")
	assert.Contains(t, msg, `unknown strategy "sometimes"`)
	assert.Contains(t, msg, "args[0] has no name")
	assert.Contains(t, msg, path+":5:", "errors carry the job position")

	var loadErr *LoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeManifest(t, "jobs.toml", ""))
	assert.ErrorContains(t, err, "unsupported extension")

	_, err = Load(writeManifest(t, "jobs.yaml", "jobs:\n  - name: a\n    colour: red\n"))
	assert.ErrorContains(t, err, "colour")

	_, err = Load(writeManifest(t, "jobs.yaml", "jobz: []\n"))
	assert.Error(t, err)

	_, err = Load(writeManifest(t, "jobs.cue", "jobs: [{name: 1 & 2}]"))
	assert.Error(t, err)

	_, err = Load(writeManifest(t, "jobs.cue", "jobs: [{name: string, output: \"o\", command: [\"x\"]}]"))
	assert.ErrorContains(t, err, "job 0", "non-concrete jobs are rejected")
}

func TestLoadEmpty(t *testing.T) {
	m, err := Load(writeManifest(t, "jobs.yaml", ""))
	require.NoError(t, err)
	assert.Empty(t, m.Jobs)

	m, err = Load(writeManifest(t, "jobs.cue", "other: 1\n"))
	require.NoError(t, err)
	assert.Empty(t, m.Jobs)
}

func TestSelect(t *testing.T) {
	m := &Manifest{Jobs: []Job{{Name: "a"}, {Name: "b"}, {Name: "c"}}}

	all, err := m.Select()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := m.Select("c", "a")
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "a", some[0].Name, "manifest order is kept")
	assert.Equal(t, "c", some[1].Name)

	_, err = m.Select("a", "zz")
	assert.ErrorContains(t, err, "zz")
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "f.yaml", Position{File: "f.yaml"}.String())
	assert.Equal(t, "f.yaml:3:5", Position{File: "f.yaml", Line: 3, Column: 5}.String())
}
