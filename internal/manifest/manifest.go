// Package manifest loads batch job definitions from YAML or CUE files.
//
// A manifest is a list of jobs, each one command guarded for one output:
//
//	jobs:
//	  - name: render-frame-7
//	    output: out/frame-7.png
//	    command: [./render.sh, "7"]
//	    args:
//	      - {name: frame, value: 7}
//	    version: v2
//	    retriable_exit_codes: [75]
//
// CUE manifests use the same field names and may use any CUE feature
// (definitions, comprehensions) as long as "jobs" evaluates to a concrete
// list.
package manifest

import (
	"fmt"
	"time"

	"github.com/roach88/skipif/internal/fingerprint"
	"github.com/roach88/skipif/internal/strategy"
	"github.com/roach88/skipif/internal/task"
)

// Manifest is a decoded job file.
type Manifest struct {
	Path string
	Jobs []Job
}

// Job is one guarded command. Optional booleans are pointers so that an
// unset field inherits the configured default.
type Job struct {
	Name    string   `yaml:"name" json:"name"`
	Output  string   `yaml:"output" json:"output"`
	Command []string `yaml:"command" json:"command"`
	Dir     string   `yaml:"dir,omitempty" json:"dir,omitempty"`
	Env     []string `yaml:"env,omitempty" json:"env,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Args         []Arg    `yaml:"args,omitempty" json:"args,omitempty"`
	Exclude      []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Version      string   `yaml:"version,omitempty" json:"version,omitempty"`
	VersionFiles []string `yaml:"version_files,omitempty" json:"version_files,omitempty"`

	Strategy           string `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Folder             *bool  `yaml:"folder,omitempty" json:"folder,omitempty"`
	Hashes             *bool  `yaml:"hashes,omitempty" json:"hashes,omitempty"`
	SuccessMarker      *bool  `yaml:"success_marker,omitempty" json:"success_marker,omitempty"`
	FailureMarker      *bool  `yaml:"failure_marker,omitempty" json:"failure_marker,omitempty"`
	RetriableExitCodes []int  `yaml:"retriable_exit_codes,omitempty" json:"retriable_exit_codes,omitempty"`

	// Pos is the job's location in the manifest, for error messages.
	Pos Position `yaml:"-" json:"-"`
}

// Arg is one named identity value.
type Arg struct {
	Name  string `yaml:"name" json:"name"`
	Value any    `yaml:"value" json:"value"`
}

// Position locates a job within its manifest file.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.Line == 0 {
		return p.File
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats d as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Fingerprint computes the job's identity. The code version is the version
// string and, when version files are listed, their content hash.
func (j Job) Fingerprint() (fingerprint.Fingerprint, error) {
	args := make([]fingerprint.Arg, len(j.Args))
	for i, a := range j.Args {
		args[i] = fingerprint.Arg{Name: a.Name, Value: a.Value}
	}

	var code any = j.Version
	if len(j.VersionFiles) > 0 {
		fileVersion, err := fingerprint.FileVersion(j.VersionFiles...)
		if err != nil {
			return fingerprint.Fingerprint{}, fmt.Errorf("job %s: %w", j.Name, err)
		}
		code = []any{j.Version, fileVersion}
	}

	fp, err := fingerprint.Compute(args, code, j.Exclude...)
	if err != nil {
		return fingerprint.Fingerprint{}, fmt.Errorf("job %s: %w", j.Name, err)
	}
	return fp, nil
}

// StrategySpec overlays the job's strategy fields onto base.
func (j Job) StrategySpec(base strategy.Spec) strategy.Spec {
	spec := base
	if j.Strategy != "" {
		spec.Name = j.Strategy
	}
	if j.Folder != nil {
		spec.Folder = *j.Folder
	}
	if j.Hashes != nil {
		spec.NoHashes = !*j.Hashes
	}
	if j.SuccessMarker != nil {
		spec.NoSuccessMarker = !*j.SuccessMarker
	}
	if j.FailureMarker != nil {
		spec.NoFailureMarker = !*j.FailureMarker
	}
	if j.RetriableExitCodes != nil {
		spec.Retriable = task.RetriableExitCodes(j.RetriableExitCodes...)
	}
	return spec
}

// TaskSpec returns the command description for the job.
func (j Job) TaskSpec() task.Spec {
	return task.Spec{
		Argv:    j.Command,
		Dir:     j.Dir,
		Env:     j.Env,
		Timeout: time.Duration(j.Timeout),
	}
}
