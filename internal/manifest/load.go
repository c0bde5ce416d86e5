package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/skipif/internal/strategy"
)

// LoadError reports a problem with one manifest location.
type LoadError struct {
	Pos     Position
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// Load reads and validates the manifest at path. The format is chosen by
// extension: .cue for CUE, .yaml or .yml for YAML.
// All validation problems are returned together.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var jobs []Job
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		jobs, err = decodeCUE(path, data)
	case ".yaml", ".yml":
		jobs, err = decodeYAML(path, data)
	default:
		return nil, fmt.Errorf("manifest %s: unsupported extension %q (want .yaml, .yml or .cue)", path, ext)
	}
	if err != nil {
		return nil, err
	}

	m := &Manifest{Path: path, Jobs: jobs}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeYAML(path string, data []byte) ([]Job, error) {
	var doc struct {
		Jobs []yaml.Node `yaml:"jobs"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Pos: Position{File: path}, Message: fmt.Sprintf("parse YAML: %v", err)}
	}

	jobs := make([]Job, 0, len(doc.Jobs))
	var errs []error
	for i := range doc.Jobs {
		node := &doc.Jobs[i]
		pos := Position{File: path, Line: node.Line, Column: node.Column}
		var job Job
		if err := decodeNodeStrict(node, &job); err != nil {
			errs = append(errs, &LoadError{Pos: pos, Message: fmt.Sprintf("job %d: %v", i, err)})
			continue
		}
		job.Pos = pos
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}

// decodeNodeStrict decodes node into v rejecting unknown fields, which
// yaml.Node.Decode alone does not do.
func decodeNodeStrict(node *yaml.Node, v any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

func decodeCUE(path string, data []byte) ([]Job, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, cueLoadError(path, "compile CUE", err)
	}

	jobsVal := value.LookupPath(cue.ParsePath("jobs"))
	if !jobsVal.Exists() {
		return []Job{}, nil
	}
	iter, err := jobsVal.List()
	if err != nil {
		return nil, cueLoadError(path, "jobs", err)
	}

	var jobs []Job
	var errs []error
	for i := 0; iter.Next(); i++ {
		v := iter.Value()
		pos := Position{File: path}
		if p := v.Pos(); p.IsValid() {
			pos.Line, pos.Column = p.Line(), p.Column()
		}
		if err := v.Validate(cue.Concrete(true)); err != nil {
			errs = append(errs, &LoadError{Pos: pos, Message: fmt.Sprintf("job %d: %v", i, err)})
			continue
		}
		var job Job
		if err := v.Decode(&job); err != nil {
			errs = append(errs, &LoadError{Pos: pos, Message: fmt.Sprintf("job %d: %v", i, err)})
			continue
		}
		job.Pos = pos
		jobs = append(jobs, job)
	}
	if jobs == nil {
		jobs = []Job{}
	}
	return jobs, errors.Join(errs...)
}

func cueLoadError(path, what string, err error) error {
	pos := Position{File: path}
	if ps := cueerrors.Positions(err); len(ps) > 0 {
		pos.Line, pos.Column = ps[0].Line(), ps[0].Column()
	}
	return &LoadError{Pos: pos, Message: fmt.Sprintf("%s: %v", what, err)}
}

// Validate checks every job and returns all problems at once.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]Position, len(m.Jobs))
	for i, j := range m.Jobs {
		fail := func(format string, args ...any) {
			errs = append(errs, &LoadError{Pos: j.Pos, Message: fmt.Sprintf(format, args...)})
		}

		label := j.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			fail("job %s: name is required", label)
		} else if prev, dup := seen[j.Name]; dup {
			fail("job %s: duplicate name, first defined at %s", label, prev)
		} else {
			seen[j.Name] = j.Pos
		}

		if j.Output == "" {
			fail("job %s: output is required", label)
		}
		if err := j.TaskSpec().Validate(); err != nil {
			fail("job %s: %v", label, err)
		}
		switch j.Strategy {
		case "", strategy.NameMarkers, strategy.NameExists:
		default:
			fail("job %s: unknown strategy %q: must be one of [%s %s]", label, j.Strategy, strategy.NameMarkers, strategy.NameExists)
		}
		for k, a := range j.Args {
			if a.Name == "" {
				fail("job %s: args[%d] has no name", label, k)
			}
		}
	}
	return errors.Join(errs...)
}

// Select returns the jobs with the given names in manifest order, or all
// jobs when names is empty.
func (m *Manifest) Select(names ...string) ([]Job, error) {
	if len(names) == 0 {
		return m.Jobs, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Job
	for _, j := range m.Jobs {
		if want[j.Name] {
			out = append(out, j)
			delete(want, j.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for _, n := range names {
			if want[n] {
				missing = append(missing, n)
			}
		}
		return nil, fmt.Errorf("unknown jobs: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
