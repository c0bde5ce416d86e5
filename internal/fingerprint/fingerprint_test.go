package fingerprint

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterminism(t *testing.T) {
	args := []Arg{
		{Name: "id", Value: 7},
		{Name: "folder", Value: "/data/out"},
	}

	fp1, err := Compute(args, "v1")
	require.NoError(t, err)
	fp2, err := Compute(args, "v1")
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "Compute must be deterministic")
	assert.NotZero(t, fp1.Args)
	assert.NotZero(t, fp1.Code)
}

func TestComputeChangesWithInput(t *testing.T) {
	base := MustCompute([]Arg{{Name: "id", Value: 1}}, "v1")

	otherValue := MustCompute([]Arg{{Name: "id", Value: 2}}, "v1")
	otherName := MustCompute([]Arg{{Name: "key", Value: 1}}, "v1")
	otherCode := MustCompute([]Arg{{Name: "id", Value: 1}}, "v2")

	assert.NotEqual(t, base.Args, otherValue.Args, "different value should change args hash")
	assert.NotEqual(t, base.Args, otherName.Args, "different name should change args hash")
	assert.Equal(t, base.Code, otherValue.Code, "code hash is independent of args")

	assert.Equal(t, base.Args, otherCode.Args, "args hash is independent of code version")
	assert.NotEqual(t, base.Code, otherCode.Code, "different version should change code hash")
}

func TestComputeIsOrderSensitive(t *testing.T) {
	a := MustCompute([]Arg{{Name: "x", Value: 1}, {Name: "y", Value: 2}}, nil)
	b := MustCompute([]Arg{{Name: "y", Value: 2}, {Name: "x", Value: 1}}, nil)

	assert.NotEqual(t, a.Args, b.Args)
}

func TestComputeExcludedArgs(t *testing.T) {
	withRun := []Arg{
		{Name: "run", Value: true},
		{Name: "id", Value: 3},
	}
	withoutRun := []Arg{
		{Name: "run", Value: false},
		{Name: "id", Value: 3},
	}
	justID := []Arg{{Name: "id", Value: 3}}

	a := MustCompute(withRun, "v", "run")
	b := MustCompute(withoutRun, "v", "run")
	c := MustCompute(justID, "v")

	assert.Equal(t, a, b, "excluded args must not affect the hash")
	assert.Equal(t, a, c, "excluding an arg is the same as omitting it")

	d := MustCompute(withRun, "v")
	e := MustCompute(withoutRun, "v")
	assert.NotEqual(t, d.Args, e.Args, "without exclusion the flag is part of the identity")
}

func TestComputeNumericNormalization(t *testing.T) {
	a := MustCompute([]Arg{{Name: "n", Value: 3}}, "v")
	b := MustCompute([]Arg{{Name: "n", Value: 3.0}}, "v")
	c := MustCompute([]Arg{{Name: "n", Value: uint8(3)}}, "v")
	d := MustCompute([]Arg{{Name: "n", Value: "3"}}, "v")

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	assert.NotEqual(t, a.Args, d.Args, "string and number must not collide")
}

func TestComputeTypedContainers(t *testing.T) {
	a := MustCompute([]Arg{{Name: "tags", Value: []string{"a", "b"}}}, "v")
	b := MustCompute([]Arg{{Name: "tags", Value: []any{"a", "b"}}}, "v")
	assert.Equal(t, a, b)

	m1 := MustCompute([]Arg{{Name: "opts", Value: map[string]int{"z": 1, "a": 2}}}, "v")
	m2 := MustCompute([]Arg{{Name: "opts", Value: map[string]any{"a": 2, "z": 1}}}, "v")
	assert.Equal(t, m1, m2)
}

type jobKey struct {
	id int
}

func (k jobKey) CanonicalValue() any { return map[string]any{"id": k.id} }

func TestComputeCanonicalizer(t *testing.T) {
	a := MustCompute([]Arg{{Name: "self", Value: jobKey{id: 1}}}, "v")
	b := MustCompute([]Arg{{Name: "self", Value: map[string]any{"id": 1}}}, "v")
	c := MustCompute([]Arg{{Name: "self", Value: jobKey{id: 2}}}, "v")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestComputeNilPointerArgs(t *testing.T) {
	var when *time.Time
	var key *jobKey

	var fp Fingerprint
	require.NotPanics(t, func() {
		fp = MustCompute([]Arg{{Name: "when", Value: when}, {Name: "key", Value: key}}, "v")
	})
	assert.Equal(t, MustCompute([]Arg{{Name: "when", Value: nil}, {Name: "key", Value: nil}}, "v"), fp)
}

func TestComputeBytesDoNotCollideWithHex(t *testing.T) {
	raw := MustCompute([]Arg{{Name: "blob", Value: []byte("ab")}}, "v")
	hexed := MustCompute([]Arg{{Name: "blob", Value: "6162"}}, "v")

	assert.NotEqual(t, raw.Args, hexed.Args)
}

func TestComputeErrors(t *testing.T) {
	_, err := Compute([]Arg{{Name: "", Value: 1}}, "v")
	assert.Error(t, err)

	_, err = Compute([]Arg{{Name: "s", Value: struct{ A int }{1}}}, "v")
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = Compute([]Arg{{Name: "f", Value: math.NaN()}}, "v")
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = Compute(nil, map[int]string{1: "a"})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestPayloadFormat(t *testing.T) {
	fp := Fingerprint{Args: 1, Code: 1}
	assert.Equal(t, "1\n1", string(fp.Payload()))

	max := Fingerprint{Args: math.MaxUint64, Code: 0}
	assert.Equal(t, "18446744073709551615\n0", string(max.Payload()))
}

func TestPayloadRoundTrip(t *testing.T) {
	fp := MustCompute([]Arg{{Name: "id", Value: 42}}, "v3")

	parsed, err := ParsePayload(fp.Payload())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)

	parsed, err = ParsePayload(append(fp.Payload(), '\n'))
	require.NoError(t, err)
	assert.Equal(t, fp, parsed, "trailing newline is tolerated")
}

func TestParsePayloadErrors(t *testing.T) {
	for _, input := range []string{"", "1", "1\n2\n3", "a\n1", "1\n-1"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePayload([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestFileVersion(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.sh")
	b := filepath.Join(dir, "b.sh")
	require.NoError(t, os.WriteFile(a, []byte("echo hi\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("echo hi\n"), 0o644))

	va, err := FileVersion(a)
	require.NoError(t, err)
	vb, err := FileVersion(b)
	require.NoError(t, err)
	assert.Equal(t, va, vb, "only content contributes")
	assert.Contains(t, va, "sha256:")

	require.NoError(t, os.WriteFile(b, []byte("echo bye\n"), 0o644))
	vb, err = FileVersion(b)
	require.NoError(t, err)
	assert.NotEqual(t, va, vb)

	both, err := FileVersion(a, b)
	require.NoError(t, err)
	assert.NotEqual(t, va, both)

	_, err = FileVersion(filepath.Join(dir, "missing.sh"))
	assert.Error(t, err)

	_, err = FileVersion()
	assert.Error(t, err)
}
