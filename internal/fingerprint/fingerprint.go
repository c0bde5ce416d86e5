package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
)

// Domain prefixes keep the argument and code hashes in separate spaces.
// The version suffix allows a future change of encoding.
const (
	DomainArgs = "skipif/args/v1"
	DomainCode = "skipif/code/v1"
)

// Fingerprint identifies one logical invocation.
type Fingerprint struct {
	Args uint64 `json:"args_hash"`
	Code uint64 `json:"code_hash"`
}

// Arg is one named call argument. The receiver of a method, if it is part of
// the identity, is passed as an ordinary Arg (conventionally named "self").
type Arg struct {
	Name  string
	Value any
}

// String formats the fingerprint as "<args>/<code>" in decimal.
func (f Fingerprint) String() string {
	return strconv.FormatUint(f.Args, 10) + "/" + strconv.FormatUint(f.Code, 10)
}

// Payload is the marker file content: both hashes in decimal separated by a
// single newline, with no trailing newline.
func (f Fingerprint) Payload() []byte {
	return []byte(strconv.FormatUint(f.Args, 10) + "\n" + strconv.FormatUint(f.Code, 10))
}

// ParsePayload is the inverse of Payload. Surrounding whitespace is ignored.
func ParsePayload(data []byte) (Fingerprint, error) {
	lines := bytes.Split(bytes.TrimSpace(data), []byte{'\n'})
	if len(lines) != 2 {
		return Fingerprint{}, fmt.Errorf("parse payload: expected 2 lines, got %d", len(lines))
	}
	args, err := strconv.ParseUint(string(bytes.TrimSpace(lines[0])), 10, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse payload: args hash: %w", err)
	}
	code, err := strconv.ParseUint(string(bytes.TrimSpace(lines[1])), 10, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse payload: code hash: %w", err)
	}
	return Fingerprint{Args: args, Code: code}, nil
}

// Compute hashes args in the given order, skipping any whose name is in
// excluded, and hashes codeVersion separately.
func Compute(args []Arg, codeVersion any, excluded ...string) (Fingerprint, error) {
	argsHash, err := HashArgs(args, excluded...)
	if err != nil {
		return Fingerprint{}, err
	}
	codeHash, err := HashCode(codeVersion)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Args: argsHash, Code: codeHash}, nil
}

// MustCompute is like Compute but panics on error.
// Use only in tests or when the argument types are known to be supported.
func MustCompute(args []Arg, codeVersion any, excluded ...string) Fingerprint {
	fp, err := Compute(args, codeVersion, excluded...)
	if err != nil {
		panic(err)
	}
	return fp
}

// HashArgs folds every non-excluded argument into one hash. Each argument
// contributes its name and value, so reordering arguments changes the hash.
func HashArgs(args []Arg, excluded ...string) (uint64, error) {
	skip := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		skip[name] = struct{}{}
	}

	pairs := make([]any, 0, len(args))
	for i, a := range args {
		if a.Name == "" {
			return 0, fmt.Errorf("hash args: argument %d has no name", i)
		}
		if _, ok := skip[a.Name]; ok {
			continue
		}
		pairs = append(pairs, []any{a.Name, a.Value})
	}

	canonical, err := MarshalCanonical(pairs)
	if err != nil {
		return 0, fmt.Errorf("hash args: %w", err)
	}
	return hashWithDomain(DomainArgs, canonical), nil
}

// HashCode hashes the caller-supplied code version token.
func HashCode(codeVersion any) (uint64, error) {
	canonical, err := MarshalCanonical(codeVersion)
	if err != nil {
		return 0, fmt.Errorf("hash code version: %w", err)
	}
	return hashWithDomain(DomainCode, canonical), nil
}

// hashWithDomain computes SHA256(domain + 0x00 + data) and keeps the first
// eight bytes, big-endian.
func hashWithDomain(domain string, data []byte) uint64 {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}
