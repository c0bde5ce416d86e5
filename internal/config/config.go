// Package config loads the optional .skipif.yaml file.
//
// A missing default file yields Default(). Command-line flags override file
// values only when they are set explicitly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".skipif.yaml"

// Environment overrides.
const (
	EnvConfig   = "SKIPIF_CONFIG"
	EnvLogLevel = "SKIPIF_LOG"
)

// Marker backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the file-level configuration.
type Config struct {
	LogLevel  string  `yaml:"log_level"`
	HistoryDB string  `yaml:"history_db"`
	Lock      bool    `yaml:"lock"`
	Markers   Markers `yaml:"markers"`
	Retry     Retry   `yaml:"retry"`
	Jobs      int     `yaml:"jobs"`
}

// Markers holds the default Markers strategy options.
type Markers struct {
	Success  bool   `yaml:"success"`
	Failure  bool   `yaml:"failure"`
	Hashes   bool   `yaml:"hashes"`
	Folder   bool   `yaml:"folder"`
	Backend  string `yaml:"backend"`
	LedgerDB string `yaml:"ledger_db"`
}

// Retry holds the default transient-failure policy for commands.
type Retry struct {
	ExitCodes []int         `yaml:"exit_codes"`
	Attempts  uint64        `yaml:"attempts"`
	Backoff   time.Duration `yaml:"backoff"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		LogLevel: "info",
		Markers: Markers{
			Success:  true,
			Failure:  true,
			Hashes:   true,
			Backend:  BackendFile,
			LedgerDB: ".skipif/ledger.db",
		},
		Retry: Retry{
			Backoff: 500 * time.Millisecond,
		},
		Jobs: 1,
	}
}

// Load reads the config at path. An empty path means $SKIPIF_CONFIG, then
// DefaultPath; only an explicitly named file must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if lvl := getenv(EnvLogLevel); lvl != "" {
		c.LogLevel = lvl
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{BackendFile, BackendSQLite}, c.Markers.Backend) {
		errs = append(errs, fmt.Errorf("markers.backend %q: must be one of [%s %s]", c.Markers.Backend, BackendFile, BackendSQLite))
	}
	if c.Markers.Backend == BackendSQLite && c.Markers.LedgerDB == "" {
		errs = append(errs, errors.New("markers.ledger_db is required with the sqlite backend"))
	}
	if c.Jobs < 1 {
		errs = append(errs, fmt.Errorf("jobs must be at least 1, got %d", c.Jobs))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, fmt.Errorf("retry.backoff must not be negative, got %s", c.Retry.Backoff))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level. Invalid levels were rejected by
// Validate, so this falls back to Info only for unvalidated configs.
func (c Config) Level() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel accepts debug, info, warn or error, in any case.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level %q: must be one of [debug info warn error]", s)
	}
	return lvl, nil
}
