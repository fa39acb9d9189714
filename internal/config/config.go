// Package config loads the localvcs command's configuration file.
//
// The file is YAML. Its path comes from the --config flag or, failing that,
// the LOCALVCS_CONFIG environment variable. Without either, defaults are
// used. Flags given on the command line override file values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meigma/localvcs"
	"github.com/meigma/localvcs/paths"
	"github.com/meigma/localvcs/store/disk"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "LOCALVCS_CONFIG"

// Config is the command configuration.
type Config struct {
	// Dir is the repository directory.
	Dir string `yaml:"dir"`

	// CaseMode is "sensitive" or "insensitive". Empty means the platform
	// default for new repositories and the recorded mode for existing ones.
	CaseMode string `yaml:"case_mode"`

	// Compression is the object store codec: "zstd", "lz4" or "none".
	Compression string `yaml:"compression"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// VerifyConcurrency bounds parallel reads during verify.
	VerifyConcurrency int `yaml:"verify_concurrency"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Dir:               ".localvcs",
		Compression:       "zstd",
		LogLevel:          "warn",
		VerifyConcurrency: localvcs.DefaultVerifyConcurrency,
	}
}

// Load reads the file named by LOCALVCS_CONFIG, or returns the defaults if
// the variable is unset.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvVar))
}

// LoadFile reads the file at path over the defaults. An empty path returns
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Dir = os.ExpandEnv(cfg.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every field holds a known value.
func (c *Config) Validate() error {
	var errs []error
	if c.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}
	if c.CaseMode != "" {
		if _, ok := paths.ParseCaseMode(c.CaseMode); !ok {
			errs = append(errs, fmt.Errorf("unknown case_mode %q", c.CaseMode))
		}
	}
	if _, err := disk.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.VerifyConcurrency < 0 {
		errs = append(errs, fmt.Errorf("verify_concurrency must not be negative, got %d", c.VerifyConcurrency))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return level
}

// ParseLevel parses a log level name. Empty means warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
}

// RepositoryOptions translates the configuration into repository options.
// When init is true and no case mode is configured, the platform default
// is used so a new repository records it.
func (c *Config) RepositoryOptions(logger *slog.Logger, init bool) ([]localvcs.Option, error) {
	comp, err := disk.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	opts := []localvcs.Option{
		localvcs.WithLogger(logger),
		localvcs.WithCompression(comp),
		localvcs.WithVerifyConcurrency(c.VerifyConcurrency),
	}

	switch {
	case c.CaseMode != "":
		mode, ok := paths.ParseCaseMode(c.CaseMode)
		if !ok {
			return nil, fmt.Errorf("unknown case_mode %q", c.CaseMode)
		}
		opts = append(opts, localvcs.WithCaseMode(mode))
	case init:
		opts = append(opts, localvcs.WithCaseMode(paths.CaseModeForOS(runtime.GOOS)))
	}
	return opts, nil
}
