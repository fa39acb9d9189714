package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "localvcs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ".localvcs", cfg.Dir)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestLoadFileEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
dir: /var/lib/localvcs
case_mode: insensitive
compression: lz4
log_level: debug
verify_concurrency: 3
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Dir:               "/var/lib/localvcs",
		CaseMode:          "insensitive",
		Compression:       "lz4",
		LogLevel:          "debug",
		VerifyConcurrency: 3,
	}, cfg)
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	opts, err := cfg.RepositoryOptions(slog.New(slog.DiscardHandler), false)
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile(writeConfig(t, "log_level: info\n"))
	require.NoError(t, err)
	assert.Equal(t, ".localvcs", cfg.Dir)
	assert.Equal(t, "zstd", cfg.Compression)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadFileExpandsEnvironment(t *testing.T) {
	t.Setenv("LOCALVCS_TEST_ROOT", "/srv/data")

	cfg, err := LoadFile(writeConfig(t, "dir: ${LOCALVCS_TEST_ROOT}/repo\n"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/data/repo", cfg.Dir)
}

func TestLoadReadsEnvVar(t *testing.T) {
	t.Setenv(EnvVar, writeConfig(t, "dir: from-env\n"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Dir)
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "dir: [", "parse config"},
		{"empty dir", "dir: \"\"\n", "dir is required"},
		{"case mode", "case_mode: sideways\n", "unknown case_mode"},
		{"compression", "compression: brotli\n", "unknown compression"},
		{"log level", "log_level: loud\n", "unknown log_level"},
		{"concurrency", "verify_concurrency: -1\n", "verify_concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRepositoryOptionsPicksPlatformModeOnInit(t *testing.T) {
	t.Parallel()

	cfg := Default()
	logger := slog.New(slog.DiscardHandler)

	opts, err := cfg.RepositoryOptions(logger, false)
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	opts, err = cfg.RepositoryOptions(logger, true)
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}
