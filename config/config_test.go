package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_MissingDatabaseURL(t *testing.T) {
	_, err := FromEnv(envMap(nil))
	require.ErrorIs(t, err, ErrMissingDatabaseURL)

	_, err = FromEnv(envMap(map[string]string{EnvDatabaseURL: "   "}))
	require.ErrorIs(t, err, ErrMissingDatabaseURL)
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{EnvDatabaseURL: "postgresql://u:p@localhost:5432/trading"}))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/trading", cfg.DatabaseURL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		EnvDatabaseURL:    "postgres://localhost/trading",
		EnvLogLevel:       "debug",
		EnvLogFormat:      "JSON",
		EnvOTLPEndpoint:   "collector:4318",
		EnvConnectTimeout: "5s",
	}))
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "collector:4318", cfg.OTLPEndpoint)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	base := map[string]string{EnvDatabaseURL: "postgres://localhost/trading"}
	for key, val := range map[string]string{
		EnvLogLevel:       "loud",
		EnvLogFormat:      "xml",
		EnvConnectTimeout: "-1s",
	} {
		env := map[string]string{}
		for k, v := range base {
			env[k] = v
		}
		env[key] = val
		_, err := FromEnv(envMap(env))
		assert.Error(t, err, "%s=%s should be rejected", key, val)
	}
}

func TestNormalizeDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u@db/trading", "postgres://u@db/trading"},
		{"postgresql://u@db/trading", "postgres://u@db/trading"},
		{"postgresql+psycopg://u:pw@db:5433/trading?sslmode=disable", "postgres://u:pw@db:5433/trading?sslmode=disable"},
		{"postgresql+asyncpg://u@db/trading", "postgres://u@db/trading"},
		{"postgresql+psycopg2://u@db/trading", "postgres://u@db/trading"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDatabaseURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDatabaseURL_Rejects(t *testing.T) {
	for _, in := range []string{"localhost/trading", "mysql://u@db/trading", "postgres://u@db:notaport/trading"} {
		_, err := NormalizeDatabaseURL(in)
		assert.True(t, errors.Is(err, ErrInvalidDatabaseURL), "%s: got %v", in, err)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL=postgresql+psycopg://file@db/trading\nLOG_FORMAT=json\n"), 0o600))

	t.Setenv(EnvDatabaseURL, "")
	require.NoError(t, os.Unsetenv(EnvDatabaseURL))
	t.Setenv(EnvLogFormat, "text")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file@db/trading", cfg.DatabaseURL)
	assert.Equal(t, "text", cfg.LogFormat, "variables already set win over the file")
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://env@db/trading")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env@db/trading", cfg.DatabaseURL)
}

func TestConfig_Logger(t *testing.T) {
	var sb strings.Builder
	cfg := &Config{LogLevel: slog.LevelWarn, LogFormat: "json"}
	log := cfg.Logger(&sb)
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	out := sb.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}
