package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("DEVLOG_STORAGE_DRIVER", "postgres")
	t.Setenv("DEVLOG_POSTGRES_DSN", "postgres://localhost/devlog")
	t.Setenv("DEVLOG_MAX_RETRIES", "5")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, "postgres://localhost/devlog", cfg.PostgresDSN)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30, cfg.RequestTimeoutSeconds, "unset values keep their defaults")
}

func TestResolveDefaultsAutoSelectsSQLite(t *testing.T) {
	cfg := &Config{StorageDriver: "auto"}
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.NotEmpty(t, cfg.SQLitePath, "auto derives the conventional local path")
	assert.Contains(t, cfg.SQLitePath, ".devlog")
}

func TestResolveDefaultsKeepsExplicitSQLitePath(t *testing.T) {
	cfg := &Config{StorageDriver: DriverSQLite, SQLitePath: "/tmp/custom.db"}
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, "/tmp/custom.db", cfg.SQLitePath)
}

func TestResolveDefaultsPostgresRequiresDSN(t *testing.T) {
	cfg := &Config{StorageDriver: DriverPostgres}
	err := cfg.ResolveDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVLOG_POSTGRES_DSN")
}

func TestResolveDefaultsGitHubRequiresRepoAndToken(t *testing.T) {
	cfg := &Config{StorageDriver: DriverGitHub, GitHubOwner: "acme"}
	require.Error(t, cfg.ResolveDefaults())

	cfg = &Config{
		StorageDriver: DriverGitHub,
		GitHubOwner:   "acme",
		GitHubRepo:    "devlog",
		GitHubToken:   "tok",
	}
	require.NoError(t, cfg.ResolveDefaults())
}

func TestResolveDefaultsRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{StorageDriver: "mongodb"}
	err := cfg.ResolveDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongodb")
}
