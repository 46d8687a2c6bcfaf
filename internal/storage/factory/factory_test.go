package factory

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloghq/devlog/internal/config"
	ghstore "github.com/devloghq/devlog/internal/storage/github"
	pgstore "github.com/devloghq/devlog/internal/storage/postgres"
	sqlitestore "github.com/devloghq/devlog/internal/storage/sqlite"
)

func TestNewProviderSelectsDriver(t *testing.T) {
	log := zerolog.Nop()

	p, err := NewProvider(&config.Config{StorageDriver: config.DriverSQLite, SQLitePath: ":memory:"}, log)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestore.Store{}, p)

	p, err = NewProvider(&config.Config{StorageDriver: config.DriverPostgres, PostgresDSN: "postgres://x/y"}, log)
	require.NoError(t, err)
	assert.IsType(t, &pgstore.Store{}, p)

	p, err = NewProvider(&config.Config{
		StorageDriver: config.DriverGitHub,
		GitHubOwner:   "acme", GitHubRepo: "devlog", GitHubToken: "tok",
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &ghstore.Store{}, p)
}

func TestNewProviderRejectsIncompleteConfig(t *testing.T) {
	log := zerolog.Nop()

	_, err := NewProvider(&config.Config{StorageDriver: config.DriverSQLite}, log)
	assert.Error(t, err)

	_, err = NewProvider(&config.Config{StorageDriver: config.DriverPostgres}, log)
	assert.Error(t, err)

	_, err = NewProvider(&config.Config{StorageDriver: config.DriverGitHub, GitHubOwner: "acme"}, log)
	assert.Error(t, err)

	_, err = NewProvider(&config.Config{StorageDriver: "tape"}, log)
	assert.Error(t, err)
}
