// Package factory constructs the storage provider selected by configuration.
package factory

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/devloghq/devlog/internal/config"
	"github.com/devloghq/devlog/internal/storage"
	ghstore "github.com/devloghq/devlog/internal/storage/github"
	pgstore "github.com/devloghq/devlog/internal/storage/postgres"
	sqlitestore "github.com/devloghq/devlog/internal/storage/sqlite"
)

// NewProvider maps the resolved driver to its backend. The returned provider
// is not yet initialized; callers run Initialize once and Cleanup on shutdown.
func NewProvider(cfg *config.Config, log zerolog.Logger) (storage.Provider, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite driver requires a database path")
		}
		return sqlitestore.New(cfg.SQLitePath, log), nil

	case config.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires DEVLOG_POSTGRES_DSN")
		}
		return pgstore.New(cfg.PostgresDSN, log), nil

	case config.DriverGitHub:
		if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" || cfg.GitHubToken == "" {
			return nil, fmt.Errorf("github driver requires owner, repo and token")
		}
		return ghstore.New(ghstore.Options{
			Owner:      cfg.GitHubOwner,
			Repo:       cfg.GitHubRepo,
			Token:      cfg.GitHubToken,
			BaseURL:    cfg.GitHubBaseURL,
			Timeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
			MaxRetries: cfg.MaxRetries,
			CacheTTL:   time.Duration(cfg.CacheTTLSeconds) * time.Second,
		}, log), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}
