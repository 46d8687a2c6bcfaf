// Package config loads storage configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Backend driver identifiers accepted by the provider factory.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverGitHub   = "github"
)

// Config holds the storage layer configuration.
// Environment variables are parsed from the DEVLOG_ prefix,
// e.g. DEVLOG_STORAGE_DRIVER, DEVLOG_POSTGRES_DSN.
type Config struct {
	// StorageDriver selects the backend: sqlite, postgres, or github.
	// "auto" derives sqlite with a conventional local path.
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"auto"`

	// SQLite configuration
	SQLitePath string `envconfig:"SQLITE_PATH" default:""`

	// Postgres configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// GitHub configuration
	GitHubOwner   string `envconfig:"GITHUB_OWNER" default:""`
	GitHubRepo    string `envconfig:"GITHUB_REPO" default:""`
	GitHubToken   string `envconfig:"GITHUB_TOKEN" default:""`
	GitHubBaseURL string `envconfig:"GITHUB_BASE_URL" default:"https://api.github.com"`

	// Remote request bounds
	RequestTimeoutSeconds int `envconfig:"REQUEST_TIMEOUT_SECONDS" default:"30"`
	MaxRetries            int `envconfig:"MAX_RETRIES" default:"3"`
	CacheTTLSeconds       int `envconfig:"CACHE_TTL_SECONDS" default:"60"`
}

// ResolveDefaults validates the driver choice and derives the embedded
// database path when unset.
func (c *Config) ResolveDefaults() error {
	if c.StorageDriver == "" || c.StorageDriver == "auto" {
		c.StorageDriver = DriverSQLite
	}

	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			c.SQLitePath = filepath.Join(home, ".devlog", "devlog.db")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres driver requires DEVLOG_POSTGRES_DSN")
		}
	case DriverGitHub:
		if c.GitHubOwner == "" || c.GitHubRepo == "" || c.GitHubToken == "" {
			return fmt.Errorf("github driver requires DEVLOG_GITHUB_OWNER, DEVLOG_GITHUB_REPO and DEVLOG_GITHUB_TOKEN")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER: %s", c.StorageDriver)
	}
	return nil
}

// New creates a Config by parsing DEVLOG_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("DEVLOG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("storage_driver", cfg.StorageDriver).
		Str("sqlite_path", cfg.SQLitePath).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Str("github_repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo).
		Msg("configuration loaded")

	return &cfg, nil
}
