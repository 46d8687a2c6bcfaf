package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devloghq/devlog/internal/storage"
	"github.com/devloghq/devlog/internal/storage/providertest"
)

func makePGStore(t *testing.T) storage.Provider {
	t.Helper()
	dsn := os.Getenv("DEVLOG_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DEVLOG_POSTGRES_DSN not set; skipping postgres provider integration test")
	}
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	// Isolate each run in its own schema so the suite starts empty. One
	// pooled connection keeps the per-session search_path in effect.
	db.SetMaxOpenConns(1)
	schema := fmt.Sprintf("devlog_test_%d", time.Now().UnixNano())
	if _, err := db.Exec("CREATE SCHEMA " + schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.Exec("SET search_path TO " + schema); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec("DROP SCHEMA " + schema + " CASCADE")
		_ = db.Close()
	})

	s := NewWithDB(db, zerolog.Nop())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return s
}

func TestPostgresProvider_Compliance(t *testing.T) {
	providertest.Run(t, makePGStore)
}

func TestPostgresSupportsWatch(t *testing.T) {
	s := makePGStore(t)
	if !s.SupportsWatch() {
		t.Fatal("postgres provider must report watch support")
	}
}
