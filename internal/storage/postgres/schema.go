package postgres

import "database/sql"

// EnsureSchema creates all tables and the entry id sequence if they do not
// exist. Deployments that manage migrations externally can run this safely;
// every statement is idempotent.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
            version INTEGER NOT NULL
        );`,
		`CREATE SEQUENCE IF NOT EXISTS entries_id_seq;`,
		`CREATE TABLE IF NOT EXISTS projects (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL UNIQUE,
            description TEXT,
            settings JSONB,
            created_at TIMESTAMPTZ NOT NULL,
            last_accessed_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS entries (
            id BIGINT PRIMARY KEY,
            key TEXT NOT NULL,
            project_id TEXT NOT NULL,
            title TEXT NOT NULL,
            type TEXT NOT NULL,
            description TEXT,
            status TEXT NOT NULL,
            priority TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            closed_at TIMESTAMPTZ,
            archived BOOLEAN NOT NULL DEFAULT FALSE,
            assignee TEXT,
            files JSONB,
            related JSONB,
            context JSONB,
            ai_context JSONB,
            external_refs JSONB,
            UNIQUE(project_id, key)
        );`,
		`CREATE INDEX IF NOT EXISTS entries_project_idx ON entries(project_id, updated_at);`,
		`CREATE TABLE IF NOT EXISTS notes (
            id TEXT PRIMARY KEY,
            entry_id BIGINT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
            category TEXT NOT NULL,
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS notes_entry_idx ON notes(entry_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL,
            agent TEXT,
            title TEXT,
            started_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            message_count INTEGER NOT NULL DEFAULT 0,
            archived BOOLEAN NOT NULL DEFAULT FALSE
        );`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
            role TEXT NOT NULL,
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages(session_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_entry_links (
            session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
            entry_id BIGINT NOT NULL,
            confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
            reason TEXT,
            confirmed BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY(session_id, entry_id)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (1)`); err != nil {
			return err
		}
	}
	return nil
}
