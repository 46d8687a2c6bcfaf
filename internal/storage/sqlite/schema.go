package sqlite

import "database/sql"

// schemaVersion gates future migrations; stored in schema_version.
const schemaVersion = 1

// EnsureSchema creates all tables, the full-text index, and the triggers
// that keep the index in sync with the base tables. SQLite has no native
// ranked search over regular tables, so entries are mirrored into an FTS5
// virtual table on insert/update/delete.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
            version INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS projects (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL UNIQUE,
            description TEXT,
            settings TEXT,
            created_at TIMESTAMP NOT NULL,
            last_accessed_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS entries (
            id INTEGER PRIMARY KEY,
            key TEXT NOT NULL,
            project_id TEXT NOT NULL,
            title TEXT NOT NULL,
            type TEXT NOT NULL,
            description TEXT,
            status TEXT NOT NULL,
            priority TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            closed_at TIMESTAMP,
            archived INTEGER NOT NULL DEFAULT 0,
            assignee TEXT,
            files TEXT,
            related TEXT,
            context TEXT,
            ai_context TEXT,
            external_refs TEXT,
            UNIQUE(project_id, key)
        );`,
		`CREATE INDEX IF NOT EXISTS entries_project_idx ON entries(project_id, updated_at);`,
		`CREATE TABLE IF NOT EXISTS notes (
            id TEXT PRIMARY KEY,
            entry_id INTEGER NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
            category TEXT NOT NULL,
            content TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS notes_entry_idx ON notes(entry_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL,
            agent TEXT,
            title TEXT,
            started_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            message_count INTEGER NOT NULL DEFAULT 0,
            archived INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
            role TEXT NOT NULL,
            content TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages(session_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_entry_links (
            session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
            entry_id INTEGER NOT NULL,
            confidence REAL NOT NULL DEFAULT 0,
            reason TEXT,
            confirmed INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL,
            PRIMARY KEY(session_id, entry_id)
        );`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
            key, title, description, notes
        );`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_insert AFTER INSERT ON entries BEGIN
            INSERT INTO entries_fts(rowid, key, title, description, notes)
            VALUES (new.id, new.key, new.title, COALESCE(new.description, ''), '');
        END;`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_update AFTER UPDATE ON entries BEGIN
            UPDATE entries_fts
            SET key = new.key, title = new.title, description = COALESCE(new.description, '')
            WHERE rowid = new.id;
        END;`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_delete AFTER DELETE ON entries BEGIN
            DELETE FROM entries_fts WHERE rowid = old.id;
        END;`,
		`CREATE TRIGGER IF NOT EXISTS notes_fts_insert AFTER INSERT ON notes BEGIN
            UPDATE entries_fts SET notes = notes || ' ' || new.content WHERE rowid = new.entry_id;
        END;`,
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
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return err
		}
	}
	return nil
}
