package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devloghq/devlog/internal/model"
)

type chat struct{ s *Store }

func (c chat) SaveSession(ctx context.Context, in *model.ChatSession) (*model.ChatSession, error) {
	if in == nil || in.ProjectID == "" {
		return nil, fmt.Errorf("sqlite: session project required: %w", model.ErrValidation)
	}
	cp := *in
	now := time.Now().UTC()
	if cp.ID == "" {
		cp.ID = uuid.New().String()
		cp.StartedAt = now
	}
	cp.UpdatedAt = now

	_, err := c.s.db.ExecContext(ctx, `INSERT INTO chat_sessions
        (id, project_id, agent, title, started_at, updated_at, message_count, archived)
        VALUES (?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            agent = excluded.agent, title = excluded.title,
            updated_at = excluded.updated_at, archived = excluded.archived`,
		cp.ID, cp.ProjectID, cp.Agent, cp.Title, cp.StartedAt, cp.UpdatedAt,
		cp.MessageCount, boolToInt(cp.Archived))
	if err != nil {
		return nil, fmt.Errorf("sqlite: save session: %w", err)
	}
	return &cp, nil
}

func (c chat) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	row := c.s.db.QueryRowContext(ctx, `SELECT id, project_id, agent, title, started_at, updated_at, message_count, archived
        FROM chat_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}
	return s, nil
}

func (c chat) ListSessions(ctx context.Context, projectID string) ([]*model.ChatSession, error) {
	rows, err := c.s.db.QueryContext(ctx, `SELECT id, project_id, agent, title, started_at, updated_at, message_count, archived
        FROM chat_sessions WHERE project_id = ? ORDER BY updated_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()
	var out []*model.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c chat) DeleteSession(ctx context.Context, id string) error {
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_entry_links WHERE session_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: session %s: %w", id, model.ErrNotFound)
	}
	return tx.Commit()
}

// AppendMessage inserts the message and bumps the session's cached count.
func (c chat) AppendMessage(ctx context.Context, in *model.ChatMessage) (*model.ChatMessage, error) {
	if in == nil || in.SessionID == "" {
		return nil, fmt.Errorf("sqlite: message session required: %w", model.ErrValidation)
	}
	cp := *in
	now := time.Now().UTC()
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = now
	}

	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET message_count = message_count + 1, updated_at = ? WHERE id = ?`,
		now, cp.SessionID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("sqlite: session %s: %w", cp.SessionID, model.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_messages (id, session_id, role, content, created_at)
        VALUES (?,?,?,?,?)`, cp.ID, cp.SessionID, cp.Role, cp.Content, cp.Timestamp); err != nil {
		return nil, fmt.Errorf("sqlite: insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (c chat) ListMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	rows, err := c.s.db.QueryContext(ctx, `SELECT id, session_id, role, content, created_at
        FROM chat_messages WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages: %w", err)
	}
	defer rows.Close()
	var out []*model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (c chat) SearchMessages(ctx context.Context, projectID, query string) ([]*model.ChatMessage, error) {
	rows, err := c.s.db.QueryContext(ctx, `SELECT m.id, m.session_id, m.role, m.content, m.created_at
        FROM chat_messages m JOIN chat_sessions s ON s.id = m.session_id
        WHERE s.project_id = ? AND m.content LIKE ?
        ORDER BY m.created_at DESC`, projectID, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("sqlite: search messages: %w", err)
	}
	defer rows.Close()
	var out []*model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (c chat) LinkEntry(ctx context.Context, l *model.ChatEntryLink) error {
	if l == nil || l.SessionID == "" || l.EntryID == 0 {
		return fmt.Errorf("sqlite: link requires session and entry: %w", model.ErrValidation)
	}
	created := l.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := c.s.db.ExecContext(ctx, `INSERT INTO chat_entry_links
        (session_id, entry_id, confidence, reason, confirmed, created_at)
        VALUES (?,?,?,?,?,?)
        ON CONFLICT(session_id, entry_id) DO UPDATE SET
            confidence = excluded.confidence, reason = excluded.reason,
            confirmed = excluded.confirmed`,
		l.SessionID, l.EntryID, l.Confidence, l.Reason, boolToInt(l.Confirmed), created)
	if err != nil {
		return fmt.Errorf("sqlite: link entry: %w", err)
	}
	return nil
}

func (c chat) Links(ctx context.Context, sessionID string) ([]*model.ChatEntryLink, error) {
	rows, err := c.s.db.QueryContext(ctx, `SELECT session_id, entry_id, confidence, reason, confirmed, created_at
        FROM chat_entry_links WHERE session_id = ? ORDER BY confidence DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list links: %w", err)
	}
	defer rows.Close()
	var out []*model.ChatEntryLink
	for rows.Next() {
		var l model.ChatEntryLink
		var reason sql.NullString
		var confirmed int
		if err := rows.Scan(&l.SessionID, &l.EntryID, &l.Confidence, &reason, &confirmed, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Reason = reason.String
		l.Confirmed = confirmed != 0
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (c chat) ConfirmLink(ctx context.Context, sessionID string, entryID int64) error {
	res, err := c.s.db.ExecContext(ctx, `UPDATE chat_entry_links SET confirmed = 1 WHERE session_id = ? AND entry_id = ?`,
		sessionID, entryID)
	if err != nil {
		return fmt.Errorf("sqlite: confirm link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: link %s/%d: %w", sessionID, entryID, model.ErrNotFound)
	}
	return nil
}

func (c chat) UnlinkEntry(ctx context.Context, sessionID string, entryID int64) error {
	res, err := c.s.db.ExecContext(ctx, `DELETE FROM chat_entry_links WHERE session_id = ? AND entry_id = ?`,
		sessionID, entryID)
	if err != nil {
		return fmt.Errorf("sqlite: unlink entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: link %s/%d: %w", sessionID, entryID, model.ErrNotFound)
	}
	return nil
}

func scanSession(row rowScanner) (*model.ChatSession, error) {
	var s model.ChatSession
	var agent, title sql.NullString
	var archived int
	if err := row.Scan(&s.ID, &s.ProjectID, &agent, &title, &s.StartedAt, &s.UpdatedAt, &s.MessageCount, &archived); err != nil {
		return nil, err
	}
	s.Agent = agent.String
	s.Title = title.String
	s.Archived = archived != 0
	return &s, nil
}
