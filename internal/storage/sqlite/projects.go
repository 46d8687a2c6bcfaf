package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devloghq/devlog/internal/model"
)

type projects struct{ s *Store }

func (p projects) Create(ctx context.Context, in *model.Project) (*model.Project, error) {
	if in == nil || in.Name == "" {
		return nil, fmt.Errorf("sqlite: project name required: %w", model.ErrValidation)
	}
	cp := *in
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.LastAccessedAt = now

	_, err := p.s.db.ExecContext(ctx, `INSERT INTO projects
        (id, name, description, settings, created_at, last_accessed_at)
        VALUES (?,?,?,?,?,?)`,
		cp.ID, cp.Name, cp.Description, jsonOrNil(cp.Settings), cp.CreatedAt, cp.LastAccessedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("sqlite: project %q exists: %w", cp.Name, model.ErrConflict)
		}
		return nil, fmt.Errorf("sqlite: create project: %w", err)
	}
	return &cp, nil
}

func (p projects) Get(ctx context.Context, id string) (*model.Project, error) {
	return p.getWhere(ctx, "id = ?", id)
}

func (p projects) GetByName(ctx context.Context, name string) (*model.Project, error) {
	return p.getWhere(ctx, "name = ?", name)
}

func (p projects) getWhere(ctx context.Context, cond string, arg any) (*model.Project, error) {
	row := p.s.db.QueryRowContext(ctx, `SELECT id, name, description, settings, created_at, last_accessed_at
        FROM projects WHERE `+cond, arg)
	var out model.Project
	var desc, settings sql.NullString
	err := row.Scan(&out.ID, &out.Name, &desc, &settings, &out.CreatedAt, &out.LastAccessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get project: %w", err)
	}
	out.Description = desc.String
	unmarshalIfSet(settings, &out.Settings)

	// read-through access touches lastAccessedAt
	now := time.Now().UTC()
	if _, err := p.s.db.ExecContext(ctx, `UPDATE projects SET last_accessed_at = ? WHERE id = ?`, now, out.ID); err == nil {
		out.LastAccessedAt = now
	}
	return &out, nil
}

func (p projects) List(ctx context.Context) ([]*model.Project, error) {
	rows, err := p.s.db.QueryContext(ctx, `SELECT id, name, description, settings, created_at, last_accessed_at
        FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list projects: %w", err)
	}
	defer rows.Close()
	var out []*model.Project
	for rows.Next() {
		var pr model.Project
		var desc, settings sql.NullString
		if err := rows.Scan(&pr.ID, &pr.Name, &desc, &settings, &pr.CreatedAt, &pr.LastAccessedAt); err != nil {
			return nil, err
		}
		pr.Description = desc.String
		unmarshalIfSet(settings, &pr.Settings)
		out = append(out, &pr)
	}
	return out, rows.Err()
}

// Delete removes the project and cascades to its entries, notes and chat
// records in one transaction.
func (p projects) Delete(ctx context.Context, id string) error {
	tx, err := p.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE entry_id IN (SELECT id FROM entries WHERE project_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_entry_links WHERE entry_id IN (SELECT id FROM entries WHERE project_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE project_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE project_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE project_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: project %s: %w", id, model.ErrNotFound)
	}
	return tx.Commit()
}
