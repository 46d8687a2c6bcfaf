package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
)

const selectEntryCols = `SELECT id, key, project_id, title, type, description, status, priority,
    created_at, updated_at, closed_at, archived, assignee,
    files, related, context, ai_context, external_refs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.Entry, error) {
	var e model.Entry
	var typ, status, priority string
	var description, assignee sql.NullString
	var closedAt sql.NullTime
	var files, related, ctxJSON, aiJSON, refsJSON []byte

	if err := row.Scan(&e.ID, &e.Key, &e.ProjectID, &e.Title, &typ, &description,
		&status, &priority, &e.CreatedAt, &e.UpdatedAt, &closedAt, &e.Archived,
		&assignee, &files, &related, &ctxJSON, &aiJSON, &refsJSON); err != nil {
		return nil, err
	}
	e.Type = model.EntryType(typ)
	e.Status = model.EntryStatus(status)
	e.Priority = model.Priority(priority)
	e.Description = description.String
	if closedAt.Valid {
		t := closedAt.Time
		e.ClosedAt = &t
	}
	if assignee.Valid && assignee.String != "" {
		a := assignee.String
		e.Assignee = &a
	}
	unmarshalIfSet(files, &e.Files)
	unmarshalIfSet(related, &e.Related)
	unmarshalIfSet(ctxJSON, &e.Context)
	unmarshalIfSet(aiJSON, &e.AIContext)
	unmarshalIfSet(refsJSON, &e.ExternalRefs)
	return &e, nil
}

func unmarshalIfSet(src []byte, dst any) {
	if len(src) > 0 {
		_ = json.Unmarshal(src, dst)
	}
}

func (s *Store) attachNotes(ctx context.Context, e *model.Entry) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, content, created_at FROM notes WHERE entry_id = $1 ORDER BY created_at, id`, e.ID)
	if err != nil {
		return fmt.Errorf("postgres: load notes for %d: %w", e.ID, err)
	}
	defer rows.Close()
	e.Notes = nil
	for rows.Next() {
		var n model.Note
		var cat string
		if err := rows.Scan(&n.ID, &cat, &n.Content, &n.Timestamp); err != nil {
			return err
		}
		n.Category = model.NoteCategory(cat)
		e.Notes = append(e.Notes, n)
	}
	return rows.Err()
}

func normalizeNote(n *model.Note, now time.Time) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Category == "" {
		n.Category = model.NoteProgress
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = now
	}
}

// buildWhere composes the WHERE clause for a filter using numbered
// placeholders. Set filters use = ANY(array) so one parameter covers the set.
func buildWhere(f storage.Filter) (string, []any) {
	var conds []string
	var args []any
	next := func() int { return len(args) + 1 }

	if f.ProjectID != "" {
		conds = append(conds, fmt.Sprintf("project_id = $%d", next()))
		args = append(args, f.ProjectID)
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", next()))
		args = append(args, stringSlice(f.Statuses))
	}
	if len(f.Types) > 0 {
		conds = append(conds, fmt.Sprintf("type = ANY($%d)", next()))
		args = append(args, stringSlice(f.Types))
	}
	if len(f.Priorities) > 0 {
		conds = append(conds, fmt.Sprintf("priority = ANY($%d)", next()))
		args = append(args, stringSlice(f.Priorities))
	}
	if f.Assignee != "" {
		conds = append(conds, fmt.Sprintf("assignee = $%d", next()))
		args = append(args, f.Assignee)
	}
	if f.From != nil {
		conds = append(conds, fmt.Sprintf("created_at >= $%d", next()))
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, fmt.Sprintf("created_at <= $%d", next()))
		args = append(args, f.To.UTC())
	}
	if f.Archived != nil {
		conds = append(conds, fmt.Sprintf("archived = $%d", next()))
		args = append(args, *f.Archived)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func stringSlice[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func orderClause(p storage.Pagination) string {
	dir := "DESC"
	if p.Order == storage.SortAsc {
		dir = "ASC"
	}
	var col string
	switch p.SortBy {
	case storage.SortByID:
		col = "id"
	case storage.SortByCreatedAt:
		col = "created_at"
	case storage.SortByTitle:
		col = "LOWER(title)"
	case storage.SortByStatus:
		col = `CASE status
            WHEN 'new' THEN 0 WHEN 'in-progress' THEN 1 WHEN 'blocked' THEN 2
            WHEN 'in-review' THEN 3 WHEN 'testing' THEN 4 WHEN 'done' THEN 5
            ELSE 6 END`
	case storage.SortByPriority:
		col = `CASE priority
            WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2
            ELSE 3 END`
	default:
		return "updated_at " + dir
	}
	return col + " " + dir + ", updated_at DESC"
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func jsonOrNil(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map:
		if rv.IsNil() || (rv.Kind() == reflect.Slice && rv.Len() == 0) {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
