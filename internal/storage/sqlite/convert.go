package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
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
	var archived int
	var files, related, ctxJSON, aiJSON, refsJSON sql.NullString

	if err := row.Scan(&e.ID, &e.Key, &e.ProjectID, &e.Title, &typ, &description,
		&status, &priority, &e.CreatedAt, &e.UpdatedAt, &closedAt, &archived,
		&assignee, &files, &related, &ctxJSON, &aiJSON, &refsJSON); err != nil {
		return nil, err
	}
	e.Type = model.EntryType(typ)
	e.Status = model.EntryStatus(status)
	e.Priority = model.Priority(priority)
	e.Description = description.String
	e.Archived = archived != 0
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

func unmarshalIfSet(src sql.NullString, dst any) {
	if src.Valid && src.String != "" {
		_ = json.Unmarshal([]byte(src.String), dst)
	}
}

func (s *Store) attachNotes(ctx context.Context, e *model.Entry) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, content, created_at FROM notes WHERE entry_id = ? ORDER BY created_at, id`, e.ID)
	if err != nil {
		return fmt.Errorf("sqlite: load notes for %d: %w", e.ID, err)
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

func insertNote(ctx context.Context, tx *sql.Tx, entryID int64, n *model.Note) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notes (id, entry_id, category, content, created_at) VALUES (?,?,?,?,?)`,
		n.ID, entryID, string(n.Category), n.Content, n.Timestamp); err != nil {
		return fmt.Errorf("sqlite: insert note: %w", err)
	}
	return nil
}

// buildWhere composes the WHERE clause for a filter. Absent fields add no
// constraint.
func buildWhere(f storage.Filter) (string, []any) {
	var conds []string
	var args []any

	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if len(f.Types) > 0 {
		conds = append(conds, "type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if len(f.Priorities) > 0 {
		conds = append(conds, "priority IN ("+placeholders(len(f.Priorities))+")")
		for _, p := range f.Priorities {
			args = append(args, string(p))
		}
	}
	if f.Assignee != "" {
		conds = append(conds, "assignee = ?")
		args = append(args, f.Assignee)
	}
	if f.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	if f.Archived != nil {
		conds = append(conds, "archived = ?")
		args = append(args, boolToInt(*f.Archived))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// orderClause maps a sort field to SQL, always tie-breaking on updated_at
// descending so ordering matches the other backends.
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

// ftsQuery quotes each token so user input cannot inject FTS5 syntax; tokens
// are OR-ed because bm25 ranking handles partial matches.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, ``)+`"*`)
	}
	return strings.Join(quoted, " OR ")
}

// bm25Relevance maps a bm25 score (<= 0, smaller is better) into [0,1].
func bm25Relevance(score float64) float64 {
	mag := -score
	if mag <= 0 {
		return 0
	}
	return mag / (mag + 1)
}

func sortSearchResults(results []storage.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Entry.UpdatedAt.After(results[j].Entry.UpdatedAt)
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// jsonOrNil marshals v, storing NULL for nil pointers and empty slices so
// absent structures round-trip as absent.
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
	return string(b)
}
