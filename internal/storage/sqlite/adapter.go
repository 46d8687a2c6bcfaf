// Package sqlite implements the storage provider over a single local
// database file, for zero-ops use without a server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devloghq/devlog/internal/events"
	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
)

// Store implements storage.Provider backed by a SQLite file.
// Id allocation is MAX(id)+1 under the store write lock.
type Store struct {
	path string
	log  zerolog.Logger
	bus  *events.Bus

	mu sync.Mutex // serializes id allocation and creates
	db *sql.DB

	closeMu sync.Mutex
	closed  bool
}

// New creates a store for the database at path. No I/O happens until
// Initialize.
func New(path string, log zerolog.Logger) *Store {
	s := &Store{path: path, log: log}
	// The file is process-local: changes made by other processes are not
	// observed, so the watch strategy stays a no-op and SupportsWatch
	// reports false. In-process writes still publish events.
	s.bus = events.NewBus(log, nil, nil)
	return s
}

// NewWithDB wires the store with an existing connection (used by tests).
func NewWithDB(db *sql.DB, log zerolog.Logger) *Store {
	s := New("", log)
	s.db = db
	return s
}

// Initialize opens the file and bootstraps the schema. Idempotent.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		db, err := Open(s.path)
		if err != nil {
			return fmt.Errorf("sqlite: open %s: %w: %v", s.path, model.ErrConnection, err)
		}
		s.db = db
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w: %v", model.ErrConnection, err)
	}
	if err := EnsureSchema(s.db); err != nil {
		return fmt.Errorf("sqlite: schema: %w", err)
	}
	return nil
}

func (s *Store) Entries() storage.Entries   { return entries{s} }
func (s *Store) Projects() storage.Projects { return projects{s} }
func (s *Store) Chat() storage.Chat         { return chat{s} }

func (s *Store) Subscribe(cb events.Callback) func() { return s.bus.Subscribe(cb) }

// SupportsWatch reports false: the embedded backend cannot observe writes
// from other processes.
func (s *Store) SupportsWatch() bool { return false }

// Cleanup closes the database and drops subscribers. Safe to call twice.
func (s *Store) Cleanup() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.bus.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- Entry operations ---

type entries struct{ s *Store }

func (e entries) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := e.s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: exists: %w", err)
	}
	return true, nil
}

func (e entries) Get(ctx context.Context, id int64) (*model.Entry, error) {
	row := e.s.db.QueryRowContext(ctx, selectEntryCols+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get entry %d: %w", id, err)
	}
	if err := e.s.attachNotes(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (e entries) Save(ctx context.Context, in *model.Entry) (*model.Entry, error) {
	if err := model.ValidateEntry(in); err != nil {
		return nil, err
	}
	cp := *in
	cp.Notes = append([]model.Note(nil), in.Notes...)
	model.NormalizeEntry(&cp)
	now := time.Now().UTC()
	model.ApplyStatusSideEffects(&cp, now)

	if cp.ID == 0 {
		return e.create(ctx, &cp, now)
	}
	return e.update(ctx, &cp, now)
}

func (e entries) create(ctx context.Context, cp *model.Entry, now time.Time) (*model.Entry, error) {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM entries`).Scan(&id); err != nil {
		return nil, fmt.Errorf("sqlite: allocate id: %w", err)
	}
	cp.ID = id
	if cp.Key == "" {
		cp.Key = model.GenerateKey(cp.Title, id)
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `INSERT INTO entries
        (id, key, project_id, title, type, description, status, priority,
         created_at, updated_at, closed_at, archived, assignee,
         files, related, context, ai_context, external_refs)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		cp.ID, cp.Key, cp.ProjectID, cp.Title, string(cp.Type), cp.Description,
		string(cp.Status), string(cp.Priority), cp.CreatedAt, cp.UpdatedAt,
		timeOrNil(cp.ClosedAt), boolToInt(cp.Archived), cp.Assignee,
		jsonOrNil(cp.Files), jsonOrNil(cp.Related), jsonOrNil(cp.Context),
		jsonOrNil(cp.AIContext), jsonOrNil(cp.ExternalRefs)); err != nil {
		return nil, fmt.Errorf("sqlite: insert entry: %w", err)
	}
	for i := range cp.Notes {
		normalizeNote(&cp.Notes[i], now)
		if err := insertNote(ctx, tx, cp.ID, &cp.Notes[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.bus.Publish(events.Event{Type: events.EventCreated, Timestamp: now, Entry: cp})
	return cp, nil
}

func (e entries) update(ctx context.Context, cp *model.Entry, now time.Time) (*model.Entry, error) {
	s := e.s
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var createdAt time.Time
	var key string
	err = tx.QueryRowContext(ctx, `SELECT key, created_at FROM entries WHERE id = ?`, cp.ID).Scan(&key, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: entry %d: %w", cp.ID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load entry %d: %w", cp.ID, err)
	}
	// key and creation time are immutable once assigned
	cp.Key = key
	cp.CreatedAt = createdAt
	cp.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `UPDATE entries SET
        project_id = ?, title = ?, type = ?, description = ?, status = ?, priority = ?,
        updated_at = ?, closed_at = ?, archived = ?, assignee = ?,
        files = ?, related = ?, context = ?, ai_context = ?, external_refs = ?
        WHERE id = ?`,
		cp.ProjectID, cp.Title, string(cp.Type), cp.Description, string(cp.Status),
		string(cp.Priority), cp.UpdatedAt, timeOrNil(cp.ClosedAt), boolToInt(cp.Archived),
		cp.Assignee, jsonOrNil(cp.Files), jsonOrNil(cp.Related), jsonOrNil(cp.Context),
		jsonOrNil(cp.AIContext), jsonOrNil(cp.ExternalRefs), cp.ID); err != nil {
		return nil, fmt.Errorf("sqlite: update entry %d: %w", cp.ID, err)
	}
	// notes are append-only: insert the ones not yet persisted
	for i := range cp.Notes {
		normalizeNote(&cp.Notes[i], now)
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO notes (id, entry_id, category, content, created_at)
            VALUES (?,?,?,?,?)`,
			cp.Notes[i].ID, cp.ID, string(cp.Notes[i].Category), cp.Notes[i].Content, cp.Notes[i].Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: insert note: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.bus.Publish(events.Event{Type: events.EventUpdated, Timestamp: now, Entry: cp})
	return cp, nil
}

func (e entries) Delete(ctx context.Context, id int64) error {
	entry, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("sqlite: entry %d: %w", id, model.ErrNotFound)
	}
	tx, err := e.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE entry_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_entry_links WHERE entry_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.s.bus.Publish(events.Event{Type: events.EventDeleted, Entry: entry})
	return nil
}

func (e entries) AddNote(ctx context.Context, id int64, n model.Note) (*model.Entry, error) {
	now := time.Now().UTC()
	normalizeNote(&n, now)

	tx, err := e.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE entries SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return nil, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("sqlite: entry %d: %w", id, model.ErrNotFound)
	}
	if err := insertNote(ctx, tx, id, &n); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	entry, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.s.bus.Publish(events.Event{Type: events.EventUpdated, Timestamp: now, Entry: entry})
	return entry, nil
}

func (e entries) List(ctx context.Context, f storage.Filter) (*storage.PaginatedResult[model.Entry], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	p := f.Page.Normalized()
	where, args := buildWhere(f)

	var total int
	if err := e.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: count entries: %w", err)
	}

	q := selectEntryCols + ` FROM entries` + where +
		` ORDER BY ` + orderClause(p) +
		fmt.Sprintf(` LIMIT %d OFFSET %d`, p.Limit, (p.Page-1)*p.Limit)
	rows, err := e.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list entries: %w", err)
	}
	defer rows.Close()

	var items []model.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		if err := e.s.attachNotes(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return &storage.PaginatedResult[model.Entry]{
		Items:      items,
		Pagination: storage.NewPageMeta(p.Page, p.Limit, total),
	}, nil
}

func (e entries) Search(ctx context.Context, query string, f storage.Filter) (*storage.PaginatedResult[storage.SearchResult], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	p := f.Page.Normalized()
	match := ftsQuery(query)
	if match == "" {
		return &storage.PaginatedResult[storage.SearchResult]{
			Pagination: storage.NewPageMeta(p.Page, p.Limit, 0),
		}, nil
	}

	// candidates ranked by bm25 over the trigger-maintained index, with the
	// same field weighting the in-memory scorer applies (title dominates)
	rows, err := e.s.db.QueryContext(ctx,
		`SELECT rowid, bm25(entries_fts, 0.9, 1.0, 0.6, 0.4) FROM entries_fts WHERE entries_fts MATCH ?`, match)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fts query: %w", err)
	}
	scores := map[int64]float64{}
	var ids []int64
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			rows.Close()
			return nil, err
		}
		scores[id] = score
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &storage.PaginatedResult[storage.SearchResult]{
			Pagination: storage.NewPageMeta(p.Page, p.Limit, 0),
		}, nil
	}

	where, args := buildWhere(f)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	if where == "" {
		where = " WHERE id IN (" + placeholders + ")"
	} else {
		where += " AND id IN (" + placeholders + ")"
	}
	for _, id := range ids {
		args = append(args, id)
	}

	erows, err := e.s.db.QueryContext(ctx, selectEntryCols+` FROM entries`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search entries: %w", err)
	}
	defer erows.Close()

	// Drain the result set before attaching notes: the nested note query
	// needs a free connection, and an in-memory store has exactly one.
	var matched []model.Entry
	for erows.Next() {
		entry, err := scanEntry(erows)
		if err != nil {
			return nil, err
		}
		matched = append(matched, *entry)
	}
	if err := erows.Err(); err != nil {
		return nil, err
	}
	erows.Close()

	var results []storage.SearchResult
	for i := range matched {
		entry := &matched[i]
		if err := e.s.attachNotes(ctx, entry); err != nil {
			return nil, err
		}
		scored := storage.ScoreEntry(entry, query)
		scored.Relevance = bm25Relevance(scores[entry.ID])
		if scored.Relevance < storage.MinRelevance {
			continue
		}
		results = append(results, scored)
	}

	sortSearchResults(results)
	return storage.PageOf(results, p), nil
}

func (e entries) Stats(ctx context.Context, f storage.Filter) (*storage.Stats, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	where, args := buildWhere(f)
	out := storage.NewStats()

	type group struct {
		col string
		add func(key string, n int)
	}
	groups := []group{
		{"status", func(k string, n int) {
			st := model.EntryStatus(k)
			out.ByStatus[st] += n
			out.Total += n
			if st.IsClosed() {
				out.Closed += n
			} else {
				out.Open += n
			}
		}},
		{"type", func(k string, n int) { out.ByType[model.EntryType(k)] += n }},
		{"priority", func(k string, n int) { out.ByPriority[model.Priority(k)] += n }},
		{"assignee", func(k string, n int) {
			if k != "" {
				out.ByAssignee[k] += n
			}
		}},
	}
	for _, g := range groups {
		q := fmt.Sprintf(`SELECT COALESCE(%s, ''), COUNT(*) FROM entries%s GROUP BY %s`, g.col, where, g.col)
		rows, err := e.s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("sqlite: stats by %s: %w", g.col, err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, err
			}
			g.add(key, n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e entries) TimeSeries(ctx context.Context, req storage.TimeSeriesRequest) (*storage.TimeSeriesResult, error) {
	q := `SELECT created_at, closed_at FROM entries`
	var args []any
	if req.ProjectID != "" {
		q += ` WHERE project_id = ?`
		args = append(args, req.ProjectID)
	}
	rows, err := e.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: time series: %w", err)
	}
	defer rows.Close()

	var lite []model.Entry
	for rows.Next() {
		var created time.Time
		var closed sql.NullTime
		if err := rows.Scan(&created, &closed); err != nil {
			return nil, err
		}
		entry := model.Entry{CreatedAt: created}
		if closed.Valid {
			t := closed.Time
			entry.ClosedAt = &t
		}
		lite = append(lite, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return storage.ComputeTimeSeries(lite, req, time.Now().UTC()), nil
}

func (e entries) NextID(ctx context.Context) (int64, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	var id int64
	if err := e.s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM entries`).Scan(&id); err != nil {
		return 0, fmt.Errorf("sqlite: next id: %w", err)
	}
	return id, nil
}
