// Package postgres implements the storage provider over a shared PostgreSQL
// database for team deployments.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devloghq/devlog/internal/events"
	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
)

// watchInterval is the poll period of the change-watch strategy.
const watchInterval = 5 * time.Second

// Store implements storage.Provider backed by PostgreSQL. Entry ids come
// from a database sequence; change watching polls updated_at.
type Store struct {
	dsn   string
	log   zerolog.Logger
	bus   *events.Bus
	local *events.Dedup

	db *sql.DB

	watchMu     sync.Mutex
	watchCancel context.CancelFunc

	closeMu sync.Mutex
	closed  bool
}

// New creates a store for the given DSN. No I/O happens until Initialize.
func New(dsn string, log zerolog.Logger) *Store {
	s := &Store{dsn: dsn, log: log, local: events.NewDedup()}
	s.bus = events.NewBus(log, s.startWatch, s.stopWatch)
	return s
}

// NewWithDB wires the store with an existing connection (used by tests).
func NewWithDB(db *sql.DB, log zerolog.Logger) *Store {
	s := New("", log)
	s.db = db
	return s
}

// Initialize connects and bootstraps the schema. Idempotent.
func (s *Store) Initialize(ctx context.Context) error {
	if s.db == nil {
		db, err := Open(s.dsn)
		if err != nil {
			return fmt.Errorf("postgres: open: %w: %v", model.ErrConnection, err)
		}
		s.db = db
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w: %v", model.ErrConnection, err)
	}
	if err := EnsureSchema(s.db); err != nil {
		return fmt.Errorf("postgres: schema: %w", err)
	}
	return nil
}

func (s *Store) Entries() storage.Entries   { return entries{s} }
func (s *Store) Projects() storage.Projects { return projects{s} }
func (s *Store) Chat() storage.Chat         { return chat{s} }

func (s *Store) Subscribe(cb events.Callback) func() { return s.bus.Subscribe(cb) }

// SupportsWatch reports true: the poll watcher observes writes from other
// processes sharing the database.
func (s *Store) SupportsWatch() bool { return true }

// startWatch begins polling for entries whose updated_at advanced past the
// last observed high-water mark. Deletions are not observable this way;
// delete events fire only for in-process deletes.
func (s *Store) startWatch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watchCancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.pollLoop(ctx)
	return nil
}

func (s *Store) stopWatch() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
}

func (s *Store) pollLoop(ctx context.Context) {
	mark := time.Now().UTC()
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		next, err := s.publishChangedSince(ctx, mark)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("change poll failed")
			}
			continue
		}
		mark = next
	}
}

func (s *Store) publishChangedSince(ctx context.Context, mark time.Time) (time.Time, error) {
	rows, err := s.db.QueryContext(ctx, selectEntryCols+` FROM entries WHERE updated_at > $1 ORDER BY updated_at`, mark)
	if err != nil {
		return mark, err
	}
	defer rows.Close()
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return mark, err
		}
		if entry.UpdatedAt.After(mark) {
			mark = entry.UpdatedAt
		}
		// Writes made through this process were published at save time.
		if s.local.Observed(entry.ID, entry.UpdatedAt) {
			continue
		}
		typ := events.EventUpdated
		if entry.CreatedAt.Equal(entry.UpdatedAt) {
			typ = events.EventCreated
		}
		s.bus.Publish(events.Event{Type: typ, Timestamp: entry.UpdatedAt, Entry: entry})
	}
	return mark, rows.Err()
}

// Cleanup stops the watcher and closes the pool. Safe to call twice.
func (s *Store) Cleanup() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.bus.Close()
	s.stopWatch()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- Entry operations ---

type entries struct{ s *Store }

func (e entries) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := e.s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = $1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: exists: %w", err)
	}
	return true, nil
}

func (e entries) Get(ctx context.Context, id int64) (*model.Entry, error) {
	row := e.s.db.QueryRowContext(ctx, selectEntryCols+` FROM entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get entry %d: %w", id, err)
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
	tx, err := e.s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `SELECT nextval('entries_id_seq')`).Scan(&cp.ID); err != nil {
		return nil, fmt.Errorf("postgres: allocate id: %w", err)
	}
	if cp.Key == "" {
		cp.Key = model.GenerateKey(cp.Title, cp.ID)
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `INSERT INTO entries
        (id, key, project_id, title, type, description, status, priority,
         created_at, updated_at, closed_at, archived, assignee,
         files, related, context, ai_context, external_refs)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		cp.ID, cp.Key, cp.ProjectID, cp.Title, string(cp.Type), cp.Description,
		string(cp.Status), string(cp.Priority), cp.CreatedAt, cp.UpdatedAt,
		timeOrNil(cp.ClosedAt), cp.Archived, cp.Assignee,
		jsonOrNil(cp.Files), jsonOrNil(cp.Related), jsonOrNil(cp.Context),
		jsonOrNil(cp.AIContext), jsonOrNil(cp.ExternalRefs)); err != nil {
		return nil, fmt.Errorf("postgres: insert entry: %w", err)
	}
	for i := range cp.Notes {
		normalizeNote(&cp.Notes[i], now)
		if _, err := tx.ExecContext(ctx, `INSERT INTO notes (id, entry_id, category, content, created_at)
            VALUES ($1,$2,$3,$4,$5)`,
			cp.Notes[i].ID, cp.ID, string(cp.Notes[i].Category), cp.Notes[i].Content, cp.Notes[i].Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: insert note: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.s.local.Record(cp.ID, now)
	e.s.bus.Publish(events.Event{Type: events.EventCreated, Timestamp: now, Entry: cp})
	return cp, nil
}

func (e entries) update(ctx context.Context, cp *model.Entry, now time.Time) (*model.Entry, error) {
	tx, err := e.s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var createdAt time.Time
	var key string
	err = tx.QueryRowContext(ctx, `SELECT key, created_at FROM entries WHERE id = $1`, cp.ID).Scan(&key, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("postgres: entry %d: %w", cp.ID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load entry %d: %w", cp.ID, err)
	}
	cp.Key = key
	cp.CreatedAt = createdAt
	cp.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `UPDATE entries SET
        project_id = $1, title = $2, type = $3, description = $4, status = $5, priority = $6,
        updated_at = $7, closed_at = $8, archived = $9, assignee = $10,
        files = $11, related = $12, context = $13, ai_context = $14, external_refs = $15
        WHERE id = $16`,
		cp.ProjectID, cp.Title, string(cp.Type), cp.Description, string(cp.Status),
		string(cp.Priority), cp.UpdatedAt, timeOrNil(cp.ClosedAt), cp.Archived,
		cp.Assignee, jsonOrNil(cp.Files), jsonOrNil(cp.Related), jsonOrNil(cp.Context),
		jsonOrNil(cp.AIContext), jsonOrNil(cp.ExternalRefs), cp.ID); err != nil {
		return nil, fmt.Errorf("postgres: update entry %d: %w", cp.ID, err)
	}
	for i := range cp.Notes {
		normalizeNote(&cp.Notes[i], now)
		if _, err := tx.ExecContext(ctx, `INSERT INTO notes (id, entry_id, category, content, created_at)
            VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
			cp.Notes[i].ID, cp.ID, string(cp.Notes[i].Category), cp.Notes[i].Content, cp.Notes[i].Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: insert note: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.s.local.Record(cp.ID, now)
	e.s.bus.Publish(events.Event{Type: events.EventUpdated, Timestamp: now, Entry: cp})
	return cp, nil
}

func (e entries) Delete(ctx context.Context, id int64) error {
	entry, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("postgres: entry %d: %w", id, model.ErrNotFound)
	}
	if _, err := e.s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete entry %d: %w", id, err)
	}
	e.s.bus.Publish(events.Event{Type: events.EventDeleted, Entry: entry})
	return nil
}

func (e entries) AddNote(ctx context.Context, id int64, n model.Note) (*model.Entry, error) {
	now := time.Now().UTC()
	normalizeNote(&n, now)

	tx, err := e.s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE entries SET updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return nil, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("postgres: entry %d: %w", id, model.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO notes (id, entry_id, category, content, created_at)
        VALUES ($1,$2,$3,$4,$5)`, n.ID, id, string(n.Category), n.Content, n.Timestamp); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	entry, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.s.local.Record(id, now)
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
		return nil, fmt.Errorf("postgres: count entries: %w", err)
	}

	q := selectEntryCols + ` FROM entries` + where +
		` ORDER BY ` + orderClause(p) +
		fmt.Sprintf(` LIMIT %d OFFSET %d`, p.Limit, (p.Page-1)*p.Limit)
	rows, err := e.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries: %w", err)
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

// Search selects candidates with ILIKE over title, key, description and note
// content, then ranks them with the shared field-weighted scorer. The ILIKE
// translation has no native relevance, so scoring happens in the adapter.
func (e entries) Search(ctx context.Context, query string, f storage.Filter) (*storage.PaginatedResult[storage.SearchResult], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	p := f.Page.Normalized()
	if query == "" {
		return &storage.PaginatedResult[storage.SearchResult]{
			Pagination: storage.NewPageMeta(p.Page, p.Limit, 0),
		}, nil
	}

	where, args := buildWhere(f)
	pattern := "%" + query + "%"
	n := len(args) + 1
	cond := fmt.Sprintf(`(title ILIKE $%d OR key ILIKE $%d OR description ILIKE $%d
        OR EXISTS (SELECT 1 FROM notes WHERE notes.entry_id = entries.id AND notes.content ILIKE $%d))`, n, n, n, n)
	if where == "" {
		where = " WHERE " + cond
	} else {
		where += " AND " + cond
	}
	args = append(args, pattern)

	rows, err := e.s.db.QueryContext(ctx, selectEntryCols+` FROM entries`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search entries: %w", err)
	}
	defer rows.Close()

	var candidates []model.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range candidates {
		if err := e.s.attachNotes(ctx, &candidates[i]); err != nil {
			return nil, err
		}
	}
	return storage.PageOf(storage.RankEntries(candidates, query), p), nil
}

func (e entries) Stats(ctx context.Context, f storage.Filter) (*storage.Stats, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	where, args := buildWhere(f)
	out := storage.NewStats()

	rows, err := e.s.db.QueryContext(ctx,
		`SELECT status, type, priority, COALESCE(assignee, ''), COUNT(*) FROM entries`+where+
			` GROUP BY status, type, priority, assignee`, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, typ, priority, assignee string
		var n int
		if err := rows.Scan(&status, &typ, &priority, &assignee, &n); err != nil {
			return nil, err
		}
		st := model.EntryStatus(status)
		out.Total += n
		if st.IsClosed() {
			out.Closed += n
		} else {
			out.Open += n
		}
		out.ByStatus[st] += n
		out.ByType[model.EntryType(typ)] += n
		out.ByPriority[model.Priority(priority)] += n
		if assignee != "" {
			out.ByAssignee[assignee] += n
		}
	}
	return out, rows.Err()
}

func (e entries) TimeSeries(ctx context.Context, req storage.TimeSeriesRequest) (*storage.TimeSeriesResult, error) {
	q := `SELECT created_at, closed_at FROM entries`
	var args []any
	if req.ProjectID != "" {
		q += ` WHERE project_id = $1`
		args = append(args, req.ProjectID)
	}
	rows, err := e.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: time series: %w", err)
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
	var id int64
	if err := e.s.db.QueryRowContext(ctx, `SELECT nextval('entries_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: next id: %w", err)
	}
	return id, nil
}
