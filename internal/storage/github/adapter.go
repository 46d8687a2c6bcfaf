package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devloghq/devlog/internal/events"
	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
)

// watchInterval paces the remote change poll. The issues API charges one
// request per poll regardless of result size, so this stays coarse.
const watchInterval = 60 * time.Second

const issuesPerPage = 100

// Options configures the repository-backed store.
type Options struct {
	Owner      string
	Repo       string
	Token      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	CacheTTL   time.Duration
}

// Store implements storage.Provider against one GitHub repository.
type Store struct {
	opts  Options
	api   *client
	cache *readCache
	log   zerolog.Logger
	bus   *events.Bus
	local *events.Dedup

	mu          sync.Mutex
	initialized bool

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
}

// New creates a Store. Initialize must be called before use.
func New(opts Options, log zerolog.Logger) *Store {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.github.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	s := &Store{
		opts:  opts,
		api:   newClient(opts.BaseURL, opts.Token, opts.Timeout, opts.MaxRetries, log),
		cache: newReadCache(opts.CacheTTL),
		local: events.NewDedup(),
		log:   log.With().Str("component", "github-store").Str("repo", opts.Owner+"/"+opts.Repo).Logger(),
	}
	s.bus = events.NewBus(s.log, s.startWatch, s.stopWatch)
	return s
}

// Initialize verifies the token can see the repository. Idempotent.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := s.api.do(ctx, http.MethodGet, s.repoPath(""), nil, nil); err != nil {
		return fmt.Errorf("github: repository %s/%s unreachable: %w", s.opts.Owner, s.opts.Repo, err)
	}
	s.initialized = true
	s.log.Info().Msg("github store initialized")
	return nil
}

func (s *Store) Entries() storage.Entries   { return entries{s} }
func (s *Store) Projects() storage.Projects { return projects{s} }
func (s *Store) Chat() storage.Chat         { return chat{} }

func (s *Store) Subscribe(cb events.Callback) func() { return s.bus.Subscribe(cb) }

// SupportsWatch is true: the poll loop observes issues changed by other
// processes, at watchInterval resolution.
func (s *Store) SupportsWatch() bool { return true }

func (s *Store) Cleanup() error {
	s.bus.Close()
	s.stopWatch()
	return nil
}

func (s *Store) repoPath(suffix string) string {
	return "/repos/" + s.opts.Owner + "/" + s.opts.Repo + suffix
}

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
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	mark := time.Now().UTC()
	s.log.Debug().Dur("interval", watchInterval).Msg("remote change poll started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next, err := s.publishChangedSince(ctx, mark)
			if err != nil {
				s.log.Warn().Err(err).Msg("remote change poll failed")
				continue
			}
			mark = next
		}
	}
}

// publishChangedSince fetches issues updated after mark and republishes them
// as change events. Tombstoned issues surface as deletions.
func (s *Store) publishChangedSince(ctx context.Context, mark time.Time) (time.Time, error) {
	path := fmt.Sprintf("%s?state=all&labels=%s&since=%s&per_page=%d",
		s.repoPath("/issues"), labelManaged, mark.Format(time.RFC3339), issuesPerPage)
	var issues []ghIssue
	if err := s.api.do(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return mark, err
	}
	next := mark
	for i := range issues {
		is := &issues[i]
		if !isManaged(is) {
			continue
		}
		if is.UpdatedAt.After(next) {
			next = is.UpdatedAt.UTC()
		}
		// Skip the poll echo of writes this process already published.
		if s.local.Observed(is.Number, is.UpdatedAt) {
			continue
		}
		e := issueToEntry(is, nil)
		typ := events.EventUpdated
		switch {
		case isDeleted(is):
			typ = events.EventDeleted
		case is.CreatedAt.After(mark):
			typ = events.EventCreated
		}
		s.cache.invalidate()
		s.bus.Publish(events.Event{Type: typ, Timestamp: e.UpdatedAt, Entry: e})
	}
	return next, nil
}

type entries struct{ s *Store }

func (e entries) Exists(ctx context.Context, id int64) (bool, error) {
	entry, err := e.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

func (e entries) Get(ctx context.Context, id int64) (*model.Entry, error) {
	if cached, ok := e.s.cache.getEntry(id); ok {
		return cached, nil
	}
	is, err := e.s.fetchIssue(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if is == nil || !isManaged(is) || isDeleted(is) {
		return nil, nil
	}
	comments, err := e.s.fetchComments(ctx, id, is.Comments)
	if err != nil {
		return nil, err
	}
	entry := issueToEntry(is, comments)
	e.s.cache.putEntry(entry)
	return entry, nil
}

// Save upserts. Creation adopts the issue number GitHub allocates as the
// entry id, then patches the derived key into the body metadata.
func (e entries) Save(ctx context.Context, in *model.Entry) (*model.Entry, error) {
	if err := model.ValidateEntry(in); err != nil {
		return nil, fmt.Errorf("github: invalid entry: %w", err)
	}
	cp := *in
	now := time.Now().UTC()
	model.NormalizeEntry(&cp)
	model.ApplyStatusSideEffects(&cp, now)
	if cp.ID == 0 {
		return e.create(ctx, &cp)
	}
	return e.update(ctx, &cp)
}

func (e entries) create(ctx context.Context, cp *model.Entry) (*model.Entry, error) {
	body := map[string]any{
		"title":  cp.Title,
		"body":   encodeBody(cp.Description, entryMeta(cp)),
		"labels": entryLabels(cp),
	}
	var created ghIssue
	if err := e.s.api.do(ctx, http.MethodPost, e.s.repoPath("/issues"), body, &created); err != nil {
		return nil, fmt.Errorf("github: create issue: %w", err)
	}
	cp.ID = created.Number
	cp.Key = model.GenerateKey(cp.Title, cp.ID)

	// Second write settles the key and, for entries born terminal, the state.
	patch := map[string]any{"body": encodeBody(cp.Description, entryMeta(cp))}
	if state, reason := stateFields(cp); state == "closed" {
		patch["state"] = state
		patch["state_reason"] = reason
	}
	if err := e.s.api.do(ctx, http.MethodPatch, e.s.issuePath(cp.ID), patch, nil); err != nil {
		return nil, fmt.Errorf("github: settle issue #%d: %w", cp.ID, err)
	}

	for i := range cp.Notes {
		e.s.normalizeNote(&cp.Notes[i], created.CreatedAt.UTC())
		if err := e.s.postComment(ctx, cp.ID, cp.Notes[i]); err != nil {
			return nil, err
		}
	}

	e.s.cache.invalidate()
	out, err := e.Get(ctx, cp.ID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("github: issue #%d vanished after create: %w", cp.ID, model.ErrConnection)
	}
	e.s.local.Record(out.ID, out.UpdatedAt)
	e.s.bus.Publish(events.Event{Type: events.EventCreated, Entry: out})
	return out, nil
}

func (e entries) update(ctx context.Context, cp *model.Entry) (*model.Entry, error) {
	current, err := e.Get(ctx, cp.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("github: entry %d: %w", cp.ID, model.ErrNotFound)
	}
	// Key and creation time never change once allocated.
	cp.Key = current.Key
	cp.CreatedAt = current.CreatedAt

	state, reason := stateFields(cp)
	patch := map[string]any{
		"title":  cp.Title,
		"body":   encodeBody(cp.Description, entryMeta(cp)),
		"labels": entryLabels(cp),
		"state":  state,
	}
	if reason != "" {
		patch["state_reason"] = reason
	}
	if err := e.s.api.do(ctx, http.MethodPatch, e.s.issuePath(cp.ID), patch, nil); err != nil {
		return nil, fmt.Errorf("github: update issue #%d: %w", cp.ID, err)
	}

	// Notes are append-only: comments exist for the first len(current.Notes).
	for i := len(current.Notes); i < len(cp.Notes); i++ {
		e.s.normalizeNote(&cp.Notes[i], time.Now().UTC())
		if err := e.s.postComment(ctx, cp.ID, cp.Notes[i]); err != nil {
			return nil, err
		}
	}

	e.s.cache.invalidate()
	out, err := e.Get(ctx, cp.ID)
	if err != nil {
		return nil, err
	}
	if out != nil {
		e.s.local.Record(out.ID, out.UpdatedAt)
	}
	e.s.bus.Publish(events.Event{Type: events.EventUpdated, Entry: out})
	return out, nil
}

// Delete tombstones the issue: the REST API cannot destroy issues, so it is
// closed as not_planned, tagged, and filtered out of every read from then on.
func (e entries) Delete(ctx context.Context, id int64) error {
	current, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("github: entry %d: %w", id, model.ErrNotFound)
	}
	patch := map[string]any{
		"state":        "closed",
		"state_reason": "not_planned",
		"labels":       append(entryLabels(current), labelDeleted),
	}
	var patched ghIssue
	if err := e.s.api.do(ctx, http.MethodPatch, e.s.issuePath(id), patch, &patched); err != nil {
		return fmt.Errorf("github: delete issue #%d: %w", id, err)
	}
	e.s.cache.invalidate()
	// The tombstone stays visible to the poller; remember its timestamp so
	// the deletion is not replayed.
	e.s.local.Record(id, patched.UpdatedAt)
	e.s.bus.Publish(events.Event{Type: events.EventDeleted, Entry: current})
	return nil
}

func (e entries) AddNote(ctx context.Context, id int64, n model.Note) (*model.Entry, error) {
	current, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("github: entry %d: %w", id, model.ErrNotFound)
	}
	e.s.normalizeNote(&n, time.Now().UTC())
	if err := e.s.postComment(ctx, id, n); err != nil {
		return nil, err
	}
	e.s.cache.invalidate()
	out, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if out != nil {
		e.s.local.Record(out.ID, out.UpdatedAt)
	}
	e.s.bus.Publish(events.Event{Type: events.EventUpdated, Entry: out})
	return out, nil
}

func (e entries) List(ctx context.Context, f storage.Filter) (*storage.PaginatedResult[model.Entry], error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("github: list: %w", err)
	}
	all, err := e.s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var matched []model.Entry
	for i := range all {
		if f.Matches(&all[i]) {
			matched = append(matched, all[i])
		}
	}
	p := f.Page.Normalized()
	storage.SortEntries(matched, p)
	return storage.PageOf(matched, p), nil
}

func (e entries) Search(ctx context.Context, query string, f storage.Filter) (*storage.PaginatedResult[storage.SearchResult], error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("github: search: %w", err)
	}
	all, err := e.s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []model.Entry
	for i := range all {
		if f.Matches(&all[i]) {
			candidates = append(candidates, all[i])
		}
	}
	ranked := storage.RankEntries(candidates, query)
	return storage.PageOf(ranked, f.Page.Normalized()), nil
}

func (e entries) Stats(ctx context.Context, f storage.Filter) (*storage.Stats, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("github: stats: %w", err)
	}
	all, err := e.s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var matched []model.Entry
	for i := range all {
		if f.Matches(&all[i]) {
			matched = append(matched, all[i])
		}
	}
	return storage.ComputeStats(matched), nil
}

func (e entries) TimeSeries(ctx context.Context, req storage.TimeSeriesRequest) (*storage.TimeSeriesResult, error) {
	all, err := e.s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var scoped []model.Entry
	for i := range all {
		if req.ProjectID == "" || all[i].ProjectID == req.ProjectID {
			scoped = append(scoped, all[i])
		}
	}
	return storage.ComputeTimeSeries(scoped, req, time.Now().UTC()), nil
}

// NextID is not supported: issue numbers are allocated by GitHub on create.
func (e entries) NextID(ctx context.Context) (int64, error) {
	return 0, fmt.Errorf("github: id preallocation: %w", model.ErrNotImplemented)
}

func (s *Store) issuePath(id int64) string {
	return fmt.Sprintf("%s/issues/%d", s.repoPath(""), id)
}

func (s *Store) fetchIssue(ctx context.Context, id int64) (*ghIssue, error) {
	var is ghIssue
	if err := s.api.do(ctx, http.MethodGet, s.issuePath(id), nil, &is); err != nil {
		return nil, err
	}
	return &is, nil
}

// fetchComments pages through the issue's comments. count is the comments
// total from the issue payload; zero skips the round trip entirely.
func (s *Store) fetchComments(ctx context.Context, id int64, count int) ([]ghComment, error) {
	if count == 0 {
		return nil, nil
	}
	var out []ghComment
	for page := 1; ; page++ {
		path := fmt.Sprintf("%s/comments?per_page=%d&page=%d", s.issuePath(id), issuesPerPage, page)
		var batch []ghComment
		if err := s.api.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, fmt.Errorf("github: comments for #%d: %w", id, err)
		}
		out = append(out, batch...)
		if len(batch) < issuesPerPage {
			return out, nil
		}
	}
}

// listAll fetches every managed, non-tombstoned issue as an entry. Served
// from the listing cache between writes.
func (s *Store) listAll(ctx context.Context) ([]model.Entry, error) {
	if cached, ok := s.cache.getListing(); ok {
		return cached, nil
	}
	var out []model.Entry
	for page := 1; ; page++ {
		path := fmt.Sprintf("%s?state=all&labels=%s&per_page=%d&page=%d",
			s.repoPath("/issues"), labelManaged, issuesPerPage, page)
		var batch []ghIssue
		if err := s.api.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, fmt.Errorf("github: list issues: %w", err)
		}
		for i := range batch {
			is := &batch[i]
			if !isManaged(is) || isDeleted(is) {
				continue
			}
			comments, err := s.fetchComments(ctx, is.Number, is.Comments)
			if err != nil {
				return nil, err
			}
			entry := issueToEntry(is, comments)
			s.cache.putEntry(entry)
			out = append(out, *entry)
		}
		if len(batch) < issuesPerPage {
			break
		}
	}
	s.cache.putListing(out)
	return out, nil
}

func (s *Store) postComment(ctx context.Context, id int64, n model.Note) error {
	body := map[string]any{"body": encodeNote(n)}
	if err := s.api.do(ctx, http.MethodPost, s.issuePath(id)+"/comments", body, nil); err != nil {
		return fmt.Errorf("github: comment on #%d: %w", id, err)
	}
	return nil
}
