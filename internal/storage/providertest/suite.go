// Package providertest is the shared compliance suite every storage backend
// must pass. Backends run it from their own package tests with a clean,
// isolated provider.
package providertest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/devloghq/devlog/internal/events"
	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
)

// Run exercises the full provider contract. makeProvider must return an
// initialized provider backed by empty storage.
func Run(t *testing.T, makeProvider func(t *testing.T) storage.Provider) {
	t.Helper()

	p := makeProvider(t)
	ctx := context.Background()

	// Projects
	proj, err := p.Projects().Create(ctx, &model.Project{Name: "suite-project"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if proj.ID == "" {
		t.Fatalf("CreateProject: empty id")
	}
	if _, err := p.Projects().Create(ctx, &model.Project{Name: "suite-project"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate project: want ErrConflict, got %v", err)
	}
	if got, err := p.Projects().GetByName(ctx, "suite-project"); err != nil || got == nil || got.ID != proj.ID {
		t.Fatalf("GetProjectByName: got=%v err=%v", got, err)
	}
	if got, err := p.Projects().Get(ctx, "no-such-project"); err != nil || got != nil {
		t.Fatalf("absent project: want (nil, nil), got=%v err=%v", got, err)
	}

	// Change events for the create below
	var received []events.Event
	unsub := p.Subscribe(func(evt events.Event) { received = append(received, evt) })

	// Create: id allocated, key derived, defaults normalized
	e1, err := p.Entries().Save(ctx, &model.Entry{
		ProjectID:   proj.ID,
		Title:       "Implement the widget cache",
		Description: "Cache widget lookups to cut p99 latency",
	})
	if err != nil {
		t.Fatalf("Save create: %v", err)
	}
	if e1.ID == 0 || e1.Key == "" {
		t.Fatalf("Save create: id=%d key=%q", e1.ID, e1.Key)
	}
	if e1.Type != model.TypeTask || e1.Status != model.StatusNew || e1.Priority != model.PriorityMedium {
		t.Fatalf("Save create defaults: type=%s status=%s priority=%s", e1.Type, e1.Status, e1.Priority)
	}
	if e1.CreatedAt.IsZero() || e1.UpdatedAt.IsZero() || e1.ClosedAt != nil {
		t.Fatalf("Save create timestamps: created=%v updated=%v closed=%v", e1.CreatedAt, e1.UpdatedAt, e1.ClosedAt)
	}

	if ok, err := p.Entries().Exists(ctx, e1.ID); err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
	if got, err := p.Entries().Get(ctx, e1.ID); err != nil || got == nil || got.Key != e1.Key {
		t.Fatalf("Get: got=%v err=%v", got, err)
	}
	if got, err := p.Entries().Get(ctx, 999999); err != nil || got != nil {
		t.Fatalf("absent entry: want (nil, nil), got=%v err=%v", got, err)
	}

	// Validation failures never reach storage
	if _, err := p.Entries().Save(ctx, &model.Entry{ProjectID: proj.ID}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("Save without title: want ErrValidation, got %v", err)
	}
	if _, err := p.Entries().Save(ctx, &model.Entry{ProjectID: proj.ID, Title: "x", Status: "bogus"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("Save bad status: want ErrValidation, got %v", err)
	}

	// Update: key and createdAt immutable, closedAt set on terminal status
	upd := *e1
	upd.Title = "Implement the widget cache v2"
	upd.Status = model.StatusDone
	upd.Key = "attempted-rewrite-1"
	e1b, err := p.Entries().Save(ctx, &upd)
	if err != nil {
		t.Fatalf("Save update: %v", err)
	}
	if e1b.Key != e1.Key {
		t.Fatalf("key must be immutable: got %q want %q", e1b.Key, e1.Key)
	}
	if !e1b.CreatedAt.Equal(e1.CreatedAt) {
		t.Fatalf("createdAt must be immutable: got %v want %v", e1b.CreatedAt, e1.CreatedAt)
	}
	if e1b.ClosedAt == nil {
		t.Fatalf("closedAt must be set when status becomes done")
	}

	// Reopen clears closedAt
	reopened := *e1b
	reopened.Status = model.StatusInProgress
	e1c, err := p.Entries().Save(ctx, &reopened)
	if err != nil {
		t.Fatalf("Save reopen: %v", err)
	}
	if e1c.ClosedAt != nil {
		t.Fatalf("closedAt must clear when leaving a terminal status, got %v", e1c.ClosedAt)
	}

	// Updating an id that was never allocated fails
	if _, err := p.Entries().Save(ctx, &model.Entry{ID: 424242, ProjectID: proj.ID, Title: "ghost"}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Save unknown id: want ErrNotFound, got %v", err)
	}

	// Notes are append-only and bump updatedAt
	before := e1c.UpdatedAt
	time.Sleep(5 * time.Millisecond)
	withNote, err := p.Entries().AddNote(ctx, e1.ID, model.Note{Category: model.NoteProgress, Content: "cache layer scaffolded"})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if len(withNote.Notes) != 1 || withNote.Notes[0].Content != "cache layer scaffolded" {
		t.Fatalf("AddNote: notes=%v", withNote.Notes)
	}
	if withNote.Notes[0].ID == "" || withNote.Notes[0].Timestamp.IsZero() {
		t.Fatalf("AddNote: note must get id and timestamp: %+v", withNote.Notes[0])
	}
	if !withNote.UpdatedAt.After(before) {
		t.Fatalf("AddNote must bump updatedAt: before=%v after=%v", before, withNote.UpdatedAt)
	}
	if _, err := p.Entries().AddNote(ctx, 999999, model.Note{Content: "nope"}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("AddNote unknown id: want ErrNotFound, got %v", err)
	}

	runListAndPagination(t, ctx, p, proj.ID)
	runSearch(t, ctx, p, proj.ID)
	runAggregates(t, ctx, p, proj.ID)

	// Delete
	if err := p.Entries().Delete(ctx, e1.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, err := p.Entries().Get(ctx, e1.ID); err != nil || got != nil {
		t.Fatalf("Get after delete: got=%v err=%v", got, err)
	}
	if err := p.Entries().Delete(ctx, e1.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("double delete: want ErrNotFound, got %v", err)
	}

	// Events observed in-process for every mutation kind
	unsub()
	unsub() // idempotent
	var sawCreated, sawUpdated, sawDeleted bool
	for _, evt := range received {
		switch evt.Type {
		case events.EventCreated:
			sawCreated = true
		case events.EventUpdated:
			sawUpdated = true
		case events.EventDeleted:
			sawDeleted = true
		}
		if evt.Timestamp.IsZero() {
			t.Fatalf("event without timestamp: %+v", evt)
		}
	}
	if !sawCreated || !sawUpdated || !sawDeleted {
		t.Fatalf("events: created=%v updated=%v deleted=%v", sawCreated, sawUpdated, sawDeleted)
	}

	runChat(t, ctx, p, proj.ID)
}

// runListAndPagination seeds 25 entries and checks the page math invariant:
// total 25, limit 10, page 2 yields items 11..20 with hasNext true.
func runListAndPagination(t *testing.T, ctx context.Context, p storage.Provider, projectID string) {
	t.Helper()

	assignee := "rivera"
	for i := 0; i < 25; i++ {
		e := &model.Entry{
			ProjectID: projectID,
			Title:     fmt.Sprintf("batch entry %02d", i),
			Type:      model.TypeFeature,
			Priority:  model.PriorityHigh,
		}
		if i%5 == 0 {
			e.Status = model.StatusBlocked
			e.Assignee = &assignee
		}
		if _, err := p.Entries().Save(ctx, e); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	res, err := p.Entries().List(ctx, storage.Filter{
		ProjectID: projectID,
		Types:     []model.EntryType{model.TypeFeature},
		Page:      storage.Pagination{Page: 2, Limit: 10},
	})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if res.Pagination.Total != 25 || res.Pagination.TotalPages != 3 {
		t.Fatalf("List page meta: total=%d pages=%d", res.Pagination.Total, res.Pagination.TotalPages)
	}
	if len(res.Items) != 10 {
		t.Fatalf("List page 2: n=%d", len(res.Items))
	}
	if !res.Pagination.HasNext || !res.Pagination.HasPrevious {
		t.Fatalf("List page 2: hasNext=%v hasPrev=%v", res.Pagination.HasNext, res.Pagination.HasPrevious)
	}

	// Page beyond the end is empty, not an error
	past, err := p.Entries().List(ctx, storage.Filter{
		ProjectID: projectID,
		Types:     []model.EntryType{model.TypeFeature},
		Page:      storage.Pagination{Page: 99, Limit: 10},
	})
	if err != nil || len(past.Items) != 0 || past.Pagination.HasNext {
		t.Fatalf("List past end: n=%d hasNext=%v err=%v", len(past.Items), past.Pagination.HasNext, err)
	}

	// Status and assignee filters compose with AND
	blocked, err := p.Entries().List(ctx, storage.Filter{
		ProjectID: projectID,
		Statuses:  []model.EntryStatus{model.StatusBlocked},
		Assignee:  assignee,
	})
	if err != nil {
		t.Fatalf("List blocked: %v", err)
	}
	if blocked.Pagination.Total != 5 {
		t.Fatalf("List blocked: total=%d", blocked.Pagination.Total)
	}

	// Unknown status is rejected before any I/O
	if _, err := p.Entries().List(ctx, storage.Filter{Statuses: []model.EntryStatus{"nonsense"}}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("List bad status: want ErrValidation, got %v", err)
	}

	// Ascending id sort is deterministic
	asc, err := p.Entries().List(ctx, storage.Filter{
		ProjectID: projectID,
		Page:      storage.Pagination{Limit: 100, SortBy: storage.SortByID, Order: storage.SortAsc},
	})
	if err != nil {
		t.Fatalf("List asc: %v", err)
	}
	for i := 1; i < len(asc.Items); i++ {
		if asc.Items[i-1].ID > asc.Items[i].ID {
			t.Fatalf("List asc: out of order at %d", i)
		}
	}
}

func runSearch(t *testing.T, ctx context.Context, p storage.Provider, projectID string) {
	t.Helper()

	title, err := p.Entries().Save(ctx, &model.Entry{
		ProjectID: projectID,
		Title:     "Fix kelvin converter overflow",
		Type:      model.TypeBugfix,
	})
	if err != nil {
		t.Fatalf("seed search title: %v", err)
	}
	noteOnly, err := p.Entries().Save(ctx, &model.Entry{
		ProjectID: projectID,
		Title:     "Unrelated chore",
		Type:      model.TypeTask,
	})
	if err != nil {
		t.Fatalf("seed search note: %v", err)
	}
	if _, err := p.Entries().AddNote(ctx, noteOnly.ID, model.Note{Content: "blocked on the kelvin rollout"}); err != nil {
		t.Fatalf("seed search note content: %v", err)
	}

	res, err := p.Entries().Search(ctx, "kelvin", storage.Filter{ProjectID: projectID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) < 2 {
		t.Fatalf("Search: n=%d, want both the title and note match", len(res.Items))
	}
	if res.Items[0].Entry.ID != title.ID {
		t.Fatalf("Search: title match must rank first, got entry %d", res.Items[0].Entry.ID)
	}
	for _, r := range res.Items {
		if r.Relevance < storage.MinRelevance || r.Relevance > 1 {
			t.Fatalf("Search: relevance out of range: %v", r.Relevance)
		}
		if len(r.MatchedFields) == 0 {
			t.Fatalf("Search: missing matched fields for entry %d", r.Entry.ID)
		}
	}

	none, err := p.Entries().Search(ctx, "zzz-no-such-token", storage.Filter{ProjectID: projectID})
	if err != nil || len(none.Items) != 0 {
		t.Fatalf("Search no hits: n=%d err=%v", len(none.Items), err)
	}
}

func runAggregates(t *testing.T, ctx context.Context, p storage.Provider, projectID string) {
	t.Helper()

	stats, err := p.Entries().Stats(ctx, storage.Filter{ProjectID: projectID})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total == 0 || stats.Total != stats.Open+stats.Closed {
		t.Fatalf("Stats: total=%d open=%d closed=%d", stats.Total, stats.Open, stats.Closed)
	}
	var byStatus int
	for _, n := range stats.ByStatus {
		byStatus += n
	}
	if byStatus != stats.Total {
		t.Fatalf("Stats: byStatus sums to %d, total %d", byStatus, stats.Total)
	}

	ts, err := p.Entries().TimeSeries(ctx, storage.TimeSeriesRequest{ProjectID: projectID})
	if err != nil {
		t.Fatalf("TimeSeries: %v", err)
	}
	if ts.Granularity != storage.GranularityDay || len(ts.Points) == 0 {
		t.Fatalf("TimeSeries: granularity=%s points=%d", ts.Granularity, len(ts.Points))
	}
	last := ts.Points[len(ts.Points)-1]
	if last.CumulativeCreated == 0 || last.Open != last.CumulativeCreated-last.CumulativeClosed {
		t.Fatalf("TimeSeries last point: %+v", last)
	}
	for i := 1; i < len(ts.Points); i++ {
		if ts.Points[i].CumulativeCreated < ts.Points[i-1].CumulativeCreated {
			t.Fatalf("TimeSeries: cumulative created decreased at %d", i)
		}
	}
}

// runChat skips cleanly for backends that report chat as not implemented.
func runChat(t *testing.T, ctx context.Context, p storage.Provider, projectID string) {
	t.Helper()

	sess, err := p.Chat().SaveSession(ctx, &model.ChatSession{ProjectID: projectID, Agent: "suite", Title: "planning"})
	if errors.Is(err, model.ErrNotImplemented) {
		t.Log("chat not implemented by this backend, skipping")
		return
	}
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if sess.ID == "" {
		t.Fatalf("SaveSession: empty id")
	}

	if _, err := p.Chat().AppendMessage(ctx, &model.ChatMessage{SessionID: sess.ID, Role: "user", Content: "what is blocked?"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	msgs, err := p.Chat().ListMessages(ctx, sess.ID)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("ListMessages: n=%d err=%v", len(msgs), err)
	}
	got, err := p.Chat().GetSession(ctx, sess.ID)
	if err != nil || got == nil || got.MessageCount != 1 {
		t.Fatalf("GetSession: got=%+v err=%v", got, err)
	}

	hits, err := p.Chat().SearchMessages(ctx, projectID, "blocked")
	if err != nil || len(hits) != 1 {
		t.Fatalf("SearchMessages: n=%d err=%v", len(hits), err)
	}

	entry, err := p.Entries().Save(ctx, &model.Entry{ProjectID: projectID, Title: "chat linked work"})
	if err != nil {
		t.Fatalf("seed chat entry: %v", err)
	}
	if err := p.Chat().LinkEntry(ctx, &model.ChatEntryLink{SessionID: sess.ID, EntryID: entry.ID, Confidence: 0.8, Reason: "mentioned"}); err != nil {
		t.Fatalf("LinkEntry: %v", err)
	}
	if err := p.Chat().ConfirmLink(ctx, sess.ID, entry.ID); err != nil {
		t.Fatalf("ConfirmLink: %v", err)
	}
	links, err := p.Chat().Links(ctx, sess.ID)
	if err != nil || len(links) != 1 || !links[0].Confirmed {
		t.Fatalf("Links: %v err=%v", links, err)
	}
	if err := p.Chat().UnlinkEntry(ctx, sess.ID, entry.ID); err != nil {
		t.Fatalf("UnlinkEntry: %v", err)
	}
	if err := p.Chat().DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if got, err := p.Chat().GetSession(ctx, sess.ID); err != nil || got != nil {
		t.Fatalf("GetSession after delete: got=%v err=%v", got, err)
	}
}
