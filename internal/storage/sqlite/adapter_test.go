package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
	"github.com/devloghq/devlog/internal/storage/providertest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(":memory:", zerolog.Nop())
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Cleanup() })
	return s
}

func TestSQLiteProviderCompliance(t *testing.T) {
	providertest.Run(t, func(t *testing.T) storage.Provider {
		return newTestStore(t)
	})
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Initialize(context.Background()))
}

func TestSupportsWatchIsFalse(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.SupportsWatch(), "a local file store cannot observe foreign writers")
}

func TestFullTextSearchCoversNotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.Projects().Create(ctx, &model.Project{Name: "fts"})
	require.NoError(t, err)

	e, err := s.Entries().Save(ctx, &model.Entry{ProjectID: proj.ID, Title: "Quiet title"})
	require.NoError(t, err)
	_, err = s.Entries().AddNote(ctx, e.ID, model.Note{Content: "the flux capacitor needs recalibration"})
	require.NoError(t, err)

	res, err := s.Entries().Search(ctx, "capacitor", storage.Filter{ProjectID: proj.ID})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, e.ID, res.Items[0].Entry.ID)
	assert.Contains(t, res.Items[0].MatchedFields, "notes")
}

// An in-memory store has a pool of exactly one connection, so Search must
// fully drain the entry result set before issuing the per-entry note query.
func TestSearchCompletesOnSingleConnection(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	proj, err := s.Projects().Create(ctx, &model.Project{Name: "pool"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		e, err := s.Entries().Save(ctx, &model.Entry{ProjectID: proj.ID, Title: fmt.Sprintf("latency spike %d", i)})
		require.NoError(t, err)
		_, err = s.Entries().AddNote(ctx, e.ID, model.Note{Content: "observed under load"})
		require.NoError(t, err)
	}

	res, err := s.Entries().Search(ctx, "latency", storage.Filter{ProjectID: proj.ID})
	require.NoError(t, err)
	require.Len(t, res.Items, 5)
	for _, r := range res.Items {
		require.Len(t, r.Entry.Notes, 1, "notes attach after the entry rows are drained")
	}
}

func TestSearchHonorsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.Projects().Create(ctx, &model.Project{Name: "scoped"})
	require.NoError(t, err)

	_, err = s.Entries().Save(ctx, &model.Entry{ProjectID: proj.ID, Title: "rollout plan", Status: model.StatusDone})
	require.NoError(t, err)
	open, err := s.Entries().Save(ctx, &model.Entry{ProjectID: proj.ID, Title: "rollout checklist"})
	require.NoError(t, err)

	res, err := s.Entries().Search(ctx, "rollout", storage.Filter{
		ProjectID: proj.ID,
		Statuses:  []model.EntryStatus{model.StatusNew},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1, "filter applies before ranking")
	assert.Equal(t, open.ID, res.Items[0].Entry.ID)
}

func TestProjectDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keep, err := s.Projects().Create(ctx, &model.Project{Name: "keep"})
	require.NoError(t, err)
	drop, err := s.Projects().Create(ctx, &model.Project{Name: "drop"})
	require.NoError(t, err)

	kept, err := s.Entries().Save(ctx, &model.Entry{ProjectID: keep.ID, Title: "stays"})
	require.NoError(t, err)
	doomed, err := s.Entries().Save(ctx, &model.Entry{ProjectID: drop.ID, Title: "goes"})
	require.NoError(t, err)
	_, err = s.Entries().AddNote(ctx, doomed.ID, model.Note{Content: "orphan candidate"})
	require.NoError(t, err)

	require.NoError(t, s.Projects().Delete(ctx, drop.ID))

	gone, err := s.Entries().Get(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "entries vanish with their project")

	still, err := s.Entries().Get(ctx, kept.ID)
	require.NoError(t, err)
	require.NotNil(t, still, "other projects are untouched")

	err = s.Projects().Delete(ctx, drop.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestIDsAreMonotonicAcrossProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1, err := s.Projects().Create(ctx, &model.Project{Name: "alpha"})
	require.NoError(t, err)
	p2, err := s.Projects().Create(ctx, &model.Project{Name: "beta"})
	require.NoError(t, err)

	a, err := s.Entries().Save(ctx, &model.Entry{ProjectID: p1.ID, Title: "first"})
	require.NoError(t, err)
	b, err := s.Entries().Save(ctx, &model.Entry{ProjectID: p2.ID, Title: "second"})
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID, "ids come from one sequence shared by all projects")

	next, err := s.Entries().NextID(ctx)
	require.NoError(t, err)
	assert.Greater(t, next, b.ID)
}

func TestSaveUpdatePreservesNotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.Projects().Create(ctx, &model.Project{Name: "notes"})
	require.NoError(t, err)

	e, err := s.Entries().Save(ctx, &model.Entry{ProjectID: proj.ID, Title: "keeper"})
	require.NoError(t, err)
	e, err = s.Entries().AddNote(ctx, e.ID, model.Note{Content: "first note"})
	require.NoError(t, err)

	upd := *e
	upd.Title = "keeper renamed"
	got, err := s.Entries().Save(ctx, &upd)
	require.NoError(t, err)
	require.Len(t, got.Notes, 1, "existing notes survive a full-record update")
	assert.Equal(t, "first note", got.Notes[0].Content)
}
