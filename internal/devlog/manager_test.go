package devlog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloghq/devlog/internal/events"
	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
	"github.com/devloghq/devlog/internal/storage/sqlite"
)

func newTestProvider(t *testing.T) storage.Provider {
	t.Helper()
	s := sqlite.New(":memory:", zerolog.Nop())
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Cleanup() })
	return s
}

func newTestManager(t *testing.T, p storage.Provider, name string) *Manager {
	t.Helper()
	proj, err := p.Projects().Create(context.Background(), &model.Project{Name: name})
	require.NoError(t, err)
	return NewManager(p, *proj, zerolog.Nop())
}

func TestManagerStampsProject(t *testing.T) {
	p := newTestProvider(t)
	m := newTestManager(t, p, "alpha")
	ctx := context.Background()

	e, err := m.Save(ctx, &model.Entry{Title: "scoped work", ProjectID: "somewhere-else"})
	require.NoError(t, err)
	assert.Equal(t, m.Project().ID, e.ProjectID, "caller-supplied project ids are overridden")
}

func TestManagerHidesForeignEntries(t *testing.T) {
	p := newTestProvider(t)
	alpha := newTestManager(t, p, "alpha")
	beta := newTestManager(t, p, "beta")
	ctx := context.Background()

	theirs, err := beta.Save(ctx, &model.Entry{Title: "beta work"})
	require.NoError(t, err)

	got, err := alpha.Get(ctx, theirs.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "foreign entries read as absent")

	err = alpha.Delete(ctx, theirs.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = alpha.AddNote(ctx, theirs.ID, model.Note{Content: "sneaky"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Updating a foreign entry cannot re-home it either.
	hijack := *theirs
	hijack.Title = "stolen"
	_, err = alpha.Save(ctx, &hijack)
	assert.ErrorIs(t, err, model.ErrNotFound)

	still, err := beta.Get(ctx, theirs.ID)
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, "beta work", still.Title)
}

func TestManagerScopesQueries(t *testing.T) {
	p := newTestProvider(t)
	alpha := newTestManager(t, p, "alpha")
	beta := newTestManager(t, p, "beta")
	ctx := context.Background()

	_, err := alpha.Save(ctx, &model.Entry{Title: "a1"})
	require.NoError(t, err)
	_, err = alpha.Save(ctx, &model.Entry{Title: "a2"})
	require.NoError(t, err)
	_, err = beta.Save(ctx, &model.Entry{Title: "b1"})
	require.NoError(t, err)

	// A filter naming the other project is overridden by the scope.
	res, err := alpha.List(ctx, storage.Filter{ProjectID: beta.Project().ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pagination.Total)

	stats, err := alpha.Stats(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)

	found, err := alpha.Search(ctx, "a1", storage.Filter{})
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "a1", found.Items[0].Entry.Title)

	ts, err := alpha.TimeSeries(ctx, storage.TimeSeriesRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, ts.Points)
	assert.Equal(t, 2, ts.Points[len(ts.Points)-1].CumulativeCreated)
}

func TestManagerSubscribeFiltersByProject(t *testing.T) {
	p := newTestProvider(t)
	alpha := newTestManager(t, p, "alpha")
	beta := newTestManager(t, p, "beta")
	ctx := context.Background()

	var seen []events.Event
	unsub := alpha.Subscribe(func(evt events.Event) { seen = append(seen, evt) })
	defer unsub()

	_, err := alpha.Save(ctx, &model.Entry{Title: "mine"})
	require.NoError(t, err)
	_, err = beta.Save(ctx, &model.Entry{Title: "theirs"})
	require.NoError(t, err)

	require.Len(t, seen, 1, "only the scoped project's events arrive")
	assert.Equal(t, "mine", seen[0].Entry.Title)
}

// busProvider exposes the bus so tests can publish events the storage layer
// itself would not emit.
type busProvider struct {
	storage.Provider
	bus *events.Bus
}

func (p *busProvider) Subscribe(cb events.Callback) func() { return p.bus.Subscribe(cb) }

func TestManagerSubscribeDropsUnattributedEvents(t *testing.T) {
	p := &busProvider{Provider: newTestProvider(t), bus: events.NewBus(zerolog.Nop(), nil, nil)}
	m := newTestManager(t, p, "alpha")

	var seen []events.Event
	unsub := m.Subscribe(func(evt events.Event) { seen = append(seen, evt) })
	defer unsub()

	p.bus.Publish(events.Event{Type: events.EventUpdated})
	assert.Empty(t, seen, "an event without an entry has no project and must not cross scopes")

	p.bus.Publish(events.Event{Type: events.EventUpdated, Entry: &model.Entry{ID: 1, ProjectID: m.Project().ID}})
	require.Len(t, seen, 1, "attributed events still arrive")
}
