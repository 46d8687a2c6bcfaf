// Package devlog scopes the storage provider to a single project and owns
// provider lifecycle across projects.
package devlog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/devloghq/devlog/internal/events"
	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
)

// Manager narrows a Provider to one project. Every write is stamped with the
// project id and every read refuses to surface another project's records, so
// callers cannot cross the tenancy boundary by guessing ids.
type Manager struct {
	provider storage.Provider
	project  model.Project
	log      zerolog.Logger
}

// NewManager wraps an initialized provider for the given project.
func NewManager(p storage.Provider, project model.Project, log zerolog.Logger) *Manager {
	return &Manager{
		provider: p,
		project:  project,
		log:      log.With().Str("project", project.Name).Logger(),
	}
}

// Project returns the scoped project record.
func (m *Manager) Project() model.Project { return m.project }

// Provider exposes the underlying provider for capability checks.
func (m *Manager) Provider() storage.Provider { return m.provider }

// Get returns (nil, nil) for absent ids and for entries owned by another
// project; the two cases are indistinguishable to the caller.
func (m *Manager) Get(ctx context.Context, id int64) (*model.Entry, error) {
	e, err := m.provider.Entries().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil || e.ProjectID != m.project.ID {
		return nil, nil
	}
	return e, nil
}

// Save stamps the project id. Updating an entry that belongs to another
// project fails as not found rather than re-homing it.
func (m *Manager) Save(ctx context.Context, e *model.Entry) (*model.Entry, error) {
	if e == nil {
		return nil, fmt.Errorf("devlog: nil entry: %w", model.ErrValidation)
	}
	if e.ID != 0 {
		existing, err := m.Get(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("devlog: entry %d: %w", e.ID, model.ErrNotFound)
		}
	}
	cp := *e
	cp.ProjectID = m.project.ID
	return m.provider.Entries().Save(ctx, &cp)
}

func (m *Manager) Delete(ctx context.Context, id int64) error {
	existing, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("devlog: entry %d: %w", id, model.ErrNotFound)
	}
	return m.provider.Entries().Delete(ctx, id)
}

func (m *Manager) AddNote(ctx context.Context, id int64, n model.Note) (*model.Entry, error) {
	existing, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("devlog: entry %d: %w", id, model.ErrNotFound)
	}
	return m.provider.Entries().AddNote(ctx, id, n)
}

// List forces the project scope onto the filter regardless of what the
// caller set.
func (m *Manager) List(ctx context.Context, f storage.Filter) (*storage.PaginatedResult[model.Entry], error) {
	f.ProjectID = m.project.ID
	return m.provider.Entries().List(ctx, f)
}

func (m *Manager) Search(ctx context.Context, query string, f storage.Filter) (*storage.PaginatedResult[storage.SearchResult], error) {
	f.ProjectID = m.project.ID
	return m.provider.Entries().Search(ctx, query, f)
}

func (m *Manager) Stats(ctx context.Context, f storage.Filter) (*storage.Stats, error) {
	f.ProjectID = m.project.ID
	return m.provider.Entries().Stats(ctx, f)
}

func (m *Manager) TimeSeries(ctx context.Context, req storage.TimeSeriesRequest) (*storage.TimeSeriesResult, error) {
	req.ProjectID = m.project.ID
	return m.provider.Entries().TimeSeries(ctx, req)
}

// Subscribe delivers only this project's change events. Events without an
// entry payload cannot be attributed to a project and are dropped.
func (m *Manager) Subscribe(cb events.Callback) func() {
	return m.provider.Subscribe(func(evt events.Event) {
		if evt.Entry == nil || evt.Entry.ProjectID != m.project.ID {
			return
		}
		cb(evt)
	})
}

// Chat returns the provider's chat surface; sessions carry their own
// project id.
func (m *Manager) Chat() storage.Chat { return m.provider.Chat() }
