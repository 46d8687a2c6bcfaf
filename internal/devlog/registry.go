package devlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/devloghq/devlog/internal/config"
	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
	"github.com/devloghq/devlog/internal/storage/factory"
)

// Registry hands out one Manager per project over a shared, lazily
// initialized provider. Concurrent first use collapses into a single
// provider Initialize and a single project bootstrap per name.
type Registry struct {
	cfg *config.Config
	log zerolog.Logger

	mu       sync.Mutex
	provider storage.Provider
	managers map[string]*Manager
	sf       singleflight.Group
}

func NewRegistry(cfg *config.Config, log zerolog.Logger) *Registry {
	return &Registry{cfg: cfg, log: log, managers: map[string]*Manager{}}
}

// Manager returns the manager for projectName, creating the project record
// on first use.
func (r *Registry) Manager(ctx context.Context, projectName string) (*Manager, error) {
	if projectName == "" {
		return nil, fmt.Errorf("devlog: project name required: %w", model.ErrValidation)
	}
	r.mu.Lock()
	if m, ok := r.managers[projectName]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	v, err, _ := r.sf.Do("project:"+projectName, func() (any, error) {
		return r.buildManager(ctx, projectName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manager), nil
}

func (r *Registry) buildManager(ctx context.Context, projectName string) (*Manager, error) {
	// Re-check under the flight: a caller that lost the race to a completed
	// flight must see the manager it produced, not build a second one.
	r.mu.Lock()
	if m, ok := r.managers[projectName]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	p, err := r.sharedProvider(ctx)
	if err != nil {
		return nil, err
	}

	project, err := p.Projects().GetByName(ctx, projectName)
	if err != nil {
		return nil, err
	}
	if project == nil {
		project, err = p.Projects().Create(ctx, &model.Project{Name: projectName})
		if err != nil {
			return nil, fmt.Errorf("devlog: bootstrap project %q: %w", projectName, err)
		}
		r.log.Info().Str("project", projectName).Msg("project created")
	}

	m := NewManager(p, *project, r.log)
	r.mu.Lock()
	r.managers[projectName] = m
	r.mu.Unlock()
	return m, nil
}

// sharedProvider builds and initializes the provider once for the registry
// lifetime.
func (r *Registry) sharedProvider(ctx context.Context) (storage.Provider, error) {
	r.mu.Lock()
	if r.provider != nil {
		p := r.provider
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	v, err, _ := r.sf.Do("provider", func() (any, error) {
		p, err := factory.NewProvider(r.cfg, r.log)
		if err != nil {
			return nil, err
		}
		if err := p.Initialize(ctx); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.provider = p
		r.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(storage.Provider), nil
}

// Close releases the shared provider. The registry is unusable afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	p := r.provider
	r.provider = nil
	r.managers = map[string]*Manager{}
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Cleanup()
}
