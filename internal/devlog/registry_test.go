package devlog

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloghq/devlog/internal/config"
	"github.com/devloghq/devlog/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := &config.Config{
		StorageDriver: config.DriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "devlog.db"),
	}
	r := NewRegistry(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistryBootstrapsProject(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	m, err := r.Manager(ctx, "greenfield")
	require.NoError(t, err)
	assert.Equal(t, "greenfield", m.Project().Name)
	assert.NotEmpty(t, m.Project().ID)

	e, err := m.Save(ctx, &model.Entry{Title: "first entry"})
	require.NoError(t, err)
	assert.Equal(t, m.Project().ID, e.ProjectID)
}

func TestRegistryMemoizesManagers(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	m1, err := r.Manager(ctx, "alpha")
	require.NoError(t, err)
	m2, err := r.Manager(ctx, "alpha")
	require.NoError(t, err)
	assert.Same(t, m1, m2, "one manager per project name")

	other, err := r.Manager(ctx, "beta")
	require.NoError(t, err)
	assert.NotSame(t, m1, other)
	assert.Same(t, m1.Provider(), other.Provider(), "managers share one provider")
}

func TestRegistryConcurrentFirstUse(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	const n = 8
	managers := make([]*Manager, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.Manager(ctx, "contended")
			assert.NoError(t, err)
			managers[i] = m
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, managers[0], managers[i], "concurrent first use collapses to one manager")
	}

	// The bootstrap created the project exactly once.
	list, err := managers[0].Provider().Projects().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRegistryRequiresProjectName(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Manager(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestRegistryCloseReleasesProvider(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Manager(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")
}
