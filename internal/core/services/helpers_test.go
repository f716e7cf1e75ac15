package services

import (
	"context"
	"strings"
	"testing"

	"github.com/melih/lighthouse-classroom/internal/adapters/storage/boltdb"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/testutil"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store       *boltdb.Store
	engine      *testutil.FakeEngine
	registry    *Registry
	builder     *ImageBuilder
	lifecycle   *Lifecycle
	coordinator *Coordinator
	resources   *ResourceService
}

func newTestEnv(t *testing.T, rng domain.PortRange) *testEnv {
	t.Helper()

	store, err := boltdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := testutil.NewFakeEngine()
	allocator, err := NewPortAllocator(rng)
	require.NoError(t, err)

	registry := NewRegistry(store, allocator)
	builder, err := NewImageBuilder(engine, "", domain.ContainerPort)
	require.NoError(t, err)
	lifecycle := NewLifecycle(engine, rng)
	coordinator := NewCoordinator(registry, store, builder, lifecycle, domain.ContainerPort)

	resources, err := NewResourceService(store, coordinator, nil, t.TempDir())
	require.NoError(t, err)

	return &testEnv{
		store:       store,
		engine:      engine,
		registry:    registry,
		builder:     builder,
		lifecycle:   lifecycle,
		coordinator: coordinator,
		resources:   resources,
	}
}

// addResource uploads a small HTML page and returns the resource and its record.
func (e *testEnv) addResource(t *testing.T, body string) (*domain.Resource, *domain.ContainerRecord) {
	t.Helper()
	res, rec, err := e.resources.Create(context.Background(), "Lesson One.HTML", strings.NewReader(body))
	require.NoError(t, err)
	return res, rec
}
