package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/melih/lighthouse-classroom/internal/adapters/docker"
	"github.com/melih/lighthouse-classroom/internal/adapters/git"
	"github.com/melih/lighthouse-classroom/internal/adapters/storage/boltdb"
	"github.com/melih/lighthouse-classroom/internal/adapters/storage/sqlite"
	"github.com/melih/lighthouse-classroom/internal/config"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	"github.com/melih/lighthouse-classroom/internal/core/services"
)

// app holds the wired services shared by the server and the CLI commands.
type app struct {
	store       ports.Store
	engine      *docker.Engine
	registry    *services.Registry
	coordinator *services.Coordinator
	resources   *services.ResourceService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	engine, err := docker.NewEngine(docker.Config{
		Host:         cfg.Engine.Host,
		Timeout:      cfg.Engine.Timeout,
		BuildTimeout: cfg.Engine.BuildTimeout,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	a, err := wire(ctx, cfg, store, engine)
	if err != nil {
		engine.Close()
		store.Close()
		return nil, err
	}
	a.engine = engine
	return a, nil
}

// wire builds the services on top of an open store and an engine client.
func wire(ctx context.Context, cfg *config.Config, store ports.Store, engine ports.EngineClient) (*app, error) {
	rng := cfg.Ports.Range()
	allocator, err := services.NewPortAllocator(rng)
	if err != nil {
		return nil, err
	}
	tmpl, err := cfg.Build.Template()
	if err != nil {
		return nil, err
	}
	builder, err := services.NewImageBuilder(engine, tmpl, cfg.Ports.Container)
	if err != nil {
		return nil, err
	}

	registry := services.NewRegistry(store, allocator)
	if err := registry.SyncGauge(ctx); err != nil {
		return nil, fmt.Errorf("failed to read container records: %w", err)
	}
	lifecycle := services.NewLifecycle(engine, rng)
	coordinator := services.NewCoordinator(registry, store, builder, lifecycle, cfg.Ports.Container)
	resources, err := services.NewResourceService(store, coordinator, git.NewImporter(), cfg.Media.Root)
	if err != nil {
		return nil, err
	}

	return &app{
		store:       store,
		registry:    registry,
		coordinator: coordinator,
		resources:   resources,
	}, nil
}

func openStore(cfg config.StoreConfig) (ports.Store, error) {
	switch cfg.Driver {
	case config.DriverBolt:
		return boltdb.Open(cfg.Path)
	case config.DriverSQLite:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return sqlite.Open(filepath.Join(cfg.Path, "lighthouse.sqlite"))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
