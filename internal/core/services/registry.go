package services

import (
	"context"
	"errors"
	"time"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/melih/lighthouse-classroom/internal/metrics"
	"github.com/rs/zerolog"
)

// Registry is the durable store of one ContainerRecord per resource.
type Registry struct {
	store     ports.RecordStore
	allocator *PortAllocator
	logger    zerolog.Logger
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store ports.RecordStore, allocator *PortAllocator) *Registry {
	return &Registry{
		store:     store,
		allocator: allocator,
		logger:    log.WithComponent("registry"),
	}
}

// Get returns the record for resourceID or an error wrapping ErrRecordNotFound.
func (r *Registry) Get(ctx context.Context, resourceID string) (*domain.ContainerRecord, error) {
	return r.store.GetRecord(ctx, resourceID)
}

// List returns every live record.
func (r *Registry) List(ctx context.Context) ([]*domain.ContainerRecord, error) {
	return r.store.ListRecords(ctx)
}

// Create registers a new record, allocating its host port atomically with the insert.
// The record starts unbuilt. Fails with ErrDuplicateRecord if one exists already.
func (r *Registry) Create(ctx context.Context, resourceID, uniqueName string) (*domain.ContainerRecord, error) {
	if err := domain.ValidateName(uniqueName); err != nil {
		return nil, err
	}

	rec, err := r.store.CreateRecord(ctx, resourceID, uniqueName, r.allocator.Allocate)
	if err != nil {
		if errors.Is(err, domain.ErrPortRangeExhausted) {
			r.logger.Error().Err(err).Str("resource_id", resourceID).Msg("port range exhausted")
		}
		return nil, err
	}

	metrics.PortsAllocated.Inc()
	metrics.ContainerRecords.Inc()
	r.logger.Info().
		Str("resource_id", resourceID).
		Str("unique_name", rec.UniqueName).
		Int("host_port", rec.HostPort).
		Msg("container record created")
	return rec, nil
}

// SetNeedsRebuild flips the rebuild flag. Clearing it marks a successful build.
func (r *Registry) SetNeedsRebuild(ctx context.Context, resourceID string, needsRebuild bool) error {
	_, err := r.store.UpdateRecord(ctx, resourceID, func(rec *domain.ContainerRecord) error {
		rec.NeedsRebuild = needsRebuild
		if !needsRebuild {
			rec.BuiltAt = time.Now().UTC()
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Debug().Str("resource_id", resourceID).Bool("needs_rebuild", needsRebuild).Msg("rebuild flag updated")
	return nil
}

// Delete removes the record. Its port stays retired.
func (r *Registry) Delete(ctx context.Context, resourceID string) error {
	if err := r.store.DeleteRecord(ctx, resourceID); err != nil {
		return err
	}
	metrics.ContainerRecords.Dec()
	r.logger.Info().Str("resource_id", resourceID).Msg("container record deleted")
	return nil
}

// SyncGauge sets the live record gauge from the store, used at startup.
func (r *Registry) SyncGauge(ctx context.Context) error {
	records, err := r.store.ListRecords(ctx)
	if err != nil {
		return err
	}
	metrics.ContainerRecords.Set(float64(len(records)))
	return nil
}
