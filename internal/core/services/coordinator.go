package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/melih/lighthouse-classroom/internal/metrics"
	"github.com/moby/locker"
	"github.com/rs/zerolog"
)

// Coordinator is the public entry point: it publishes resources as running
// containers and tears them down, reacting to resource lifecycle events.
type Coordinator struct {
	registry      *Registry
	resources     ports.ResourceStore
	builder       *ImageBuilder
	lifecycle     *Lifecycle
	containerPort int

	// serializes publish and teardown per resource; a publish that waited
	// sees the record its predecessor left, so it never builds twice
	locks  *locker.Locker
	logger zerolog.Logger
}

// NewCoordinator wires the orchestration components together.
func NewCoordinator(registry *Registry, resources ports.ResourceStore, builder *ImageBuilder, lifecycle *Lifecycle, containerPort int) *Coordinator {
	if containerPort == 0 {
		containerPort = domain.ContainerPort
	}
	return &Coordinator{
		registry:      registry,
		resources:     resources,
		builder:       builder,
		lifecycle:     lifecycle,
		containerPort: containerPort,
		locks:         locker.New(),
		logger:        log.WithComponent("coordinator"),
	}
}

// Publish makes the resource reachable and returns its host port. It rebuilds
// when the record is flagged, recreates a container removed out-of-band, and
// always finishes by starting the container.
func (c *Coordinator) Publish(ctx context.Context, resourceID string) (int, error) {
	start := time.Now()
	c.locks.Lock(resourceID)
	port, err := c.publish(ctx, resourceID)
	c.locks.Unlock(resourceID)
	metrics.PublishDuration.Observe(time.Since(start).Seconds())
	metrics.PublishTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return 0, err
	}
	return port, nil
}

func (c *Coordinator) publish(ctx context.Context, resourceID string) (int, error) {
	logger := log.WithResourceID(c.logger, resourceID)

	rec, err := c.registry.Get(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	name := rec.UniqueName

	if rec.NeedsRebuild {
		res, err := c.resources.GetResource(ctx, resourceID)
		if err != nil {
			if errors.Is(err, domain.ErrResourceNotFound) {
				return 0, fmt.Errorf("%w: %w", domain.ErrContentMissing, err)
			}
			return 0, err
		}
		descriptor, err := c.builder.EnsureBuildDescriptor(res.ContentPath)
		if err != nil {
			return 0, err
		}
		if err := c.builder.BuildImage(ctx, descriptor, name); err != nil {
			return 0, err
		}
		// the image changed underneath, so the old container must go
		if err := c.lifecycle.ForceRemove(ctx, name); err != nil {
			return 0, err
		}
		if err := c.lifecycle.Instantiate(ctx, name, name, c.containerPort, rec.HostPort); err != nil {
			return 0, err
		}
		if err := c.registry.SetNeedsRebuild(ctx, resourceID, false); err != nil {
			return 0, err
		}
		logger.Info().Str("container", name).Msg("resource rebuilt")
	} else {
		exists, err := c.lifecycle.Exists(ctx, name)
		if err != nil {
			return 0, err
		}
		if !exists {
			logger.Warn().Str("container", name).Msg("container missing, recreating")
			if err := c.lifecycle.Instantiate(ctx, name, name, c.containerPort, rec.HostPort); err != nil {
				return 0, err
			}
		}
	}

	if err := c.lifecycle.Start(ctx, name); err != nil {
		if errors.Is(err, domain.ErrContainerStartFailure) {
			if ferr := c.registry.SetNeedsRebuild(ctx, resourceID, true); ferr != nil {
				logger.Error().Err(ferr).Msg("failed to flag record for rebuild")
			}
			return 0, fmt.Errorf("%w: resource %s: %w", domain.ErrRenderFailed, resourceID, err)
		}
		return 0, err
	}

	logger.Info().Int("host_port", rec.HostPort).Msg("resource published")
	return rec.HostPort, nil
}

// Teardown removes the resource's container and then its record. A missing
// record is a no-op. The container goes first so a failure leaves an orphaned
// record, never an unregistered running container.
func (c *Coordinator) Teardown(ctx context.Context, resourceID string) error {
	c.locks.Lock(resourceID)
	defer c.locks.Unlock(resourceID)

	logger := log.WithResourceID(c.logger, resourceID)

	rec, err := c.registry.Get(ctx, resourceID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			logger.Info().Msg("no container record, nothing to tear down")
			return nil
		}
		return err
	}
	if err := c.lifecycle.ForceRemove(ctx, rec.UniqueName); err != nil {
		return err
	}
	if err := c.registry.Delete(ctx, resourceID); err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return err
	}
	logger.Info().Str("container", rec.UniqueName).Msg("resource torn down")
	return nil
}

// OnCreated registers a container record for a newly created resource.
func (c *Coordinator) OnCreated(ctx context.Context, res *domain.Resource) (*domain.ContainerRecord, error) {
	return c.registry.Create(ctx, res.ID, domain.NameFromContentPath(res.ContentPath))
}

// OnContentChanged flags the resource's container for rebuild.
func (c *Coordinator) OnContentChanged(ctx context.Context, resourceID string) error {
	if err := c.registry.SetNeedsRebuild(ctx, resourceID, true); err != nil {
		return err
	}
	c.logger.Info().Str("resource_id", resourceID).Msg("content changed, rebuild flagged")
	return nil
}

// OnDeleted tears the resource's container down.
func (c *Coordinator) OnDeleted(ctx context.Context, resourceID string) error {
	return c.Teardown(ctx, resourceID)
}

// Logs returns the tail of the resource container's output.
func (c *Coordinator) Logs(ctx context.Context, resourceID string, tail int) (string, error) {
	rec, err := c.registry.Get(ctx, resourceID)
	if err != nil {
		return "", err
	}
	return c.lifecycle.Logs(ctx, rec.UniqueName, tail)
}
