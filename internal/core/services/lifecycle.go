package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/rs/zerolog"
)

// Lifecycle performs idempotent container operations keyed by container name.
type Lifecycle struct {
	engine ports.EngineClient
	ports  domain.PortRange
	logger zerolog.Logger
}

// NewLifecycle creates a lifecycle manager that only binds host ports inside rng.
func NewLifecycle(engine ports.EngineClient, rng domain.PortRange) *Lifecycle {
	return &Lifecycle{
		engine: engine,
		ports:  rng,
		logger: log.WithComponent("lifecycle"),
	}
}

// Exists reports whether a container named name exists, running or stopped.
func (l *Lifecycle) Exists(ctx context.Context, name string) (bool, error) {
	containers, err := l.engine.ListContainers(ctx, true)
	if err != nil {
		return false, err
	}
	for _, c := range containers {
		// the engine reports names with a leading "/"
		if strings.TrimPrefix(c.Name, "/") == name {
			return true, nil
		}
	}
	return false, nil
}

// Instantiate creates a container from image, binding containerPort to hostPort.
// Names and ports are validated before the engine is called.
func (l *Lifecycle) Instantiate(ctx context.Context, name, image string, containerPort, hostPort int) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if err := domain.ValidateName(image); err != nil {
		return err
	}
	if containerPort < 1 || containerPort > 65535 {
		return fmt.Errorf("%w: container port %d", domain.ErrPortOutOfRange, containerPort)
	}
	if !l.ports.Contains(hostPort) {
		return fmt.Errorf("%w: host port %d not in [%d, %d]", domain.ErrPortOutOfRange, hostPort, l.ports.Min, l.ports.Max)
	}

	if err := l.engine.CreateContainer(ctx, image, name, map[int]int{containerPort: hostPort}); err != nil {
		return fmt.Errorf("failed to create container %s: %w", name, err)
	}
	l.logger.Info().Str("container", name).Int("host_port", hostPort).Msg("container instantiated")
	return nil
}

// ForceRemove removes the container if it exists. An absent container is success.
func (l *Lifecycle) ForceRemove(ctx context.Context, name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	exists, err := l.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		l.logger.Debug().Str("container", name).Msg("container already absent")
		return nil
	}
	if err := l.engine.RemoveContainer(ctx, name, true); err != nil {
		// lost a race with another remover
		if errors.Is(err, domain.ErrContainerNotFound) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	l.logger.Info().Str("container", name).Msg("container removed")
	return nil
}

// Start starts an existing container; starting a running container is a no-op.
// Engine-level failures wrap ErrContainerStartFailure and are recoverable.
// A canceled caller context is returned as is and says nothing about the container.
func (l *Lifecycle) Start(ctx context.Context, name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if err := l.engine.StartContainer(ctx, name); err != nil {
		if errors.Is(err, domain.ErrEngineUnreachable) || errors.Is(err, context.Canceled) {
			return err
		}
		l.logger.Warn().Err(err).Str("container", name).Msg("container failed to start")
		return fmt.Errorf("%w: %s: %w", domain.ErrContainerStartFailure, name, err)
	}
	return nil
}

// Logs returns the tail of the container's output.
func (l *Lifecycle) Logs(ctx context.Context, name string, tail int) (string, error) {
	if err := domain.ValidateName(name); err != nil {
		return "", err
	}
	return l.engine.ContainerLogs(ctx, name, tail)
}
