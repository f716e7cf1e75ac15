package ports

import (
	"context"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
)

// EngineClient is the capability set the orchestrator needs from a container engine.
// This interface allows us to switch between Docker, Podman or a fake in tests
// without changing the business logic.
//
// Implementations return errors wrapping domain.ErrEngineUnreachable when the daemon
// cannot be reached and domain.ErrContainerNotFound when the named container is absent.
type EngineClient interface {
	ListContainers(ctx context.Context, includeStopped bool) ([]domain.Container, error)
	BuildImage(ctx context.Context, buildContextPath, tag string) error
	// CreateContainer creates (but does not start) a container, binding
	// each container port key to the host port value.
	CreateContainer(ctx context.Context, image, name string, portBindings map[int]int) error
	StartContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string, force bool) error
	ContainerLogs(ctx context.Context, name string, tail int) (string, error)
	Ping(ctx context.Context) error
}
