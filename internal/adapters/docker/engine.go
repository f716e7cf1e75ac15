package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/melih/lighthouse-classroom/internal/metrics"
	"github.com/rs/zerolog"
)

var _ ports.EngineClient = (*Engine)(nil)

// Config holds Docker engine connection settings.
type Config struct {
	// Host overrides DOCKER_HOST when set.
	Host string
	// Timeout bounds every call except image builds.
	Timeout time.Duration
	// BuildTimeout bounds image builds.
	BuildTimeout time.Duration
}

// Engine implements ports.EngineClient using the Docker SDK
type Engine struct {
	cli    *client.Client
	cfg    Config
	logger zerolog.Logger
}

// NewEngine creates a Docker engine client
func NewEngine(cfg Config) (*Engine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BuildTimeout == 0 {
		cfg.BuildTimeout = 10 * time.Minute
	}
	return &Engine{cli: cli, cfg: cfg, logger: log.WithComponent("docker")}, nil
}

// Close releases the client's transport
func (e *Engine) Close() error {
	return e.cli.Close()
}

// Ping checks the daemon is reachable
func (e *Engine) Ping(ctx context.Context) (err error) {
	defer e.observe("ping", &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	_, err = e.cli.Ping(ctx)
	return classify("ping", err)
}

// ListContainers returns containers, including stopped ones when asked.
// Names keep the leading "/" the daemon reports.
func (e *Engine) ListContainers(ctx context.Context, includeStopped bool) (result []domain.Container, err error) {
	defer e.observe("list", &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	containers, err := e.cli.ContainerList(ctx, container.ListOptions{All: includeStopped})
	if err != nil {
		return nil, classify("list containers", err)
	}

	for _, c := range containers {
		id := c.ID
		if len(id) > 12 {
			id = id[:12] // Short ID
		}
		// every name the container answers to
		for _, name := range c.Names {
			result = append(result, domain.Container{
				ID:     id,
				Name:   name,
				Image:  c.Image,
				Status: c.Status,
				State:  c.State,
			})
		}
	}
	return result, nil
}

// BuildImage tars the build context directory and builds it as tag.
// A failure reported in the build stream wraps ErrBuildFailure.
func (e *Engine) BuildImage(ctx context.Context, buildContextPath, tag string) (err error) {
	defer e.observe("build", &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.BuildTimeout)
	defer cancel()

	buildCtx, err := archive.TarWithOptions(buildContextPath, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := e.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
	})
	if err != nil {
		return classify("build image", err)
	}
	defer resp.Body.Close()

	// the build only finishes once the stream is drained
	var out bytes.Buffer
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, &out, 0, false, nil); err != nil {
		var jerr *jsonmessage.JSONError
		if errors.As(err, &jerr) {
			e.logger.Debug().Str("tag", tag).Str("output", out.String()).Msg("build output")
			return fmt.Errorf("%w: %s: %s", domain.ErrBuildFailure, tag, jerr.Message)
		}
		return classify("read build output", err)
	}

	e.logger.Debug().Str("tag", tag).Msg("image built")
	return nil
}

// CreateContainer creates a container from image, publishing each
// container port on its host port.
func (e *Engine) CreateContainer(ctx context.Context, image, name string, portBindings map[int]int) (err error) {
	defer e.observe("create", &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	exposed, bindings, err := portConfig(portBindings)
	if err != nil {
		return err
	}

	resp, err := e.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        image,
			ExposedPorts: exposed,
		},
		&container.HostConfig{
			PortBindings: bindings,
		},
		nil, nil, name)
	if err != nil {
		return classify("create container", err)
	}
	for _, w := range resp.Warnings {
		e.logger.Warn().Str("container", name).Msg(w)
	}
	return nil
}

// StartContainer starts the named container; a running container is left as is
func (e *Engine) StartContainer(ctx context.Context, name string) (err error) {
	defer e.observe("start", &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	return classify("start container", e.cli.ContainerStart(ctx, name, container.StartOptions{}))
}

// RemoveContainer removes the named container, killing it first when force is set
func (e *Engine) RemoveContainer(ctx context.Context, name string, force bool) (err error) {
	defer e.observe("remove", &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	return classify("remove container", e.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: force}))
}

// ContainerLogs returns the last tail lines of stdout and stderr
func (e *Engine) ContainerLogs(ctx context.Context, name string, tail int) (logs string, err error) {
	defer e.observe("logs", &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}
	rc, err := e.cli.ContainerLogs(ctx, name, opts)
	if err != nil {
		return "", classify("container logs", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil && !errors.Is(err, io.EOF) {
		return "", classify("read container logs", err)
	}
	return buf.String(), nil
}

func (e *Engine) observe(op string, err *error) {
	metrics.EngineCallsTotal.WithLabelValues(op, metrics.Result(*err)).Inc()
}

// portConfig converts container->host port pairs into the exposed set and
// bindings the daemon expects.
func portConfig(portBindings map[int]int) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range portBindings {
		p, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: container port %d: %v", domain.ErrPortOutOfRange, containerPort, err)
		}
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}}
	}
	return exposed, bindings, nil
}

// classify maps daemon errors onto domain errors.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case client.IsErrConnectionFailed(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", domain.ErrEngineUnreachable, op, err)
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %s: %w", domain.ErrContainerNotFound, op, err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
