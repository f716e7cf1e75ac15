// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
)

var _ ports.EngineClient = (*FakeEngine)(nil)

// Call is one recorded engine invocation.
type Call struct {
	Op    string
	Name  string
	Image string
	Ports map[int]int
	Force bool
}

// FakeEngine is an in-memory EngineClient that records every call in order.
// Listed container names carry the leading "/" the Docker engine adds.
type FakeEngine struct {
	mu         sync.Mutex
	calls      []Call
	containers map[string]*domain.Container
	images     map[string]bool

	BuildErr  error
	CreateErr error
	StartErr  error
	RemoveErr error
	ListErr   error
	PingErr   error
	Logs      string

	// StartHook runs before a start is recorded, outside the fake's lock, so
	// it may block. A non-nil error is returned in place of starting.
	StartHook func(ctx context.Context, name string) error
}

// NewFakeEngine returns an empty fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		containers: make(map[string]*domain.Container),
		images:     make(map[string]bool),
	}
}

func (f *FakeEngine) record(c Call) {
	f.calls = append(f.calls, c)
}

func (f *FakeEngine) ListContainers(_ context.Context, includeStopped bool) ([]domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "list"})
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []domain.Container
	for _, c := range f.containers {
		if !includeStopped && !c.Running() {
			continue
		}
		listed := *c
		listed.Name = "/" + c.Name
		out = append(out, listed)
	}
	return out, nil
}

func (f *FakeEngine) BuildImage(_ context.Context, buildContextPath, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "build", Name: buildContextPath, Image: tag})
	if f.BuildErr != nil {
		return f.BuildErr
	}
	f.images[tag] = true
	return nil
}

func (f *FakeEngine) CreateContainer(_ context.Context, image, name string, portBindings map[int]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "create", Name: name, Image: image, Ports: portBindings})
	if f.CreateErr != nil {
		return f.CreateErr
	}
	if _, ok := f.containers[name]; ok {
		return fmt.Errorf("conflict: container name %q already in use", name)
	}
	if !f.images[image] {
		return fmt.Errorf("no such image: %s", image)
	}
	f.containers[name] = &domain.Container{ID: "id-" + name, Name: name, Image: image, State: "created"}
	return nil
}

func (f *FakeEngine) StartContainer(ctx context.Context, name string) error {
	if f.StartHook != nil {
		if err := f.StartHook(ctx, name); err != nil {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.record(Call{Op: "start", Name: name})
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "start", Name: name})
	if f.StartErr != nil {
		return f.StartErr
	}
	c, ok := f.containers[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrContainerNotFound, name)
	}
	c.State = "running"
	return nil
}

func (f *FakeEngine) RemoveContainer(_ context.Context, name string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "remove", Name: name, Force: force})
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	if _, ok := f.containers[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrContainerNotFound, name)
	}
	delete(f.containers, name)
	return nil
}

func (f *FakeEngine) ContainerLogs(_ context.Context, name string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "logs", Name: name})
	if _, ok := f.containers[name]; !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrContainerNotFound, name)
	}
	return f.Logs, nil
}

func (f *FakeEngine) Ping(context.Context) error {
	return f.PingErr
}

// Calls returns a copy of the recorded calls.
func (f *FakeEngine) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the recorded operation names in order.
func (f *FakeEngine) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ops = append(ops, c.Op)
	}
	return ops
}

// Count returns how many times op was called.
func (f *FakeEngine) Count(op string) int {
	n := 0
	for _, o := range f.Ops() {
		if o == op {
			n++
		}
	}
	return n
}

// Reset clears the call log but keeps containers and images.
func (f *FakeEngine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Container returns the named container, if present.
func (f *FakeEngine) Container(name string) (domain.Container, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return domain.Container{}, false
	}
	return *c, true
}

// AddContainer places a container in the engine without recording a call.
func (f *FakeEngine) AddContainer(name, image, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[image] = true
	f.containers[name] = &domain.Container{ID: "id-" + name, Name: name, Image: image, State: state}
}

// DropContainer removes a container out-of-band without recording a call.
func (f *FakeEngine) DropContainer(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
}
