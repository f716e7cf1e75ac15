package docker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortConfig(t *testing.T) {
	exposed, bindings, err := portConfig(map[int]int{80: 10000})
	require.NoError(t, err)

	port := nat.Port("80/tcp")
	assert.Contains(t, exposed, port)
	require.Len(t, bindings[port], 1)
	assert.Equal(t, "10000", bindings[port][0].HostPort)
	assert.Empty(t, bindings[port][0].HostIP)
}

func TestPortConfig_Empty(t *testing.T) {
	exposed, bindings, err := portConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, exposed)
	assert.Empty(t, bindings)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", errdefs.NotFound(errors.New("No such container: x")), domain.ErrContainerNotFound},
		{"deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), domain.ErrEngineUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("op", tt.err), tt.want)
		})
	}

	assert.NoError(t, classify("op", nil))

	err := classify("start container", errors.New("port is already allocated"))
	assert.EqualError(t, err, "failed to start container: port is already allocated")
	assert.NotErrorIs(t, err, domain.ErrEngineUnreachable)

	err = classify("start container", fmt.Errorf("post: %w", context.Canceled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrEngineUnreachable)
}
