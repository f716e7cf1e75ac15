package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestImageBuilder_EnsureBuildDescriptorGenerates(t *testing.T) {
	builder, err := NewImageBuilder(testutil.NewFakeEngine(), "", 80)
	require.NoError(t, err)

	content := filepath.Join(t.TempDir(), "19102026abc123xyz0.html")
	writeFile(t, content, "<h1>hi</h1>")

	descriptor, err := builder.EnsureBuildDescriptor(content)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(content), DescriptorName), descriptor)

	data, err := os.ReadFile(descriptor)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FROM nginx:alpine")
	assert.Contains(t, string(data), `COPY ["19102026abc123xyz0.html", "/usr/share/nginx/html/index.html"]`)
	assert.Contains(t, string(data), "EXPOSE 80")
}

func TestImageBuilder_EnsureBuildDescriptorKeepsExisting(t *testing.T) {
	builder, err := NewImageBuilder(testutil.NewFakeEngine(), "", 80)
	require.NoError(t, err)

	dir := t.TempDir()
	content := filepath.Join(dir, "page.html")
	writeFile(t, content, "<h1>hi</h1>")
	writeFile(t, filepath.Join(dir, DescriptorName), "FROM custom\n")

	descriptor, err := builder.EnsureBuildDescriptor(content)
	require.NoError(t, err)

	data, err := os.ReadFile(descriptor)
	require.NoError(t, err)
	assert.Equal(t, "FROM custom\n", string(data))
}

func TestImageBuilder_CustomTemplate(t *testing.T) {
	builder, err := NewImageBuilder(testutil.NewFakeEngine(), "FROM httpd\nCOPY {{ .ResourceFilename | upper }} /srv/\n", 80)
	require.NoError(t, err)

	content := filepath.Join(t.TempDir(), "page.html")
	writeFile(t, content, "x")

	descriptor, err := builder.EnsureBuildDescriptor(content)
	require.NoError(t, err)
	data, err := os.ReadFile(descriptor)
	require.NoError(t, err)
	assert.Equal(t, "FROM httpd\nCOPY PAGE.HTML /srv/\n", string(data))
}

func TestImageBuilder_BadTemplate(t *testing.T) {
	_, err := NewImageBuilder(testutil.NewFakeEngine(), "{{ .Broken", 80)
	assert.Error(t, err)
}

func TestImageBuilder_ContentMissing(t *testing.T) {
	builder, err := NewImageBuilder(testutil.NewFakeEngine(), "", 80)
	require.NoError(t, err)

	_, err = builder.EnsureBuildDescriptor(filepath.Join(t.TempDir(), "gone.html"))
	assert.ErrorIs(t, err, domain.ErrContentMissing)

	// a directory is not content
	_, err = builder.EnsureBuildDescriptor(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrContentMissing)
}

func TestImageBuilder_BuildImage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	descriptor := filepath.Join(dir, DescriptorName)
	writeFile(t, descriptor, "FROM nginx:alpine\n")

	t.Run("success builds from the descriptor dir", func(t *testing.T) {
		engine := testutil.NewFakeEngine()
		builder, err := NewImageBuilder(engine, "", 80)
		require.NoError(t, err)

		require.NoError(t, builder.BuildImage(ctx, descriptor, "lesson"))
		calls := engine.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "build", calls[0].Op)
		assert.Equal(t, dir, calls[0].Name)
		assert.Equal(t, "lesson", calls[0].Image)
	})

	t.Run("engine error is a build failure", func(t *testing.T) {
		engine := testutil.NewFakeEngine()
		engine.BuildErr = errors.New("COPY failed: file not found")
		builder, err := NewImageBuilder(engine, "", 80)
		require.NoError(t, err)

		assert.ErrorIs(t, builder.BuildImage(ctx, descriptor, "lesson"), domain.ErrBuildFailure)
	})

	t.Run("unreachable engine stays unreachable", func(t *testing.T) {
		engine := testutil.NewFakeEngine()
		engine.BuildErr = fmt.Errorf("%w: connection refused", domain.ErrEngineUnreachable)
		builder, err := NewImageBuilder(engine, "", 80)
		require.NoError(t, err)

		err = builder.BuildImage(ctx, descriptor, "lesson")
		assert.ErrorIs(t, err, domain.ErrEngineUnreachable)
		assert.NotErrorIs(t, err, domain.ErrBuildFailure)
	})

	t.Run("invalid tag and missing descriptor make no engine call", func(t *testing.T) {
		engine := testutil.NewFakeEngine()
		builder, err := NewImageBuilder(engine, "", 80)
		require.NoError(t, err)

		assert.ErrorIs(t, builder.BuildImage(ctx, descriptor, "Lesson"), domain.ErrInvalidName)
		assert.ErrorIs(t, builder.BuildImage(ctx, filepath.Join(t.TempDir(), DescriptorName), "lesson"), domain.ErrContentMissing)
		assert.Empty(t, engine.Calls())
	})
}
