package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRefresher struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingRefresher) RefreshPath(_ context.Context, path string) (*domain.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return &domain.Resource{ID: "res", ContentPath: path}, nil
}

func (r *recordingRefresher) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestIgnored(t *testing.T) {
	assert.True(t, ignored("/media/abc/Dockerfile"))
	assert.True(t, ignored("/media/abc/abc.html.upload"))
	assert.True(t, ignored("/media/abc/.swp"))
	assert.False(t, ignored("/media/abc/abc.html"))
}

func TestWatcher_RefreshesEditedContent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "abc")
	require.NoError(t, os.Mkdir(dir, 0o755))
	content := filepath.Join(dir, "abc.html")
	require.NoError(t, os.WriteFile(content, []byte("v1"), 0o644))

	refresher := &recordingRefresher{}
	w := New(root, refresher, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// wait for the watch to be registered
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.fsw != nil && len(w.fsw.WatchList()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// several quick writes collapse into one refresh
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(content, []byte("v2"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM nginx"), 0o644))

	assert.Eventually(t, func() bool {
		return len(refresher.Paths()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{content}, refresher.Paths())

	cancel()
	require.NoError(t, <-done)
}
