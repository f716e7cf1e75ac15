// Package watcher turns edits under the media root into content refreshes.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/rs/zerolog"
)

// Refresher re-reads the content at path and flags a rebuild when it changed.
type Refresher interface {
	RefreshPath(ctx context.Context, path string) (*domain.Resource, error)
}

// Watcher watches the media root and every resource directory below it.
type Watcher struct {
	root      string
	refresher Refresher
	debounce  time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// New creates a watcher. A zero debounce defaults to 500ms.
func New(root string, refresher Refresher, debounce time.Duration) *Watcher {
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		root:      root,
		refresher: refresher,
		debounce:  debounce,
		pending:   make(map[string]*time.Timer),
		logger:    log.WithComponent("watcher"),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info().Str("root", w.root).Msg("watching media root for content changes")

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("filesystem watcher error")
		}
	}
}

// addTree watches root and its direct subdirectories, one per resource.
func (w *Watcher) addTree(root string) error {
	if err := w.fsw.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := w.fsw.Add(filepath.Join(root, e.Name())); err != nil {
			w.logger.Warn().Err(err).Str("dir", e.Name()).Msg("failed to watch resource dir")
		}
	}
	return nil
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// new resource directory
	if filepath.Dir(event.Name) == filepath.Clean(w.root) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch resource dir")
			}
		}
		return
	}

	if ignored(event.Name) {
		return
	}
	w.schedule(ctx, event.Name)
}

// schedule refreshes path once no event for it arrived within the debounce window.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.refresh(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) refresh(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	res, err := w.refresher.RefreshPath(ctx, path)
	switch {
	case errors.Is(err, domain.ErrResourceNotFound):
		w.logger.Debug().Str("path", path).Msg("change outside any resource")
	case err != nil:
		w.logger.Error().Err(err).Str("path", path).Msg("failed to refresh content")
	default:
		w.logger.Debug().Str("resource_id", res.ID).Str("path", path).Msg("content refreshed")
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// ignored filters build descriptors and in-flight uploads.
func ignored(path string) bool {
	base := filepath.Base(path)
	return base == "Dockerfile" || strings.HasSuffix(base, ".upload") || strings.HasPrefix(base, ".")
}
