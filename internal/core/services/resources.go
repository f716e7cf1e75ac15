package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/rs/zerolog"
)

// ResourceEvents receives resource lifecycle events. The Coordinator implements it.
type ResourceEvents interface {
	OnCreated(ctx context.Context, res *domain.Resource) (*domain.ContainerRecord, error)
	OnContentChanged(ctx context.Context, resourceID string) error
	OnDeleted(ctx context.Context, resourceID string) error
}

// ResourceService stores uploaded content bundles under the media root and
// fires lifecycle events for them.
type ResourceService struct {
	store     ports.ResourceStore
	events    ResourceEvents
	importer  ports.ContentImporter
	mediaRoot string
	now       func() time.Time
	logger    zerolog.Logger
}

// NewResourceService creates a resource service. importer may be nil, which
// disables Import.
func NewResourceService(store ports.ResourceStore, events ResourceEvents, importer ports.ContentImporter, mediaRoot string) (*ResourceService, error) {
	abs, err := filepath.Abs(mediaRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	return &ResourceService{
		store:     store,
		events:    events,
		importer:  importer,
		mediaRoot: abs,
		now:       time.Now,
		logger:    log.WithComponent("resources"),
	}, nil
}

// MediaRoot returns the absolute directory content is stored under.
func (s *ResourceService) MediaRoot() string {
	return s.mediaRoot
}

// Get returns a resource by id.
func (s *ResourceService) Get(ctx context.Context, id string) (*domain.Resource, error) {
	return s.store.GetResource(ctx, id)
}

// List returns all resources.
func (s *ResourceService) List(ctx context.Context) ([]*domain.Resource, error) {
	return s.store.ListResources(ctx)
}

// Create stores content under a freshly generated token and registers its
// container record. Nothing is kept if either step fails.
func (s *ResourceService) Create(ctx context.Context, filename string, content io.Reader) (*domain.Resource, *domain.ContainerRecord, error) {
	return s.create(ctx, filename, content, "")
}

// Import shallow-clones repoURL and stores its entry file as a new resource.
func (s *ResourceService) Import(ctx context.Context, repoURL, entry string) (*domain.Resource, *domain.ContainerRecord, error) {
	if s.importer == nil {
		return nil, nil, errors.New("content import is not configured")
	}
	tmpDir, err := os.MkdirTemp("", "lighthouse-import-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := s.importer.Fetch(ctx, repoURL, tmpDir); err != nil {
		return nil, nil, err
	}

	// keep the entry inside the clone
	entryPath := filepath.Join(tmpDir, filepath.Clean("/"+entry))
	f, err := os.Open(entryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: entry %q not found in %s", domain.ErrContentMissing, entry, repoURL)
	}
	defer f.Close()

	return s.create(ctx, filepath.Base(entryPath), f, repoURL)
}

func (s *ResourceService) create(ctx context.Context, filename string, content io.Reader, source string) (*domain.Resource, *domain.ContainerRecord, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if filename == "" || strings.ContainsAny(ext, `/\ `) {
		return nil, nil, fmt.Errorf("%w: bad filename %q", domain.ErrInvalidContent, filename)
	}

	token, dir, err := s.reserveDir()
	if err != nil {
		return nil, nil, err
	}
	contentPath := filepath.Join(dir, token+ext)
	fingerprint, err := writeContent(contentPath, content)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}

	now := s.now().UTC()
	res := &domain.Resource{
		ID:          uuid.NewString(),
		Filename:    filepath.Base(filename),
		ContentPath: contentPath,
		Fingerprint: fingerprint,
		Source:      source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveResource(ctx, res); err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("failed to save resource: %w", err)
	}

	rec, err := s.events.OnCreated(ctx, res)
	if err != nil {
		if derr := s.store.DeleteResource(ctx, res.ID); derr != nil {
			s.logger.Error().Err(derr).Str("resource_id", res.ID).Msg("failed to roll back resource")
		}
		os.RemoveAll(dir)
		return nil, nil, err
	}

	s.logger.Info().Str("resource_id", res.ID).Str("content", contentPath).Msg("resource created")
	return res, rec, nil
}

// UpdateContent overwrites the resource's content in place. A changed
// fingerprint flags the container for rebuild.
func (s *ResourceService) UpdateContent(ctx context.Context, id string, content io.Reader) (*domain.Resource, error) {
	res, err := s.store.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}

	tmp := res.ContentPath + ".upload"
	fingerprint, err := writeContent(tmp, content)
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, res.ContentPath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to replace content: %w", err)
	}
	return s.applyFingerprint(ctx, res, fingerprint)
}

// Refresh recomputes the fingerprint from disk and flags a rebuild if it changed.
func (s *ResourceService) Refresh(ctx context.Context, id string) (*domain.Resource, error) {
	res, err := s.store.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	fingerprint, err := fingerprintFile(res.ContentPath)
	if err != nil {
		return nil, err
	}
	return s.applyFingerprint(ctx, res, fingerprint)
}

// RefreshPath refreshes the resource whose content lives at path.
func (s *ResourceService) RefreshPath(ctx context.Context, path string) (*domain.Resource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	resources, err := s.store.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	for _, res := range resources {
		if filepath.Clean(res.ContentPath) == abs {
			return s.Refresh(ctx, res.ID)
		}
	}
	return nil, fmt.Errorf("%w: no resource at %s", domain.ErrResourceNotFound, abs)
}

func (s *ResourceService) applyFingerprint(ctx context.Context, res *domain.Resource, fingerprint string) (*domain.Resource, error) {
	if fingerprint == res.Fingerprint {
		return res, nil
	}
	res.Fingerprint = fingerprint
	res.UpdatedAt = s.now().UTC()
	if err := s.store.SaveResource(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to save resource: %w", err)
	}
	if err := s.events.OnContentChanged(ctx, res.ID); err != nil {
		return nil, err
	}
	return res, nil
}

// Delete tears the resource's container down, then removes the resource and
// its files. A failed teardown keeps the resource so the delete can be retried.
func (s *ResourceService) Delete(ctx context.Context, id string) error {
	res, err := s.store.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.events.OnDeleted(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteResource(ctx, id); err != nil {
		return err
	}

	dir := filepath.Dir(res.ContentPath)
	if rel, err := filepath.Rel(s.mediaRoot, dir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove resource files")
		}
	}
	s.logger.Info().Str("resource_id", id).Msg("resource deleted")
	return nil
}

// reserveDir creates a new media directory named by a ddmmyyyy date plus ten
// random lowercase alphanumerics; the token doubles as the content's base name.
func (s *ResourceService) reserveDir() (string, string, error) {
	for i := 0; i < 5; i++ {
		random := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
		token := s.now().Format("02012006") + random
		dir := filepath.Join(s.mediaRoot, token)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return token, dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", fmt.Errorf("failed to create resource dir: %w", err)
		}
	}
	return "", "", errors.New("failed to reserve a unique resource dir")
}

func writeContent(path string, content io.Reader) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create content file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), content)
	if err != nil {
		return "", fmt.Errorf("failed to write content: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty content", domain.ErrInvalidContent)
	}
	return hex.EncodeToString(h.Sum(nil)), f.Sync()
}

func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrContentMissing, path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
