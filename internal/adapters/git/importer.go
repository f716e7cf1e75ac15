// Package git fetches resource content from git repositories.
package git

import (
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/rs/zerolog"
)

var _ ports.ContentImporter = (*Importer)(nil)

// Importer clones repositories with go-git.
type Importer struct {
	depth  int
	branch string
	logger zerolog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithDepth sets the clone depth; 0 clones the full history.
func WithDepth(depth int) Option {
	return func(i *Importer) { i.depth = depth }
}

// WithBranch clones a single branch instead of the remote HEAD.
func WithBranch(branch string) Option {
	return func(i *Importer) { i.branch = branch }
}

// NewImporter returns an importer doing shallow clones by default.
func NewImporter(opts ...Option) *Importer {
	i := &Importer{
		depth:  1, // Shallow clone for speed
		logger: log.WithComponent("git-importer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Fetch clones repoURL into dest, which must be empty or absent.
func (i *Importer) Fetch(ctx context.Context, repoURL, dest string) error {
	i.logger.Info().Str("repo", repoURL).Str("dest", dest).Msg("cloning repository")

	opts := &git.CloneOptions{
		URL:      repoURL,
		Progress: io.Discard,
		Depth:    i.depth,
	}
	if i.branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(i.branch)
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		return fmt.Errorf("failed to clone repo: %w", err)
	}

	if head, err := repo.Head(); err == nil {
		i.logger.Debug().Str("repo", repoURL).Str("commit", head.Hash().String()).Msg("repository cloned")
	}
	return nil
}
