package ports

import "context"

// ContentImporter fetches a content bundle from a remote repository.
type ContentImporter interface {
	// Fetch clones repoURL into dest, which must be an empty directory.
	Fetch(ctx context.Context, repoURL, dest string) error
}
