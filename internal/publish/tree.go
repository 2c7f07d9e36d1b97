package publish

import (
	"context"
	"fmt"

	"github.com/flexpertsdev/flexios-v1/internal/githost"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// TreeEntry binds a path to a blob. Entries with Delete set remove the path
// from the base tree.
type TreeEntry = githost.TreeEntry

// TreeCreator creates a tree object.
type TreeCreator interface {
	CreateTree(ctx context.Context, t models.SyncTarget, baseTree string, entries []TreeEntry) (string, error)
}

// TreeBuilder creates tree objects.
type TreeBuilder struct {
	remote TreeCreator
	target models.SyncTarget
}

// NewTreeBuilder returns a TreeBuilder for target.
func NewTreeBuilder(remote TreeCreator, target models.SyncTarget) *TreeBuilder {
	return &TreeBuilder{remote: remote, target: target}
}

// Build creates a tree from entries and returns its sha. With a baseTree, the
// entries replace or remove paths of the base tree and every other path is
// carried over. Without one, the tree holds exactly the entries.
func (b *TreeBuilder) Build(ctx context.Context, entries []TreeEntry, baseTree string) (string, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Path == "" {
			return "", syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("tree entry without a path"))
		}
		if seen[e.Path] {
			return "", syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("duplicate tree path %q", e.Path))
		}
		seen[e.Path] = true

		if e.Delete && baseTree == "" {
			return "", fmt.Errorf("cannot delete %q without a base tree", e.Path)
		}
		if !e.Delete && e.SHA == "" {
			return "", fmt.Errorf("tree entry %q has no blob", e.Path)
		}
	}

	sha, err := b.remote.CreateTree(ctx, b.target, baseTree, entries)
	if err != nil {
		return "", syncerr.Kind(syncerr.ErrPartialPublish, err)
	}
	return sha, nil
}
